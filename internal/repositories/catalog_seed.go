package repositories

import (
	"tienda/internal/models"

	"github.com/shopspring/decimal"
)

func tiers(pairs ...string) []models.PriceTier {
	out := make([]models.PriceTier, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.NewPriceTier(pairs[i], decimal.RequireFromString(pairs[i+1])))
	}
	return out
}

// SeedProducts is the catalog the store ships with. Prices are in USD.
func SeedProducts() []models.Product {
	return []models.Product{
		{
			ID:          "cable-usbc-lightning",
			Name:        "Cable USB-C a Lightning",
			Subtitle:    "1 metro",
			Description: "Cable de carga rápida y datos para iPhone y iPad.",
			Category:    "Accesorios Apple",
			Image:       "/images/cable-usbc-lightning.jpg",
			Details:     []string{"Carga rápida", "Longitud 1 m"},
			PriceTiers:  tiers("1 unidad", "10.00", "10 unidades", "8.00", "50 unidades", "6.50"),
		},
		{
			ID:          "cargador-20w",
			Name:        "Cargador 20W USB-C",
			Description: "Adaptador de corriente para carga rápida.",
			Category:    "Accesorios Apple",
			Image:       "/images/cargador-20w.jpg",
			Details:     []string{"Potencia 20 W", "Conector USB-C"},
			PriceTiers:  tiers("1 unidad", "25.50", "10 unidades", "21.00"),
		},
		{
			ID:          "airpods-pro",
			Name:        "AirPods Pro",
			Subtitle:    "2da generación",
			Description: "Auriculares inalámbricos con cancelación de ruido.",
			Category:    "Accesorios Apple",
			Image:       "/images/airpods-pro.jpg",
			PriceTiers:  tiers("Unidad", "189.00"),
		},
		{
			ID:          "funda-silicona",
			Name:        "Funda de silicona",
			Description: "Funda para iPhone en varios colores.",
			Category:    "Varios",
			Image:       "/images/funda-silicona.jpg",
			PriceTiers:  tiers("1 unidad", "4.00", "20 unidades", "3.00"),
		},
		{
			ID:          "soporte-auto",
			Name:        "Soporte magnético para auto",
			Description: "Soporte de rejilla compatible con MagSafe.",
			Category:    "Varios",
			Image:       "/images/soporte-auto.jpg",
			PriceTiers:  tiers("Unidad", "12.00"),
		},
		{
			ID:          "vape-desechable-5000",
			Name:        "Vape desechable 5000",
			Subtitle:    "5000 pitadas",
			Description: "Dispositivo descartable con batería recargable.",
			Category:    "Vapes",
			Image:       "/images/vape-5000.jpg",
			PriceTiers:  tiers("1 unidad", "15.00", "5 unidades", "13.00", "10 unidades", "11.50"),
		},
		{
			ID:          "perfume-arabe-100ml",
			Name:        "Perfume árabe",
			Subtitle:    "100 ml",
			Description: "Eau de parfum de larga duración.",
			Category:    "Perfumes",
			Image:       "/images/perfume-arabe.jpg",
			PriceTiers:  tiers("Unidad", "45.00", "3 unidades", "40.00"),
		},
	}
}
