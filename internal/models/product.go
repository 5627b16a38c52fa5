package models

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// PriceTier is one quantity bracket of a product's price list.
type PriceTier struct {
	Label       string          `json:"label"`
	MinQuantity int             `json:"min_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Product represents a product in the store catalog.
type Product struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Subtitle    string      `json:"subtitle,omitempty"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Image       string      `json:"image"`
	Details     []string    `json:"details,omitempty"`
	PriceTiers  []PriceTier `json:"price_tiers"`
}

// NewPriceTier builds a tier whose minimum quantity is read from the label,
// e.g. "10 unidades" -> 10. Labels without digits mean a single unit.
func NewPriceTier(label string, unitPrice decimal.Decimal) PriceTier {
	return PriceTier{
		Label:       label,
		MinQuantity: quantityFromLabel(label),
		UnitPrice:   unitPrice,
	}
}

func quantityFromLabel(label string) int {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, label)
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// UnitPriceFor returns the unit price that applies when buying qty units:
// the price of the largest tier whose minimum quantity is reached. When no
// tier is reached the first tier's price is used.
func (p *Product) UnitPriceFor(qty int) decimal.Decimal {
	if len(p.PriceTiers) == 0 {
		return decimal.Zero
	}
	price := p.PriceTiers[0].UnitPrice
	best := 0
	for _, tier := range p.PriceTiers {
		if tier.MinQuantity <= qty && tier.MinQuantity >= best {
			best = tier.MinQuantity
			price = tier.UnitPrice
		}
	}
	return price
}
