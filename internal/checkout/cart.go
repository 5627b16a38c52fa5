package checkout

import (
	"fmt"

	"tienda/internal/models"
	"tienda/internal/validation"

	"github.com/shopspring/decimal"
)

// CartEntry is one product line of a shopping cart.
type CartEntry struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Subtotal is quantity times unit price.
func (e CartEntry) Subtotal() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Cart is an ordered list of entries, at most one per product.
// Mutating methods return a new Cart and leave the receiver untouched.
type Cart struct {
	entries []CartEntry
}

// NewCart returns a cart holding the given entries.
func NewCart(entries ...CartEntry) Cart {
	return Cart{entries: append([]CartEntry(nil), entries...)}
}

// Entries returns a copy of the cart's entries in insertion order.
func (c Cart) Entries() []CartEntry {
	return append([]CartEntry(nil), c.entries...)
}

// Len returns the number of distinct products in the cart.
func (c Cart) Len() int {
	return len(c.entries)
}

// Add puts qty units of product in the cart. Adding a product already in
// the cart merges the quantities and re-prices the entry for the new total.
func (c Cart) Add(product models.Product, qty int) (Cart, error) {
	if qty <= 0 {
		return c, validation.NewError("quantity", fmt.Sprintf("must be greater than 0, got %d", qty))
	}
	entries := c.Entries()
	for i := range entries {
		if entries[i].ProductID == product.ID {
			entries[i].Quantity += qty
			entries[i].UnitPrice = product.UnitPriceFor(entries[i].Quantity)
			return Cart{entries: entries}, nil
		}
	}
	entries = append(entries, CartEntry{
		ProductID:   product.ID,
		Name:        product.Name,
		Description: product.Description,
		Image:       product.Image,
		SKU:         product.ID,
		Quantity:    qty,
		UnitPrice:   product.UnitPriceFor(qty),
	})
	return Cart{entries: entries}, nil
}

// Remove drops the entry for productID, if any.
func (c Cart) Remove(productID string) Cart {
	entries := make([]CartEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.ProductID != productID {
			entries = append(entries, e)
		}
	}
	return Cart{entries: entries}
}

// Clear returns an empty cart.
func (c Cart) Clear() Cart {
	return Cart{}
}

// Subtotal sums the entry subtotals.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.entries {
		total = total.Add(e.Subtotal())
	}
	return total
}

// Convert returns amount expressed in the target currency at rate, rounded
// to cents.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
