package model

import "time"

// GroceryItem is a single grocery-list entry. ID is the engine-assigned row
// id rendered as a string; callers treat it as opaque.
type GroceryItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Notes     string    `json:"notes"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"-"`
}

// DefaultQuantity is used when an item is added without a quantity.
const DefaultQuantity = 1

// NormalizeQuantity coerces quantities below one up to one. Callers apply it
// before handing a quantity to the store.
func NormalizeQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
