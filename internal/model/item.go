package model

import "time"

type Item struct {
	ID           string    `json:"id"`
	Name         string    `json:"item_name"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	DisplayOrder *int      `json:"display_order,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderUpdate is one row of a bulk display-order reassignment. Reorders persist
// the full affected set as a contiguous 1-based sequence.
type OrderUpdate struct {
	ID           string `json:"id"`
	DisplayOrder int    `json:"display_order"`
}
