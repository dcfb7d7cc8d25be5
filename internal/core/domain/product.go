// Package domain holds the shared types crossing package boundaries.
package domain

import "time"

// Product is the catalog entity fetched from the commerce provider.
type Product struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Handle    string    `json:"handle" db:"handle"`
	Status    string    `json:"status" db:"status"`
	Price     string    `json:"price" db:"price"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
