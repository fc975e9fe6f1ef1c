package domain

import (
	"time"
)

// Product represents a catalog item together with its review aggregate.
type Product struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	Brand        string    `json:"brand"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Image        string    `json:"image"`
	Price        int64     `json:"price"`
	CountInStock int       `json:"count_in_stock"`
	Rating       float64   `json:"rating"`
	NumReviews   int       `json:"num_reviews"`
	Reviews      []Review  `json:"reviews,omitempty"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasReviewFrom reports whether userID already reviewed the product.
// Only meaningful when Reviews is loaded.
func (p *Product) HasReviewFrom(userID string) bool {
	for _, r := range p.Reviews {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
