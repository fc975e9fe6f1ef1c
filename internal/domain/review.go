package domain

import (
	"strings"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review represents a product review submitted by a user.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the rating range and that a comment is present.
func (r *Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return ErrInvalidRating.WithMessage("rating must be between %d and %d, got %d", MinRating, MaxRating, r.Rating)
	}
	if strings.TrimSpace(r.Comment) == "" {
		return ErrInvalidRating.WithMessage("comment must not be empty")
	}
	return nil
}

// ReviewSummary is the aggregate stored on the product.
type ReviewSummary struct {
	Rating     float64 `json:"rating"`
	NumReviews int     `json:"num_reviews"`
}

// Summarize returns the mean rating and count of reviews. An empty set
// has rating 0.
func Summarize(reviews []Review) ReviewSummary {
	if len(reviews) == 0 {
		return ReviewSummary{}
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return ReviewSummary{
		Rating:     float64(sum) / float64(len(reviews)),
		NumReviews: len(reviews),
	}
}
