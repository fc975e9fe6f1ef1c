// Package catalog holds the product listing rules shared by every store:
// keyword matching, the sort enum and the total order used for ties.
package catalog

import (
	"sort"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// Sort is a product listing order.
type Sort string

const (
	SortLatest    Sort = "latest"
	SortPriceAsc  Sort = "price-asc"
	SortPriceDesc Sort = "price-desc"
	SortRating    Sort = "rating"
)

// DefaultTopLimit is the number of products returned by a top-rated query
// when no limit is given.
const DefaultTopLimit = 3

// ParseSort maps a query value to a Sort. Empty and unknown values fall back
// to SortLatest.
func ParseSort(s string) Sort {
	switch v := Sort(strings.ToLower(strings.TrimSpace(s))); v {
	case SortPriceAsc, SortPriceDesc, SortRating:
		return v
	default:
		return SortLatest
	}
}

// Query describes a product listing request.
type Query struct {
	Keyword string
	Sort    Sort
	Page    pagination.Params
}

// NewQuery normalises its inputs.
func NewQuery(keyword, sortBy string, page, perPage int) Query {
	return Query{
		Keyword: strings.TrimSpace(keyword),
		Sort:    ParseSort(sortBy),
		Page:    pagination.New(page, perPage),
	}
}

// TopQuery returns the query for the highest rated products.
func TopQuery(limit int) Query {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	return Query{Sort: SortRating, Page: pagination.New(1, limit)}
}

// Matches reports whether name contains keyword, ignoring case. An empty
// keyword matches everything.
func Matches(name, keyword string) bool {
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(keyword))
}

// Less orders a before b for the given sort. The primary key is followed by
// createdAt descending and then id ascending so the order is total.
func Less(s Sort, a, b *domain.Product) bool {
	switch s {
	case SortPriceAsc:
		if a.Price != b.Price {
			return a.Price < b.Price
		}
	case SortPriceDesc:
		if a.Price != b.Price {
			return a.Price > b.Price
		}
	case SortRating:
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Apply filters, sorts and pages products in memory. It returns the page and
// the total number of matches.
func Apply(products []domain.Product, q Query) ([]domain.Product, int) {
	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if Matches(p.Name, q.Keyword) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return Less(q.Sort, &matched[i], &matched[j])
	})

	start, end := q.Page.Window(len(matched))
	return matched[start:end], len(matched)
}

// OrderBy returns the SQL ORDER BY clause for s. Column names assume the
// products table.
func OrderBy(s Sort) string {
	const tail = "created_at DESC, id ASC"
	switch s {
	case SortPriceAsc:
		return "price ASC, " + tail
	case SortPriceDesc:
		return "price DESC, " + tail
	case SortRating:
		return "rating DESC, " + tail
	default:
		return tail
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern builds an ILIKE pattern for a substring match on keyword.
func LikePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
