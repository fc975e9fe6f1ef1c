package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/storefront/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixtures() []domain.Product {
	return []domain.Product{
		{ID: "a", Name: "Blue Phone", Price: 500_00, Rating: 4.5, CreatedAt: base},
		{ID: "b", Name: "Red phone case", Price: 10_00, Rating: 3, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Name: "Laptop", Price: 900_00, Rating: 4.5, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", Name: "Headphones", Price: 10_00, Rating: 0, CreatedAt: base.Add(time.Hour)},
	}
}

func ids(ps []domain.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortLatest, ParseSort(""))
	assert.Equal(t, SortLatest, ParseSort("bogus"))
	assert.Equal(t, SortPriceAsc, ParseSort("price-asc"))
	assert.Equal(t, SortPriceDesc, ParseSort(" PRICE-DESC "))
	assert.Equal(t, SortRating, ParseSort("rating"))
}

func TestApply_KeywordIsCaseInsensitiveSubstring(t *testing.T) {
	got, total := Apply(fixtures(), NewQuery("PHONE", "", 1, 20))
	assert.Equal(t, 3, total)
	assert.ElementsMatch(t, []string{"a", "b", "d"}, ids(got))
}

func TestApply_Sorts(t *testing.T) {
	tests := []struct {
		sort string
		want []string
	}{
		{"", []string{"c", "b", "d", "a"}},
		{"latest", []string{"c", "b", "d", "a"}},
		{"price-asc", []string{"b", "d", "a", "c"}},
		{"price-desc", []string{"c", "a", "b", "d"}},
		{"rating", []string{"c", "a", "b", "d"}},
		{"unknown", []string{"c", "b", "d", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			got, total := Apply(fixtures(), NewQuery("", tt.sort, 1, 20))
			assert.Equal(t, 4, total)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestApply_PriceAscendingIsNonDecreasing(t *testing.T) {
	got, _ := Apply(fixtures(), NewQuery("", "price-asc", 1, 20))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Price, got[i].Price)
	}
}

func TestApply_Pagination(t *testing.T) {
	got, total := Apply(fixtures(), NewQuery("", "price-asc", 2, 3))
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"c"}, ids(got))

	got, total = Apply(fixtures(), NewQuery("", "", 5, 3))
	assert.Equal(t, 4, total)
	assert.Empty(t, got)
}

func TestTopQuery(t *testing.T) {
	q := TopQuery(0)
	assert.Equal(t, SortRating, q.Sort)
	assert.Equal(t, DefaultTopLimit, q.Page.PerPage)

	got, _ := Apply(fixtures(), q)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "created_at DESC, id ASC", OrderBy(SortLatest))
	assert.Equal(t, "price ASC, created_at DESC, id ASC", OrderBy(SortPriceAsc))
	assert.Equal(t, "rating DESC, created_at DESC, id ASC", OrderBy(SortRating))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%phone%", LikePattern("phone"))
	assert.Equal(t, `%100\%\_off%`, LikePattern("100%_off"))
}
