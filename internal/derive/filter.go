package derive

import (
	"slices"
	"strings"

	"storefront-sync/internal/domain"

	"github.com/shopspring/decimal"
)

// ConditionAll disables the condition predicate.
const ConditionAll = "all"

// Spec is a product filter. Nil bounds, an empty or "all" condition and an
// empty location are inactive and never exclude anything.
type Spec struct {
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Condition string
	Location  string
}

// DefaultSpec mirrors the storefront's initial filter panel.
func DefaultSpec() Spec {
	lo, hi := decimal.Zero, decimal.NewFromInt(5_000_000)
	return Spec{MinPrice: &lo, MaxPrice: &hi, Condition: ConditionAll}
}

// Match reports whether p satisfies every active predicate of s.
func (s Spec) Match(p domain.Product) bool {
	if s.MinPrice != nil && p.Price.LessThan(*s.MinPrice) {
		return false
	}
	if s.MaxPrice != nil && p.Price.GreaterThan(*s.MaxPrice) {
		return false
	}
	if s.Condition != "" && !strings.EqualFold(s.Condition, ConditionAll) && !strings.EqualFold(string(p.Condition), s.Condition) {
		return false
	}
	if s.Location != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(s.Location)) {
		return false
	}
	return true
}

// Filter returns the products matching s, in input order.
func Filter(products []domain.Product, s Spec) []domain.Product {
	out := []domain.Product{}
	for _, p := range products {
		if s.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// SearchProducts keeps products whose title or category contains term,
// case-insensitively. An empty term keeps everything.
func SearchProducts(products []domain.Product, term string) []domain.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return slices.Clone(nonNil(products))
	}
	out := []domain.Product{}
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), term) || strings.Contains(strings.ToLower(p.Category), term) {
			out = append(out, p)
		}
	}
	return out
}

// SortKey orders a product listing.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortOldest    SortKey = "oldest"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
)

// ParseSortKey validates a sort key. Empty means newest.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case "":
		return SortNewest, true
	case SortNewest, SortOldest, SortPriceLow, SortPriceHigh:
		return SortKey(s), true
	}
	return "", false
}

// Sort returns a new slice ordered by key. Equal keys keep input order; an
// unknown key returns the input order unchanged.
func Sort(products []domain.Product, key SortKey) []domain.Product {
	out := slices.Clone(nonNil(products))
	var cmp func(a, b domain.Product) int
	switch key {
	case SortNewest:
		cmp = func(a, b domain.Product) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case SortOldest:
		cmp = func(a, b domain.Product) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortPriceLow:
		cmp = func(a, b domain.Product) int { return a.Price.Cmp(b.Price) }
	case SortPriceHigh:
		cmp = func(a, b domain.Product) int { return b.Price.Cmp(a.Price) }
	default:
		return out
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// Listing filters then sorts.
func Listing(products []domain.Product, s Spec, key SortKey) []domain.Product {
	return Sort(Filter(products, s), key)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
