// Package derive computes the views the storefront surfaces render: category
// buckets, filtered and sorted listings, order views and checkout totals.
// Every function is pure and recomputes from its inputs on each call.
package derive

import (
	"strings"

	"storefront-sync/internal/domain"

	"golang.org/x/text/cases"
)

// Normalize is the comparison key for category names: trimmed and case-folded.
func Normalize(s string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(s))
}

// Bucket is the products of one category, in input order.
type Bucket struct {
	Category domain.Category  `json:"category"`
	Products []domain.Product `json:"products"`
}

// BucketFor returns the index of the first category whose normalized name
// equals the product's normalized category, or -1.
func BucketFor(p domain.Product, categories []domain.Category) int {
	key := Normalize(p.Category)
	if key == "" {
		return -1
	}
	for i, c := range categories {
		if Normalize(c.Name) == key {
			return i
		}
	}
	return -1
}

// Bucketize partitions products by category. Every category gets a bucket,
// possibly empty; a product lands in at most one bucket; products matching no
// category are left out.
func Bucketize(products []domain.Product, categories []domain.Category) []Bucket {
	buckets := make([]Bucket, len(categories))
	for i, c := range categories {
		buckets[i] = Bucket{Category: c, Products: []domain.Product{}}
	}
	for _, p := range products {
		if i := BucketFor(p, categories); i >= 0 {
			buckets[i].Products = append(buckets[i].Products, p)
		}
	}
	return buckets
}

// InCategory returns the products whose category matches name.
func InCategory(products []domain.Product, name string) []domain.Product {
	key := Normalize(name)
	out := []domain.Product{}
	for _, p := range products {
		if key != "" && Normalize(p.Category) == key {
			out = append(out, p)
		}
	}
	return out
}

// Uncategorized returns the products that match none of the categories.
func Uncategorized(products []domain.Product, categories []domain.Category) []domain.Product {
	out := []domain.Product{}
	for _, p := range products {
		if BucketFor(p, categories) < 0 {
			out = append(out, p)
		}
	}
	return out
}
