package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition is the listed state of a product.
type Condition string

const (
	ConditionNew  Condition = "New"
	ConditionUsed Condition = "Used"
)

// MaxProductImages is the upper bound on images attached to one listing.
const MaxProductImages = 5

// Category is one entry of the fixed category set used for bucketing.
// It is never fetched from the gateway; the set is configured locally.
type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Icon string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// DefaultCategories is the storefront's built-in category set.
func DefaultCategories() []Category {
	return []Category{
		{ID: "mobiles", Name: "Mobiles", Icon: "📱"},
		{ID: "vehicles", Name: "Vehicles", Icon: "🚗"},
		{ID: "electronics", Name: "Electronics", Icon: "💻"},
		{ID: "property", Name: "Property", Icon: "🏠"},
	}
}

// Product represents a listing in the catalog.
// The json tags correspond to the fields exposed by the local read-model API.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Condition   Condition       `json:"condition,omitempty"`
	Stock       int             `json:"stock"`
	Images      []string        `json:"images,omitempty"`
	OwnerID     string          `json:"ownerId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Key returns the identity used by the store's collections.
func (p Product) Key() string { return p.ID }

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool { return p.Stock > 0 }

// Clone returns a copy that shares no slices with p.
func (p Product) Clone() Product {
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}
