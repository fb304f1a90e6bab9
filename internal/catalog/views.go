package catalog

import (
	"errors"

	"storefront-sync/internal/derive"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/store"
)

// Predefined errors for view lookups
var (
	ErrCategoryNotFound = errors.New("catalog: category not found")
	ErrCartItemNotFound = errors.New("catalog: cart item not found")
)

// Categories returns the configured categories in display order.
func (e *Engine) Categories() []domain.Category {
	return append([]domain.Category(nil), e.categories...)
}

// Category looks a category up by id or by normalized name.
func (e *Engine) Category(ref string) (domain.Category, bool) {
	key := derive.Normalize(ref)
	for _, c := range e.categories {
		if c.ID == ref || derive.Normalize(c.Name) == key {
			return c, true
		}
	}
	return domain.Category{}, false
}

// Buckets partitions the products domain by category.
func (e *Engine) Buckets() []derive.Bucket {
	return derive.Bucketize(e.store.Products(store.DomainProducts), e.categories)
}

// Listing filters and sorts one product domain.
func (e *Engine) Listing(d store.Domain, spec derive.Spec, key derive.SortKey) []domain.Product {
	return derive.Listing(e.store.Products(d), spec, key)
}

// CategoryListing is Listing over the products of one category.
func (e *Engine) CategoryListing(ref string, spec derive.Spec, key derive.SortKey) (domain.Category, []domain.Product, error) {
	c, ok := e.Category(ref)
	if !ok {
		return domain.Category{}, nil, ErrCategoryNotFound
	}
	in := derive.InCategory(e.store.Products(store.DomainProducts), c.Name)
	return c, derive.Listing(in, spec, key), nil
}

// Quote prices a cart item at quantity for the checkout page.
func (e *Engine) Quote(cartItemID string, quantity int) (derive.Quote, error) {
	item, ok := e.store.CartItem(cartItemID)
	if !ok {
		return derive.Quote{}, ErrCartItemNotFound
	}
	return derive.QuoteItem(item, quantity), nil
}

// CartSummary totals the cart.
func (e *Engine) CartSummary() derive.CartSummary {
	return derive.SummarizeCart(e.store.CartItems())
}

// OrderView is the filtered order table plus a summary of the filtered rows.
type OrderView struct {
	Orders  []domain.Order      `json:"orders"`
	Summary derive.OrderSummary `json:"summary"`
}

// Orders filters the orders domain.
func (e *Engine) Orders(q derive.OrderQuery) OrderView {
	orders := derive.FilterOrders(e.store.Orders(), q)
	return OrderView{Orders: orders, Summary: derive.SummarizeOrders(orders)}
}
