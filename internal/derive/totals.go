package derive

import (
	"storefront-sync/internal/domain"

	"github.com/shopspring/decimal"
)

// LineTotal is unitPrice × quantity truncated to whole currency units. This is
// the totalPrice sent with an order.
func LineTotal(unitPrice decimal.Decimal, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).IntPart()
}

// Quote is the checkout total for one cart item at a chosen quantity.
type Quote struct {
	CartItemID string          `json:"cartItemId"`
	ProductID  string          `json:"productId"`
	Title      string          `json:"title"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
	TotalPrice int64           `json:"totalPrice"`
}

// QuoteItem prices item at quantity. A non-positive quantity falls back to
// the item's own quantity, then to 1.
func QuoteItem(item domain.CartItem, quantity int) Quote {
	if quantity <= 0 {
		quantity = item.Quantity
	}
	if quantity <= 0 {
		quantity = 1
	}
	return Quote{
		CartItemID: item.Key(),
		ProductID:  item.ProductID,
		Title:      item.Title,
		UnitPrice:  item.Price,
		Quantity:   quantity,
		TotalPrice: LineTotal(item.Price, quantity),
	}
}

// CartSummary totals the whole cart at each item's stored quantity.
type CartSummary struct {
	Items      int   `json:"items"`
	Units      int   `json:"units"`
	TotalPrice int64 `json:"totalPrice"`
}

// SummarizeCart sums line totals over items.
func SummarizeCart(items []domain.CartItem) CartSummary {
	var s CartSummary
	for _, it := range items {
		q := QuoteItem(it, 0)
		s.Items++
		s.Units += q.Quantity
		s.TotalPrice += q.TotalPrice
	}
	return s
}
