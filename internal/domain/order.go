package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a product placed in the user's cart, with the price and title
// captured when it was added.
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Images    []string        `json:"images,omitempty"`
}

// Key returns the cart item id, or the product id when the gateway did not
// assign one.
func (c CartItem) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.ProductID
}

// Clone returns a copy that shares no slices with c.
func (c CartItem) Clone() CartItem {
	if c.Images != nil {
		c.Images = append([]string(nil), c.Images...)
	}
	return c
}

// OrderStatus is the admin-managed lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderShipped   OrderStatus = "Shipped"
	OrderCompleted OrderStatus = "Completed"
	OrderCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every status in display order.
var OrderStatuses = []OrderStatus{OrderPending, OrderShipped, OrderCompleted, OrderCancelled}

// ParseOrderStatus matches s case-insensitively against the known statuses.
// An empty string is treated as Pending.
func ParseOrderStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrderPending, nil
	}
	for _, st := range OrderStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("domain: unknown order status %q", s)
}

// Order is a placed order. It carries only the cardholder name;
// card number, expiry and CVV never leave the checkout request.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId,omitempty"`
	Customer   string      `json:"customer,omitempty"`
	ProductID  string      `json:"productId"`
	Title      string      `json:"title,omitempty"`
	Quantity   int         `json:"quantity"`
	TotalPrice int64       `json:"totalPrice"`
	Status     OrderStatus `json:"status"`
	CardName   string      `json:"cardName,omitempty"`
	OrderedAt  time.Time   `json:"orderedAt"`
}

// Key returns the order id.
func (o Order) Key() string { return o.ID }
