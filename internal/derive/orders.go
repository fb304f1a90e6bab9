package derive

import (
	"strings"

	"storefront-sync/internal/domain"
)

// AllStatuses disables the status predicate of an OrderQuery.
const AllStatuses = "All Status"

// OrderQuery filters the admin order table.
type OrderQuery struct {
	Status string
	Search string
}

// FilterOrders keeps orders whose id or customer contains Search
// (case-insensitive) and whose status equals Status. Empty fields and
// AllStatuses are inactive.
func FilterOrders(orders []domain.Order, q OrderQuery) []domain.Order {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	status := strings.TrimSpace(q.Status)
	out := []domain.Order{}
	for _, o := range orders {
		if status != "" && status != AllStatuses && !strings.EqualFold(string(o.Status), status) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(o.ID), term) &&
			!strings.Contains(strings.ToLower(o.Customer), term) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// OrderSummary aggregates an order list.
type OrderSummary struct {
	Count    int                        `json:"count"`
	ByStatus map[domain.OrderStatus]int `json:"byStatus"`
	Revenue  int64                      `json:"revenue"`
	Units    int                        `json:"units"`
}

// SummarizeOrders counts orders per status. Revenue and units leave out
// cancelled orders.
func SummarizeOrders(orders []domain.Order) OrderSummary {
	s := OrderSummary{ByStatus: make(map[domain.OrderStatus]int, len(domain.OrderStatuses))}
	for _, st := range domain.OrderStatuses {
		s.ByStatus[st] = 0
	}
	for _, o := range orders {
		s.Count++
		s.ByStatus[o.Status]++
		if o.Status == domain.OrderCancelled {
			continue
		}
		s.Revenue += o.TotalPrice
		s.Units += o.Quantity
	}
	return s
}
