package store

import (
	"fmt"

	"storefront-sync/internal/domain"
)

// Rule binds a domain to the state transition applied when an envelope for
// that domain settles successfully. Rules are the only writers of the store.
type Rule[T any] struct {
	domain Domain
	kind   string
	apply  func(s *Store, v T)
}

// Domain returns the domain whose status the rule's envelope drives.
func (r Rule[T]) Domain() Domain { return r.domain }

// Kind names the transition (replace-list, append-item, ...).
func (r Rule[T]) Kind() string { return r.kind }

const (
	kindReplace = "replace-list"
	kindAppend  = "append-item"
	kindUpsert  = "upsert-item"
	kindRemove  = "remove-item"
	kindSet     = "set-singleton"
	kindClear   = "clear-singleton"
	kindNone    = "none"
)

func mustProductDomain(d Domain) {
	switch d {
	case DomainProducts, DomainMyProducts, DomainFavorites:
		return
	}
	panic(fmt.Sprintf("store: %q is not a product collection domain", d))
}

// ReplaceProducts overwrites the product collection of d.
func ReplaceProducts(d Domain) Rule[[]domain.Product] {
	mustProductDomain(d)
	return Rule[[]domain.Product]{domain: d, kind: kindReplace, apply: func(s *Store, v []domain.Product) {
		s.productCollection(d).replace(v)
	}}
}

// AppendProduct adds one product to the collection of d.
func AppendProduct(d Domain) Rule[domain.Product] {
	mustProductDomain(d)
	return Rule[domain.Product]{domain: d, kind: kindAppend, apply: func(s *Store, v domain.Product) {
		s.productCollection(d).upsert(v)
	}}
}

// AppendFoundProduct is AppendProduct for operations that may not yield a
// product; nil leaves the collection unchanged.
func AppendFoundProduct(d Domain) Rule[*domain.Product] {
	mustProductDomain(d)
	return Rule[*domain.Product]{domain: d, kind: kindAppend, apply: func(s *Store, v *domain.Product) {
		if v != nil {
			s.productCollection(d).upsert(*v)
		}
	}}
}

// SetProductDetails overwrites the product details slot.
func SetProductDetails() Rule[domain.Product] {
	return Rule[domain.Product]{domain: DomainProductDetails, kind: kindSet, apply: func(s *Store, v domain.Product) {
		p := v.Clone()
		s.productDetails = &p
	}}
}

// ReplaceCart overwrites the cart.
func ReplaceCart() Rule[[]domain.CartItem] {
	return Rule[[]domain.CartItem]{domain: DomainCart, kind: kindReplace, apply: func(s *Store, v []domain.CartItem) {
		s.cart.replace(v)
	}}
}

// AppendCartItem adds one item to the cart.
func AppendCartItem() Rule[domain.CartItem] {
	return Rule[domain.CartItem]{domain: DomainCart, kind: kindAppend, apply: func(s *Store, v domain.CartItem) {
		s.cart.upsert(v)
	}}
}

// RemoveCartItem drops the cart item with the given key. A missing key is
// not an error.
func RemoveCartItem() Rule[string] {
	return Rule[string]{domain: DomainCart, kind: kindRemove, apply: func(s *Store, key string) {
		s.cart.remove(key)
	}}
}

// ReplaceOrders overwrites the order collection.
func ReplaceOrders() Rule[[]domain.Order] {
	return Rule[[]domain.Order]{domain: DomainOrders, kind: kindReplace, apply: func(s *Store, v []domain.Order) {
		s.orders.replace(v)
	}}
}

// UpdateOrder overwrites the order with the same id, appending it when the
// collection does not hold it yet.
func UpdateOrder() Rule[domain.Order] {
	return Rule[domain.Order]{domain: DomainOrders, kind: kindUpsert, apply: func(s *Store, v domain.Order) {
		s.orders.upsert(v)
	}}
}

// Checkout is the settled result of placing an order for one cart item.
type Checkout struct {
	Order   domain.Order
	CartKey string
}

// CompleteCheckout appends the order and removes the cart item it was placed
// for. The orders domain carries the envelope status.
func CompleteCheckout() Rule[Checkout] {
	return Rule[Checkout]{domain: DomainOrders, kind: kindAppend, apply: func(s *Store, v Checkout) {
		s.orders.upsert(v.Order)
		if v.CartKey != "" && s.cart.remove(v.CartKey) {
			s.touch(DomainCart)
		}
	}}
}

// SetCurrentUser fills the current-user slot.
func SetCurrentUser() Rule[domain.User] {
	return Rule[domain.User]{domain: DomainCurrentUser, kind: kindSet, apply: func(s *Store, v domain.User) {
		u := v
		s.currentUser = &u
	}}
}

// SignIn fills the current-user slot from a successful login. The envelope
// status lives on the auth domain; the session slot is marked settled.
func SignIn() Rule[domain.User] {
	return Rule[domain.User]{domain: DomainAuth, kind: kindSet, apply: func(s *Store, v domain.User) {
		u := v
		s.currentUser = &u
		s.settleSlot(DomainCurrentUser)
	}}
}

// ClearSession empties the current-user and profile slots after a logout.
func ClearSession() Rule[struct{}] {
	return Rule[struct{}]{domain: DomainAuth, kind: kindClear, apply: func(s *Store, _ struct{}) {
		s.currentUser = nil
		s.settleSlot(DomainCurrentUser)
		if s.profile != nil {
			s.profile = nil
			s.touch(DomainProfile)
		}
	}}
}

// SetProfile fills the profile slot.
func SetProfile() Rule[domain.User] {
	return Rule[domain.User]{domain: DomainProfile, kind: kindSet, apply: func(s *Store, v domain.User) {
		u := v
		s.profile = &u
	}}
}

// ReplaceUsers overwrites the admin user list.
func ReplaceUsers() Rule[[]domain.User] {
	return Rule[[]domain.User]{domain: DomainUsers, kind: kindReplace, apply: func(s *Store, v []domain.User) {
		s.users.replace(v)
	}}
}

// Acknowledge tracks loading/error on d without changing any data.
func Acknowledge[T any](d Domain) Rule[T] {
	return Rule[T]{domain: d, kind: kindNone, apply: func(*Store, T) {}}
}

// touch records a data change on a domain other than the envelope's own.
// Callers hold the write lock.
func (s *Store) touch(d Domain) {
	st := s.status[d]
	st.version++
	st.updatedAt = s.now()
}

// settleSlot records that another domain now holds fresh, authoritative data:
// it is loaded and its last error no longer applies. Callers hold the write
// lock.
func (s *Store) settleSlot(d Domain) {
	st := s.status[d]
	st.loaded = true
	st.err = nil
	if st.inflight == 0 {
		st.phase = PhaseSucceeded
	}
	s.touch(d)
}
