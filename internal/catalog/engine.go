// Package catalog drives the storefront's remote operations through the
// store envelope and exposes the derived views the surfaces render.
//
// Every operation that touches the backend goes through store.Run, so each
// one marks its domain loading, settles exactly once, and writes the store
// only through its rule. Form checks happen before the envelope opens;
// a rejected form never reaches the gateway or the store.
package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront-sync/internal/derive"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/gateway"
	"storefront-sync/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownDomain is returned by Refresh for a domain with no loader.
var ErrUnknownDomain = errors.New("catalog: domain has no loader")

// Engine runs storefront operations against a gateway and a store.
type Engine struct {
	store      *store.Store
	products   gateway.ProductGateway
	orders     gateway.OrderGateway
	users      gateway.UserGateway
	categories []domain.Category
	validate   *validator.Validate
	submits    singleflight.Group
	newKey     func() string
	logger     *zap.Logger
}

// NewEngine creates an engine. An empty category list falls back to the
// default storefront categories.
func NewEngine(s *store.Store, gw gateway.Gateway, categories []domain.Category, logger *zap.Logger) *Engine {
	if len(categories) == 0 {
		categories = domain.DefaultCategories()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      s,
		products:   gw,
		orders:     gw,
		users:      gw,
		categories: append([]domain.Category(nil), categories...),
		validate:   validator.New(),
		newKey:     uuid.NewString,
		logger:     logger.Named("catalog"),
	}
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store { return e.store }

// --- Products ---

// LoadAllProducts replaces the products domain with the full listing.
func (e *Engine) LoadAllProducts(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listAllProducts", store.ReplaceProducts(store.DomainProducts), e.products.ListAllProducts)
	return err
}

// LoadMyProducts replaces the myProducts domain with the signed-in user's listings.
func (e *Engine) LoadMyProducts(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listMyProducts", store.ReplaceProducts(store.DomainMyProducts), e.products.ListMyProducts)
	return err
}

// LoadProductDetails fills the product details slot.
func (e *Engine) LoadProductDetails(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if reason := segmentReason(id); reason != "" {
		return domain.Product{}, &ValidationError{Form: "productDetails", Fields: map[string]string{"id": reason}}
	}
	return store.Run(ctx, e.store, "getProductDetails", store.SetProductDetails(), func(ctx context.Context) (domain.Product, error) {
		return e.products.GetProductDetails(ctx, id)
	})
}

// LoadCategory replaces the products domain with one category's listing.
func (e *Engine) LoadCategory(ctx context.Context, category string) error {
	category = strings.TrimSpace(category)
	if reason := segmentReason(category); reason != "" {
		return &ValidationError{Form: "category", Fields: map[string]string{"category": reason}}
	}
	_, err := store.Run(ctx, e.store, "listCategoryProducts", store.ReplaceProducts(store.DomainProducts), func(ctx context.Context) ([]domain.Product, error) {
		return e.products.ListCategoryProducts(ctx, category)
	})
	return err
}

// AddProduct validates and submits a new listing, then appends the created
// product to myProducts. Concurrent calls with the same idempotency key share
// one submission; an empty key gets a fresh one.
func (e *Engine) AddProduct(ctx context.Context, in gateway.NewProduct, idempotencyKey string) (domain.Product, error) {
	if err := e.checkProduct(in); err != nil {
		e.logger.Debug("product form rejected", zap.Error(err))
		return domain.Product{}, err
	}
	if idempotencyKey == "" {
		idempotencyKey = e.newKey()
	}
	v, err, shared := e.submits.Do("addProduct:"+idempotencyKey, func() (any, error) {
		return store.Run(ctx, e.store, "addProduct", store.AppendProduct(store.DomainMyProducts), func(ctx context.Context) (domain.Product, error) {
			return e.products.AddProduct(ctx, in, idempotencyKey)
		})
	})
	if shared {
		e.logger.Info("duplicate product submission joined", zap.String("idempotency_key", idempotencyKey))
	}
	p, _ := v.(domain.Product)
	return p, err
}

func (e *Engine) checkProduct(in gateway.NewProduct) error {
	ve := checkStruct(e.validate, "product", in)
	if !in.Price.IsPositive() {
		ve.add("Price", "gt=0")
	}
	if strings.TrimSpace(in.Category) != "" && derive.BucketFor(domain.Product{Category: in.Category}, e.categories) < 0 {
		ve.add("Category", "oneof")
	}
	return ve.orNil()
}

// --- Favourites ---

// LoadFavorites replaces the favorites domain.
func (e *Engine) LoadFavorites(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listFavourites", store.ReplaceProducts(store.DomainFavorites), e.products.ListFavourites)
	return err
}

// AddFavorite marks a product as favourite. When the backend does not echo
// the product, the copy already held by the store is appended instead; when
// neither exists the favorites collection is left for the next LoadFavorites.
func (e *Engine) AddFavorite(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if reason := segmentReason(productID); reason != "" {
		return &ValidationError{Form: "favourite", Fields: map[string]string{"productId": reason}}
	}
	_, err := store.Run(ctx, e.store, "addFavourite", store.AppendFoundProduct(store.DomainFavorites), func(ctx context.Context) (*domain.Product, error) {
		p, err := e.products.AddFavourite(ctx, productID)
		if err != nil || p != nil {
			return p, err
		}
		if held, ok := e.store.FindProduct(productID); ok {
			return &held, nil
		}
		return nil, nil
	})
	return err
}

// --- Cart and orders ---

// AddToCart adds a product to the cart and appends the returned item.
func (e *Engine) AddToCart(ctx context.Context, productID string) (domain.CartItem, error) {
	productID = strings.TrimSpace(productID)
	if reason := segmentReason(productID); reason != "" {
		return domain.CartItem{}, &ValidationError{Form: "cart", Fields: map[string]string{"productId": reason}}
	}
	return store.Run(ctx, e.store, "addToCart", store.AppendCartItem(), func(ctx context.Context) (domain.CartItem, error) {
		return e.orders.AddToCart(ctx, productID)
	})
}

// LoadCart replaces the cart domain.
func (e *Engine) LoadCart(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listCartItems", store.ReplaceCart(), e.orders.ListCartItems)
	return err
}

// RemoveFromCart drops one item from the local cart. There is no backend
// call; the removal still settles through an envelope on the cart domain.
func (e *Engine) RemoveFromCart(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &ValidationError{Form: "cart", Fields: map[string]string{"itemId": "required"}}
	}
	_, err := store.Run(ctx, e.store, "removeFromCart", store.RemoveCartItem(), func(context.Context) (string, error) {
		return key, nil
	})
	return err
}

// CheckoutForm is the checkout page submission for one cart item.
type CheckoutForm struct {
	CartItemID string `json:"cartItemId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gte=1"`
	CardName   string `json:"cardName" validate:"required"`
	CardNumber string `json:"cardNumber" validate:"required,min=12,max=19,numeric"`
	ExpiryDate string `json:"expiryDate" validate:"required"`
	CVV        string `json:"cvv" validate:"required,min=3,max=4,numeric"`
}

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

// Checkout places an order for one cart item. The total is the item's unit
// price times the quantity, truncated to whole units. Card numbers may be
// grouped with spaces or dashes. On success the order is appended and the
// cart item removed in the same settlement.
func (e *Engine) Checkout(ctx context.Context, form CheckoutForm, idempotencyKey string) (domain.Order, error) {
	form.CardNumber = cardSeparators.Replace(form.CardNumber)
	ve := checkStruct(e.validate, "checkout", form)
	item, ok := e.store.CartItem(form.CartItemID)
	if form.CartItemID != "" && !ok {
		ve.add("CartItemID", "in_cart")
	}
	if err := ve.orNil(); err != nil {
		e.logger.Debug("checkout form rejected", zap.Error(err))
		return domain.Order{}, err
	}

	quote := derive.QuoteItem(item, form.Quantity)
	req := gateway.PlaceOrderRequest{
		CardName:    form.CardName,
		CardNumber:  form.CardNumber,
		ExpiryDate:  form.ExpiryDate,
		CVV:         form.CVV,
		TotalPrice:  quote.TotalPrice,
		ProductID:   quote.ProductID,
		ProductName: quote.Title,
		Quantity:    quote.Quantity,
	}
	var customer string
	if u, ok := e.store.CurrentUser(); ok {
		customer = u.DisplayName()
	}
	if idempotencyKey == "" {
		idempotencyKey = e.newKey()
	}
	v, err, _ := e.submits.Do("placeOrder:"+idempotencyKey, func() (any, error) {
		return store.Run(ctx, e.store, "placeOrder", store.CompleteCheckout(), func(ctx context.Context) (store.Checkout, error) {
			o, err := e.orders.PlaceOrder(ctx, req, idempotencyKey)
			if err != nil {
				return store.Checkout{}, err
			}
			fillOrder(&o, req, form.CardName, customer)
			return store.Checkout{Order: o, CartKey: item.Key()}, nil
		})
	})
	c, _ := v.(store.Checkout)
	return c.Order, err
}

// fillOrder completes an order echo that omits fields the request carried.
func fillOrder(o *domain.Order, req gateway.PlaceOrderRequest, cardName, customer string) {
	if o.ProductID == "" {
		o.ProductID = req.ProductID
	}
	if o.Title == "" {
		o.Title = req.ProductName
	}
	if o.Quantity == 0 {
		o.Quantity = req.Quantity
	}
	if o.TotalPrice == 0 {
		o.TotalPrice = req.TotalPrice
	}
	if o.CardName == "" {
		o.CardName = cardName
	}
	if o.Customer == "" {
		o.Customer = customer
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
}

// LoadMyOrders replaces the orders domain with the signed-in user's orders.
func (e *Engine) LoadMyOrders(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listMyOrders", store.ReplaceOrders(), e.orders.ListMyOrders)
	return err
}

// LoadAllOrders replaces the orders domain with every order (admin).
func (e *Engine) LoadAllOrders(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listAllOrders", store.ReplaceOrders(), e.orders.ListAllOrders)
	return err
}

// UpdateOrderStatus changes an order's status (admin) and overwrites the
// stored order with the result.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	ve := &ValidationError{Form: "orderStatus"}
	orderID = strings.TrimSpace(orderID)
	if reason := segmentReason(orderID); reason != "" {
		ve.add("orderId", reason)
	}
	st, err := domain.ParseOrderStatus(status)
	if err != nil || strings.TrimSpace(status) == "" {
		ve.add("status", "oneof")
	}
	if err := ve.orNil(); err != nil {
		return domain.Order{}, err
	}
	return store.Run(ctx, e.store, "updateOrderStatus", store.UpdateOrder(), func(ctx context.Context) (domain.Order, error) {
		o, err := e.orders.UpdateOrderStatus(ctx, orderID, st)
		if err != nil {
			return domain.Order{}, err
		}
		if o.ID == "" {
			// Backend acknowledged without a body; patch the held copy.
			o = e.heldOrder(orderID)
		}
		o.Status = st
		return o, nil
	})
}

func (e *Engine) heldOrder(id string) domain.Order {
	for _, o := range e.store.Orders() {
		if o.ID == id {
			return o
		}
	}
	return domain.Order{ID: id}
}

// --- Session and users ---

// CheckSession asks the backend who is signed in and fills currentUser.
func (e *Engine) CheckSession(ctx context.Context) (domain.User, error) {
	return store.Run(ctx, e.store, "currentUser", store.SetCurrentUser(), e.users.CurrentUser)
}

// LoadProfile fills the profile slot.
func (e *Engine) LoadProfile(ctx context.Context) (domain.User, error) {
	return store.Run(ctx, e.store, "profile", store.SetProfile(), e.users.Profile)
}

// Login signs in and fills currentUser with the returned user. A rejected
// login is reported on the auth domain; an existing session is untouched.
func (e *Engine) Login(ctx context.Context, in gateway.Credentials) (domain.User, error) {
	if err := checkStruct(e.validate, "login", in).orNil(); err != nil {
		return domain.User{}, err
	}
	return store.Run(ctx, e.store, "login", store.SignIn(), func(ctx context.Context) (domain.User, error) {
		return e.users.Login(ctx, in)
	})
}

// Register creates an account. It does not sign the user in.
func (e *Engine) Register(ctx context.Context, in gateway.Registration) error {
	if err := checkStruct(e.validate, "register", in).orNil(); err != nil {
		return err
	}
	_, err := store.Run(ctx, e.store, "register", store.Acknowledge[struct{}](store.DomainAuth), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.users.Register(ctx, in)
	})
	return err
}

// Logout ends the session and clears currentUser and profile.
func (e *Engine) Logout(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "logout", store.ClearSession(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.users.Logout(ctx)
	})
	return err
}

// LoadUsers replaces the users domain (admin).
func (e *Engine) LoadUsers(ctx context.Context) error {
	_, err := store.Run(ctx, e.store, "listUsers", store.ReplaceUsers(), e.users.ListUsers)
	return err
}

// --- Refresh ---

// Refresh reloads one domain with its list operation. Product details have
// no refresh since they need an id.
func (e *Engine) Refresh(ctx context.Context, d store.Domain) error {
	switch d {
	case store.DomainProducts:
		return e.LoadAllProducts(ctx)
	case store.DomainMyProducts:
		return e.LoadMyProducts(ctx)
	case store.DomainFavorites:
		return e.LoadFavorites(ctx)
	case store.DomainCart:
		return e.LoadCart(ctx)
	case store.DomainOrders:
		return e.loadOrders(ctx)
	case store.DomainCurrentUser:
		_, err := e.CheckSession(ctx)
		return err
	case store.DomainProfile:
		_, err := e.LoadProfile(ctx)
		return err
	case store.DomainUsers:
		return e.LoadUsers(ctx)
	}
	return ErrUnknownDomain
}

// loadOrders picks the admin or the personal order list from the session.
func (e *Engine) loadOrders(ctx context.Context) error {
	if u, ok := e.store.CurrentUser(); ok && u.IsAdmin() {
		return e.LoadAllOrders(ctx)
	}
	return e.LoadMyOrders(ctx)
}

// Prefetch starts a refresh of each domain without waiting. Each domain is
// marked loading before Prefetch returns; the returned channel yields one
// result per domain and is closed after the last.
func (e *Engine) Prefetch(ctx context.Context, domains ...store.Domain) <-chan error {
	out := make(chan error, len(domains))
	pending := make([]<-chan struct{}, 0, len(domains))
	errs := make([]func() error, 0, len(domains))
	for _, d := range domains {
		done, result := e.dispatch(ctx, d)
		pending = append(pending, done)
		errs = append(errs, result)
	}
	go func() {
		defer close(out)
		for i, done := range pending {
			<-done
			out <- errs[i]()
		}
	}()
	return out
}

func (e *Engine) dispatch(ctx context.Context, d store.Domain) (<-chan struct{}, func() error) {
	switch d {
	case store.DomainProducts:
		return wrap(store.Dispatch(ctx, e.store, "listAllProducts", store.ReplaceProducts(d), e.products.ListAllProducts))
	case store.DomainMyProducts:
		return wrap(store.Dispatch(ctx, e.store, "listMyProducts", store.ReplaceProducts(d), e.products.ListMyProducts))
	case store.DomainFavorites:
		return wrap(store.Dispatch(ctx, e.store, "listFavourites", store.ReplaceProducts(d), e.products.ListFavourites))
	case store.DomainCart:
		return wrap(store.Dispatch(ctx, e.store, "listCartItems", store.ReplaceCart(), e.orders.ListCartItems))
	case store.DomainOrders:
		list := e.orders.ListMyOrders
		op := "listMyOrders"
		if u, ok := e.store.CurrentUser(); ok && u.IsAdmin() {
			list, op = e.orders.ListAllOrders, "listAllOrders"
		}
		return wrap(store.Dispatch(ctx, e.store, op, store.ReplaceOrders(), list))
	case store.DomainCurrentUser:
		return wrap(store.Dispatch(ctx, e.store, "currentUser", store.SetCurrentUser(), e.users.CurrentUser))
	case store.DomainProfile:
		return wrap(store.Dispatch(ctx, e.store, "profile", store.SetProfile(), e.users.Profile))
	case store.DomainUsers:
		return wrap(store.Dispatch(ctx, e.store, "listUsers", store.ReplaceUsers(), e.users.ListUsers))
	}
	done := make(chan struct{})
	close(done)
	return done, func() error { return ErrUnknownDomain }
}

func wrap[T any](p *store.Pending[T]) (<-chan struct{}, func() error) {
	return p.Done(), func() error {
		_, err := p.Wait(context.Background())
		return err
	}
}

// Bootstrap checks the session and loads the full listing concurrently. Both
// settle even if one fails; the first error is returned.
func (e *Engine) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := e.CheckSession(ctx)
		if signedOut(err) {
			// Signed out is a valid starting state.
			e.logger.Info("no active session", zap.Error(err))
			return nil
		}
		return err
	})
	g.Go(func() error { return e.LoadAllProducts(ctx) })
	if err := g.Wait(); err != nil {
		e.logger.Warn("bootstrap incomplete", zap.Error(err))
		return err
	}
	_, signedIn := e.store.CurrentUser()
	e.logger.Info("bootstrap complete",
		zap.Int("products", len(e.store.Products(store.DomainProducts))),
		zap.Bool("signed_in", signedIn))
	return nil
}

// signedOut reports whether err is the backend refusing the session rather
// than a failed call.
func signedOut(err error) bool {
	if errors.Is(err, gateway.ErrNotAuthenticated) {
		return true
	}
	return gateway.IsStatus(err, http.StatusUnauthorized) || gateway.IsStatus(err, http.StatusForbidden)
}
