// Package store holds the normalized client-side state of the storefront and
// the envelope that is the only way to change it.
//
// A Store is created once at process start and lives for the whole session.
// Readers get copies; writers are Rules applied when an envelope settles.
package store

import (
	"sync"
	"time"

	"storefront-sync/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Domain names one slice of the store.
type Domain string

const (
	DomainProducts       Domain = "products"
	DomainMyProducts     Domain = "myProducts"
	DomainProductDetails Domain = "productDetails"
	DomainFavorites      Domain = "favorites"
	DomainCart           Domain = "cart"
	DomainOrders         Domain = "orders"
	DomainCurrentUser    Domain = "currentUser"
	DomainProfile        Domain = "profile"
	DomainUsers          Domain = "users"
	// DomainAuth tracks login, registration and logout submissions. Their
	// failures stay here and never mark the session check as failed.
	DomainAuth           Domain = "auth"
)

// AllDomains lists every domain of the store.
var AllDomains = []Domain{
	DomainProducts, DomainMyProducts, DomainProductDetails, DomainFavorites,
	DomainCart, DomainOrders, DomainCurrentUser, DomainProfile, DomainUsers,
	DomainAuth,
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	for _, known := range AllDomains {
		if d == known {
			return true
		}
	}
	return false
}

// Phase is the observable state of a domain's latest operation.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Policy decides what happens when several envelopes for one domain overlap.
type Policy int

const (
	// PolicyLastSettledWins applies every settlement in arrival order.
	PolicyLastSettledWins Policy = iota
	// PolicyLatestIssuedWins drops settlements older than the domain's most
	// recently issued request.
	PolicyLatestIssuedWins
)

func (p Policy) String() string {
	if p == PolicyLatestIssuedWins {
		return "latest-issued-wins"
	}
	return "last-settled-wins"
}

// Status is the loading/error view of one domain.
type Status struct {
	Domain    Domain       `json:"domain"`
	Phase     Phase        `json:"phase"`
	Loading   bool         `json:"loading"`
	Error     *DomainError `json:"error"`
	InFlight  int          `json:"inFlight"`
	Loaded    bool         `json:"loaded"`
	Version   uint64       `json:"version"`
	UpdatedAt time.Time    `json:"updatedAt,omitempty"`
}

type domainStatus struct {
	inflight  int
	issued    uint64
	phase     Phase
	err       *DomainError
	loaded    bool
	version   uint64
	updatedAt time.Time
}

func (st *domainStatus) view(d Domain) Status {
	out := Status{
		Domain:    d,
		Phase:     st.phase,
		Loading:   st.inflight > 0,
		InFlight:  st.inflight,
		Loaded:    st.loaded,
		Version:   st.version,
		UpdatedAt: st.updatedAt,
	}
	if st.err != nil {
		e := *st.err
		out.Error = &e
	}
	return out
}

type keyed interface {
	Key() string
}

// collection is an ordered set of entities with unique keys.
type collection[T keyed] struct {
	items []T
	index map[string]int
	clone func(T) T
}

func newCollection[T keyed](clone func(T) T) collection[T] {
	return collection[T]{index: map[string]int{}, clone: clone}
}

// replace overwrites the collection. Duplicate keys in items collapse onto the
// first position with the last value.
func (c *collection[T]) replace(items []T) {
	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, it := range items {
		c.upsert(it)
	}
}

// upsert appends item, or overwrites in place when its key is already present.
func (c *collection[T]) upsert(item T) {
	item = c.clone(item)
	if i, ok := c.index[item.Key()]; ok {
		c.items[i] = item
		return
	}
	c.index[item.Key()] = len(c.items)
	c.items = append(c.items, item)
}

func (c *collection[T]) remove(key string) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, key)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Key()] = j
	}
	return true
}

func (c *collection[T]) get(key string) (T, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return c.clone(c.items[i]), true
}

func (c *collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = c.clone(it)
	}
	return out
}

func identity[T any](v T) T { return v }

// Observer is notified of envelope activity. Calls happen outside the store
// lock, on the goroutine that issued or settled the envelope.
type Observer interface {
	Issued(operation string, d Domain)
	Settled(s Settlement)
}

// Store is the process-wide normalized state container.
type Store struct {
	mu sync.RWMutex

	products   collection[domain.Product]
	myProducts collection[domain.Product]
	favorites  collection[domain.Product]
	cart       collection[domain.CartItem]
	orders     collection[domain.Order]
	users      collection[domain.User]

	productDetails *domain.Product
	currentUser    *domain.User
	profile        *domain.User

	status map[Domain]*domainStatus

	policy    Policy
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the same-domain overlap policy.
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used for settlements.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers an observer of envelope activity.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) { s.tracer = tp.Tracer(tracerName) }
}

const tracerName = "storefront-sync/store"

// New creates an empty store. Every domain starts idle.
func New(opts ...Option) *Store {
	s := &Store{
		products:   newCollection(domain.Product.Clone),
		myProducts: newCollection(domain.Product.Clone),
		favorites:  newCollection(domain.Product.Clone),
		cart:       newCollection(domain.CartItem.Clone),
		orders:     newCollection(identity[domain.Order]),
		users:      newCollection(identity[domain.User]),
		status:     make(map[Domain]*domainStatus, len(AllDomains)),
		logger:     zap.NewNop(),
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		now:        time.Now,
	}
	for _, d := range AllDomains {
		s.status[d] = &domainStatus{phase: PhaseIdle}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("store")
	return s
}

// Policy returns the configured overlap policy.
func (s *Store) Policy() Policy { return s.policy }

// --- Read accessors ---

// Status returns the loading/error state of d.
func (s *Store) Status(d Domain) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[d]
	if !ok {
		return Status{Domain: d, Phase: PhaseIdle}
	}
	return st.view(d)
}

// Products returns the product collection of d, which must be one of the
// product domains (products, myProducts, favorites).
func (s *Store) Products(d Domain) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.productCollection(d)
	if c == nil {
		return []domain.Product{}
	}
	return c.snapshot()
}

// ProductDetails returns the product last loaded by a details fetch.
func (s *Store) ProductDetails() (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.productDetails == nil {
		return domain.Product{}, false
	}
	return s.productDetails.Clone(), true
}

// FindProduct looks id up across every product domain.
func (s *Store) FindProduct(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.productDetails != nil && s.productDetails.ID == id {
		return s.productDetails.Clone(), true
	}
	for _, c := range []*collection[domain.Product]{&s.products, &s.myProducts, &s.favorites} {
		if p, ok := c.get(id); ok {
			return p, true
		}
	}
	return domain.Product{}, false
}

// CartItems returns the cart.
func (s *Store) CartItems() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.snapshot()
}

// CartItem returns the cart item with the given key.
func (s *Store) CartItem(key string) (domain.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.get(key)
}

// Orders returns the order collection.
func (s *Store) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.snapshot()
}

// Users returns the admin user list.
func (s *Store) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.snapshot()
}

// CurrentUser returns the signed-in user, if the session check succeeded.
func (s *Store) CurrentUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return domain.User{}, false
	}
	return *s.currentUser, true
}

// Session returns the current-user status together with the signed-in user,
// read under one lock so the two always agree.
func (s *Store) Session() (Status, *domain.User) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status[DomainCurrentUser].view(DomainCurrentUser)
	if s.currentUser == nil {
		return st, nil
	}
	u := *s.currentUser
	return st, &u
}

// Profile returns the last loaded profile.
func (s *Store) Profile() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return domain.User{}, false
	}
	return *s.profile, true
}

// Snapshot is a consistent copy of the whole store.
type Snapshot struct {
	Products       []domain.Product  `json:"products"`
	MyProducts     []domain.Product  `json:"myProducts"`
	Favorites      []domain.Product  `json:"favorites"`
	ProductDetails *domain.Product   `json:"productDetails"`
	Cart           []domain.CartItem `json:"cart"`
	Orders         []domain.Order    `json:"orders"`
	Users          []domain.User     `json:"users"`
	CurrentUser    *domain.User      `json:"currentUser"`
	Profile        *domain.User      `json:"profile"`
	Status         map[Domain]Status `json:"status"`
}

// Snapshot copies every domain under a single read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Products:   s.products.snapshot(),
		MyProducts: s.myProducts.snapshot(),
		Favorites:  s.favorites.snapshot(),
		Cart:       s.cart.snapshot(),
		Orders:     s.orders.snapshot(),
		Users:      s.users.snapshot(),
		Status:     make(map[Domain]Status, len(s.status)),
	}
	if s.productDetails != nil {
		p := s.productDetails.Clone()
		snap.ProductDetails = &p
	}
	if s.currentUser != nil {
		u := *s.currentUser
		snap.CurrentUser = &u
	}
	if s.profile != nil {
		u := *s.profile
		snap.Profile = &u
	}
	for d, st := range s.status {
		snap.Status[d] = st.view(d)
	}
	return snap
}

func (s *Store) productCollection(d Domain) *collection[domain.Product] {
	switch d {
	case DomainProducts:
		return &s.products
	case DomainMyProducts:
		return &s.myProducts
	case DomainFavorites:
		return &s.favorites
	}
	return nil
}
