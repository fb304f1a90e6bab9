package store

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/gateway"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func products(ids ...string) []domain.Product {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Product{ID: id, Title: "p" + id, Price: decimal.NewFromInt(10)})
	}
	return out
}

func productIDs(ps []domain.Product) []string {
	out := []string{}
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func returning[T any](v T, err error) func(context.Context) (T, error) {
	return func(context.Context) (T, error) { return v, err }
}

// gated is a unit of work that blocks until released.
type gated[T any] struct {
	started chan struct{}
	release chan struct{}
	value   T
	err     error
}

func newGated[T any](v T, err error) *gated[T] {
	return &gated[T]{started: make(chan struct{}), release: make(chan struct{}), value: v, err: err}
}

func (g *gated[T]) work(ctx context.Context) (T, error) {
	close(g.started)
	<-g.release
	return g.value, g.err
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	return New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func TestNew_AllDomainsIdle(t *testing.T) {
	s := newTestStore(t)
	for _, d := range AllDomains {
		st := s.Status(d)
		assert.Equal(t, PhaseIdle, st.Phase, d)
		assert.False(t, st.Loading)
		assert.Nil(t, st.Error)
		assert.False(t, st.Loaded)
	}
	assert.Empty(t, s.Products(DomainProducts))
	_, ok := s.CurrentUser()
	assert.False(t, ok)
}

func TestRun_ReplaceSucceeds(t *testing.T) {
	s := newTestStore(t)

	got, err := Run(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), returning(products("1", "2"), nil))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	st := s.Status(DomainProducts)
	assert.Equal(t, PhaseSucceeded, st.Phase)
	assert.False(t, st.Loading)
	assert.True(t, st.Loaded)
	assert.Nil(t, st.Error)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, []string{"1", "2"}, productIDs(s.Products(DomainProducts)))
	// Other domains are untouched.
	assert.Equal(t, PhaseIdle, s.Status(DomainMyProducts).Phase)
}

func TestRun_LoadingVisibleWhileInFlight(t *testing.T) {
	s := newTestStore(t)
	g := newGated(products("1"), nil)

	p := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), g.work)
	// Dispatch marks loading before it returns.
	st := s.Status(DomainProducts)
	assert.True(t, st.Loading)
	assert.Equal(t, PhasePending, st.Phase)
	assert.Equal(t, 1, st.InFlight)

	<-g.started
	close(g.release)
	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Status(DomainProducts).Loading)
	assert.Equal(t, OutcomeSucceeded, p.Settlement().Outcome)
}

func TestRun_FailureKeepsPreviousData(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), returning(products("1", "2"), nil))
	require.NoError(t, err)

	boom := &gateway.StatusError{Op: "GET /allProducts", StatusCode: http.StatusInternalServerError, Message: "db down"}
	_, err = Run(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), returning([]domain.Product(nil), error(boom)))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	st := s.Status(DomainProducts)
	assert.Equal(t, PhaseFailed, st.Phase)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindStatus, st.Error.Kind)
	assert.Equal(t, http.StatusInternalServerError, st.Error.Code)
	assert.Contains(t, st.Error.Message, "HTTP error! status: 500")
	assert.True(t, st.Loaded)
	assert.Equal(t, []string{"1", "2"}, productIDs(s.Products(DomainProducts)))

	// The next start clears the error.
	g := newGated(products("3"), nil)
	p := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), g.work)
	assert.Nil(t, s.Status(DomainProducts).Error)
	close(g.release)
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, productIDs(s.Products(DomainProducts)))
}

func TestRun_TransportErrorMessageVerbatim(t *testing.T) {
	s := newTestStore(t)
	te := &gateway.TransportError{Op: "GET /user/cartItems", Err: errors.New("connection refused")}

	_, err := Run(context.Background(), s, "listCartItems", ReplaceCart(), returning([]domain.CartItem(nil), error(te)))
	require.Error(t, err)

	st := s.Status(DomainCart)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindTransport, st.Error.Kind)
	assert.Equal(t, te.Error(), st.Error.Message)
	assert.Zero(t, st.Error.Code)
}

func TestRun_LastSettledWins(t *testing.T) {
	s := newTestStore(t)
	first := newGated(products("first"), nil)
	second := newGated(products("second"), nil)

	p1 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), first.work)
	p2 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), second.work)
	assert.Equal(t, 2, s.Status(DomainProducts).InFlight)

	// Second request settles first.
	close(second.release)
	_, err := p2.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Status(DomainProducts).Loading, "one request still in flight")
	assert.Equal(t, []string{"second"}, productIDs(s.Products(DomainProducts)))

	close(first.release)
	_, err = p1.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Status(DomainProducts).Loading)
	assert.Equal(t, []string{"first"}, productIDs(s.Products(DomainProducts)))
	assert.Equal(t, uint64(2), s.Status(DomainProducts).Version)
}

func TestCart_AppendSettlingAfterListKeepsBoth(t *testing.T) {
	s := newTestStore(t)
	add := newGated(domain.CartItem{ID: "c3", ProductID: "p3"}, nil)
	list := newGated([]domain.CartItem{{ID: "c1"}, {ID: "c2"}}, nil)

	pAdd := Dispatch(context.Background(), s, "addToCart", AppendCartItem(), add.work)
	pList := Dispatch(context.Background(), s, "listCartItems", ReplaceCart(), list.work)

	close(list.release)
	_, err := pList.Wait(context.Background())
	require.NoError(t, err)
	close(add.release)
	_, err = pAdd.Wait(context.Background())
	require.NoError(t, err)

	keys := []string{}
	for _, it := range s.CartItems() {
		keys = append(keys, it.Key())
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, keys)
	assert.False(t, s.Status(DomainCart).Loading)
}

func TestRun_LatestIssuedWinsDropsStale(t *testing.T) {
	s := newTestStore(t, WithPolicy(PolicyLatestIssuedWins))
	require.Equal(t, PolicyLatestIssuedWins, s.Policy())
	first := newGated(products("first"), nil)
	second := newGated(products("second"), nil)

	p1 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), first.work)
	p2 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), second.work)

	close(second.release)
	_, err := p2.Wait(context.Background())
	require.NoError(t, err)

	close(first.release)
	_, err = p1.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, IsDiscarded(err))
	assert.Equal(t, OutcomeStale, p1.Settlement().Outcome)

	st := s.Status(DomainProducts)
	assert.False(t, st.Loading)
	assert.Equal(t, PhaseSucceeded, st.Phase)
	assert.Equal(t, []string{"second"}, productIDs(s.Products(DomainProducts)))
}

func TestRun_StaleFailureDoesNotOverwriteError(t *testing.T) {
	s := newTestStore(t, WithPolicy(PolicyLatestIssuedWins))
	first := newGated([]domain.Product(nil), errors.New("old failure"))
	second := newGated(products("ok"), nil)

	p1 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), first.work)
	p2 := Dispatch(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), second.work)
	close(second.release)
	_, _ = p2.Wait(context.Background())
	close(first.release)
	_, err := p1.Wait(context.Background())

	assert.True(t, IsDiscarded(err))
	assert.Nil(t, s.Status(DomainProducts).Error)
}

func TestRun_CancelledContextDiscardsResult(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "listCartItems", ReplaceCart(), returning([]domain.CartItem{{ID: "keep"}}, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	g := newGated([]domain.CartItem{{ID: "late"}}, nil)
	p := Dispatch(ctx, s, "listCartItems", ReplaceCart(), g.work)
	<-g.started
	cancel()
	close(g.release)
	<-p.Done()

	assert.Equal(t, OutcomeCancelled, p.Settlement().Outcome)
	_, err = p.Wait(context.Background())
	assert.True(t, IsDiscarded(err))

	st := s.Status(DomainCart)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Error)
	assert.Equal(t, PhaseSucceeded, st.Phase)
	items := s.CartItems()
	require.Len(t, items, 1)
	assert.Equal(t, "keep", items[0].ID)
}

func TestRun_PanicBecomesInternalFailure(t *testing.T) {
	s := newTestStore(t)

	_, err := Run(context.Background(), s, "listUsers", ReplaceUsers(), func(context.Context) ([]domain.User, error) {
		panic("nil map")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkPanicked)

	st := s.Status(DomainUsers)
	assert.False(t, st.Loading)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindInternal, st.Error.Kind)
}

func TestAppendProduct_ReplacesExistingInPlace(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "listMyProducts", ReplaceProducts(DomainMyProducts), returning(products("a", "b"), nil))
	require.NoError(t, err)

	updated := domain.Product{ID: "a", Title: "renamed"}
	_, err = Run(context.Background(), s, "addProduct", AppendProduct(DomainMyProducts), returning(updated, nil))
	require.NoError(t, err)
	_, err = Run(context.Background(), s, "addProduct", AppendProduct(DomainMyProducts), returning(domain.Product{ID: "c"}, nil))
	require.NoError(t, err)

	got := s.Products(DomainMyProducts)
	assert.Equal(t, []string{"a", "b", "c"}, productIDs(got))
	assert.Equal(t, "renamed", got[0].Title)
}

func TestReplaceProducts_DuplicateIDsCollapse(t *testing.T) {
	s := newTestStore(t)
	in := []domain.Product{{ID: "x", Title: "one"}, {ID: "y"}, {ID: "x", Title: "two"}}

	_, err := Run(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), returning(in, nil))
	require.NoError(t, err)

	got := s.Products(DomainProducts)
	assert.Equal(t, []string{"x", "y"}, productIDs(got))
	assert.Equal(t, "two", got[0].Title)
}

func TestAppendFoundProduct_NilLeavesCollection(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "addFavourite", AppendFoundProduct(DomainFavorites), returning((*domain.Product)(nil), nil))
	require.NoError(t, err)
	assert.Empty(t, s.Products(DomainFavorites))
	assert.True(t, s.Status(DomainFavorites).Loaded)
}

func TestAppendProduct_PanicsOnWrongDomain(t *testing.T) {
	assert.Panics(t, func() { AppendProduct(DomainCart) })
}

func TestCheckout_AppendsOrderAndRemovesCartItem(t *testing.T) {
	s := newTestStore(t)
	cart := []domain.CartItem{{ID: "c1", ProductID: "p1"}, {ID: "c2", ProductID: "p2"}}
	_, err := Run(context.Background(), s, "listCartItems", ReplaceCart(), returning(cart, nil))
	require.NoError(t, err)
	cartVersion := s.Status(DomainCart).Version

	order := domain.Order{ID: "o1", ProductID: "p1", Quantity: 2, TotalPrice: 3000, Status: domain.OrderPending}
	_, err = Run(context.Background(), s, "placeOrder", CompleteCheckout(), returning(Checkout{Order: order, CartKey: "c1"}, nil))
	require.NoError(t, err)

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	items := s.CartItems()
	require.Len(t, items, 1)
	assert.Equal(t, "c2", items[0].ID)
	assert.Greater(t, s.Status(DomainCart).Version, cartVersion)
	assert.Equal(t, PhaseSucceeded, s.Status(DomainOrders).Phase)
}

func TestRemoveCartItem_MissingKeyIsNoop(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "removeFromCart", RemoveCartItem(), returning("nope", nil))
	require.NoError(t, err)
	assert.Empty(t, s.CartItems())
}

func TestClearSession(t *testing.T) {
	s := newTestStore(t)
	u := domain.User{ID: "u1", Role: domain.RoleUser}
	_, err := Run(context.Background(), s, "currentUser", SetCurrentUser(), returning(u, nil))
	require.NoError(t, err)
	_, err = Run(context.Background(), s, "profile", SetProfile(), returning(u, nil))
	require.NoError(t, err)

	_, err = Run(context.Background(), s, "logout", ClearSession(), returning(struct{}{}, nil))
	require.NoError(t, err)

	_, ok := s.CurrentUser()
	assert.False(t, ok)
	_, ok = s.Profile()
	assert.False(t, ok)
	assert.True(t, s.Status(DomainCurrentUser).Loaded)
	assert.Equal(t, PhaseSucceeded, s.Status(DomainAuth).Phase)
}

func TestSignIn_SettlesSessionSlot(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "currentUser", SetCurrentUser(), returning(domain.User{}, errors.New("no session")))
	require.Error(t, err)
	require.NotNil(t, s.Status(DomainCurrentUser).Error)

	_, err = Run(context.Background(), s, "login", SignIn(), returning(domain.User{ID: "u1"}, nil))
	require.NoError(t, err)

	st, u := s.Session()
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, st.Loaded)
	assert.Nil(t, st.Error)
	assert.Equal(t, PhaseSucceeded, st.Phase)
}

func TestSignIn_FailureLeavesSessionAlone(t *testing.T) {
	s := newTestStore(t)
	_, err := Run(context.Background(), s, "currentUser", SetCurrentUser(), returning(domain.User{ID: "u1", Role: domain.RoleAdmin}, nil))
	require.NoError(t, err)
	before := s.Status(DomainCurrentUser)

	_, err = Run(context.Background(), s, "login", SignIn(), returning(domain.User{}, &gateway.StatusError{Op: "POST /auth/login", StatusCode: 401, Message: "bad credentials"}))
	require.Error(t, err)

	st, u := s.Session()
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.Nil(t, st.Error)
	assert.Equal(t, before, st)
	require.NotNil(t, s.Status(DomainAuth).Error)
	assert.Equal(t, KindStatus, s.Status(DomainAuth).Error.Kind)
}

func TestSession_CopiesUser(t *testing.T) {
	s := newTestStore(t)
	st, u := s.Session()
	assert.Nil(t, u)
	assert.False(t, st.Loaded)
	assert.Equal(t, DomainCurrentUser, st.Domain)

	_, err := Run(context.Background(), s, "currentUser", SetCurrentUser(), returning(domain.User{ID: "u1", Email: "a@b.c"}, nil))
	require.NoError(t, err)
	_, u = s.Session()
	require.NotNil(t, u)
	u.Email = "changed"
	got, _ := s.CurrentUser()
	assert.Equal(t, "a@b.c", got.Email)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestStore(t)
	in := products("1")
	in[0].Images = []string{"a.png"}
	_, err := Run(context.Background(), s, "listAllProducts", ReplaceProducts(DomainProducts), returning(in, nil))
	require.NoError(t, err)

	// Mutating the caller's slice after settlement does not leak in.
	in[0].Images[0] = "changed.png"
	snap := s.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "a.png", snap.Products[0].Images[0])

	snap.Products[0].Images[0] = "mutated.png"
	assert.Equal(t, "a.png", s.Products(DomainProducts)[0].Images[0])
	assert.Len(t, snap.Status, len(AllDomains))
}

type recordingObserver struct {
	mu      sync.Mutex
	issued  []string
	settled []Settlement
}

func (o *recordingObserver) Issued(op string, d Domain) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued = append(o.issued, op+"@"+string(d))
}

func (o *recordingObserver) Settled(s Settlement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = append(o.settled, s)
}

func TestObserver_SeesIssueAndSettlement(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestStore(t, WithObserver(obs))
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := Run(context.Background(), s, "listMyOrders", ReplaceOrders(), returning([]domain.Order{{ID: "o1"}}, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"listMyOrders@orders"}, obs.issued)
	require.Len(t, obs.settled, 1)
	got := obs.settled[0]
	assert.Equal(t, OutcomeSucceeded, got.Outcome)
	assert.Equal(t, DomainOrders, got.Domain)
	assert.Equal(t, uint64(1), got.Seq)
	// begin, apply and settle each read the clock once.
	assert.Equal(t, 2*time.Second, got.Duration)
	assert.Zero(t, got.InFlight)
	assert.Equal(t, clock.Add(-time.Second), s.Status(DomainOrders).UpdatedAt)
}

func TestRun_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s := newTestStore(t, WithTracerProvider(tp))

	_, err := Run(context.Background(), s, "listAllOrders", ReplaceOrders(), returning([]domain.Order(nil), errors.New("boom")))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "store.listAllOrders", span.Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "orders", attrs["store.domain"].AsString())
	assert.Equal(t, "failed", attrs["store.outcome"].AsString())
	assert.Equal(t, "last-settled-wins", attrs["store.policy"].AsString())
	assert.Equal(t, "replace-list", attrs["store.rule"].AsString())
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))

	de := NormalizeError(context.DeadlineExceeded)
	assert.Equal(t, KindTransport, de.Kind)

	de = NormalizeError(&gateway.StatusError{Op: "GET /auth/me", StatusCode: 200, Err: gateway.ErrNotAuthenticated})
	assert.Equal(t, KindStatus, de.Kind)
	assert.Equal(t, 200, de.Code)

	de = NormalizeError(errors.New("plain"))
	assert.Equal(t, KindInternal, de.Kind)
	assert.Equal(t, "plain", de.Message)
}
