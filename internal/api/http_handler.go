package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"storefront-sync/internal/authz"
	"storefront-sync/internal/catalog"
	"storefront-sync/internal/derive"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/gateway"
	"storefront-sync/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client's submission key for form posts.
const IdempotencyHeader = "Idempotency-Key"

const maxUploadBytes = 32 << 20

// HTTPHandler serves the store's read model and forwards commands to the
// catalog engine.
type HTTPHandler struct {
	engine   *catalog.Engine
	gate     *authz.Gate
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(engine *catalog.Engine, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		engine:   engine,
		gate:     authz.NewGate(engine.Store()),
		validate: validator.New(),
		logger:   logger.Named("http"),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			zap.L().Error("failed to encode JSON response", zap.Error(err))
		}
	}
}

// respondWithEngineError maps an engine error onto an HTTP status.
func (h *HTTPHandler) respondWithEngineError(w http.ResponseWriter, op string, err error) {
	var ve *catalog.ValidationError
	var se *gateway.StatusError
	var te *gateway.TransportError
	switch {
	case errors.As(err, &ve):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: ve.Fields})
	case errors.Is(err, catalog.ErrUnknownDomain),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, catalog.ErrCartItemNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case store.IsDiscarded(err):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &se):
		h.logger.Warn("backend rejected request", zap.String("op", op), zap.Error(err))
		code := http.StatusBadGateway
		if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusNotFound {
			code = se.StatusCode
		}
		respondWithError(w, code, se.Error())
	case errors.As(err, &te):
		h.logger.Error("backend unreachable", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusBadGateway, te.Error())
	default:
		h.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// parseSpec reads the product filter from the query string.
func parseSpec(r *http.Request) (derive.Spec, derive.SortKey, error) {
	q := r.URL.Query()
	spec := derive.Spec{
		Condition: q.Get("condition"),
		Location:  q.Get("location"),
	}
	for name, dst := range map[string]**decimal.Decimal{"minPrice": &spec.MinPrice, "maxPrice": &spec.MaxPrice} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return derive.Spec{}, "", fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = &d
	}
	if c := spec.Condition; c != "" && !strings.EqualFold(c, derive.ConditionAll) &&
		!strings.EqualFold(c, string(domain.ConditionNew)) && !strings.EqualFold(c, string(domain.ConditionUsed)) {
		return derive.Spec{}, "", fmt.Errorf("invalid condition %q", c)
	}
	key, ok := derive.ParseSortKey(q.Get("sort"))
	if !ok {
		return derive.Spec{}, "", fmt.Errorf("invalid sort %q", q.Get("sort"))
	}
	return spec, key, nil
}

// --- State Handlers ---

func (h *HTTPHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.Store().Snapshot().Status)
}

func (h *HTTPHandler) GetDomainState(w http.ResponseWriter, r *http.Request) {
	d := store.Domain(chi.URLParam(r, "domain"))
	if !d.Valid() {
		respondWithError(w, http.StatusNotFound, "Unknown domain: "+string(d))
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.Store().Status(d))
}

// SyncDomain reloads one domain from the backend and returns its status.
func (h *HTTPHandler) SyncDomain(w http.ResponseWriter, r *http.Request) {
	d := store.Domain(chi.URLParam(r, "domain"))
	if !d.Valid() {
		respondWithError(w, http.StatusNotFound, "Unknown domain: "+string(d))
		return
	}
	if err := h.engine.Refresh(r.Context(), d); err != nil {
		h.respondWithEngineError(w, "sync "+string(d), err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.Store().Status(d))
}

// --- Category Handlers ---

// CategoryBucket is one category with its products from the products domain.
type CategoryBucket struct {
	domain.Category
	Count    int              `json:"count"`
	Products []domain.Product `json:"products"`
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	buckets := h.engine.Buckets()
	out := make([]CategoryBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, CategoryBucket{Category: b.Category, Count: len(b.Products), Products: b.Products})
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"data":   out,
		"status": h.engine.Store().Status(store.DomainProducts),
	})
}

func (h *HTTPHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	spec, key, err := parseSpec(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, products, err := h.engine.CategoryListing(chi.URLParam(r, "categoryId"), spec, key)
	if err != nil {
		h.respondWithEngineError(w, "list category products", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"category": c,
		"data":     products,
	})
}

// LoadCategory replaces the products domain with one category's listing.
func (h *HTTPHandler) LoadCategory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.Category(chi.URLParam(r, "categoryId"))
	if !ok {
		respondWithError(w, http.StatusNotFound, catalog.ErrCategoryNotFound.Error())
		return
	}
	if err := h.engine.LoadCategory(r.Context(), c.Name); err != nil {
		h.respondWithEngineError(w, "load category", err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.Store().Status(store.DomainProducts))
}

// --- Product Handlers ---

var productDomains = map[string]store.Domain{
	"":          store.DomainProducts,
	"all":       store.DomainProducts,
	"mine":      store.DomainMyProducts,
	"favorites": store.DomainFavorites,
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	d, ok := productDomains[r.URL.Query().Get("scope")]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid scope. Allowed: all, mine, favorites")
		return
	}
	spec, key, err := parseSpec(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	products := h.engine.Listing(d, spec, key)
	if term := r.URL.Query().Get("q"); term != "" {
		products = derive.SearchProducts(products, term)
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"data":   products,
		"status": h.engine.Store().Status(d),
	})
}

// GetProductByID serves the details slot when it holds the product, else
// any held copy.
func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	if p, ok := h.engine.Store().ProductDetails(); ok && p.ID == id {
		respondWithJSON(w, http.StatusOK, p)
		return
	}
	if p, ok := h.engine.Store().FindProduct(id); ok {
		respondWithJSON(w, http.StatusOK, p)
		return
	}
	respondWithError(w, http.StatusNotFound, "Product not found")
}

func (h *HTTPHandler) LoadProductDetails(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.LoadProductDetails(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.respondWithEngineError(w, "load product details", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// CreateProduct accepts the sell form as multipart/form-data with up to five
// "images" file parts.
func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	in, err := readProductForm(r.MultipartForm)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.engine.AddProduct(r.Context(), in, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.respondWithEngineError(w, "create product", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func readProductForm(form *multipart.Form) (gateway.NewProduct, error) {
	value := func(name string) string {
		if vs := form.Value[name]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}
	in := gateway.NewProduct{
		Title:       value("title"),
		Category:    value("category"),
		Description: value("description"),
		Location:    value("location"),
		Condition:   domain.Condition(value("condition")),
	}
	if raw := value("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return in, fmt.Errorf("invalid price %q", raw)
		}
		in.Price = price
	}
	if raw := value("stock"); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			return in, fmt.Errorf("invalid stock %q", raw)
		}
		in.Stock = stock
	}
	for _, fh := range form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return in, fmt.Errorf("read image %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return in, fmt.Errorf("read image %q: %w", fh.Filename, err)
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(data)
		}
		in.Images = append(in.Images, gateway.ImageUpload{Filename: fh.Filename, ContentType: ct, Data: data})
	}
	return in, nil
}

func (h *HTTPHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.AddFavorite(r.Context(), chi.URLParam(r, "productId")); err != nil {
		h.respondWithEngineError(w, "add favourite", err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.Store().Status(store.DomainFavorites))
}

// --- Cart Handlers ---

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"data":    h.engine.Store().CartItems(),
		"summary": h.engine.CartSummary(),
		"status":  h.engine.Store().Status(store.DomainCart),
	})
}

// AddToCartInput is the body of POST /cart.
type AddToCartInput struct {
	ProductID string `json:"productId" validate:"required"`
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var input AddToCartInput
	if err := decodeBody(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	item, err := h.engine.AddToCart(r.Context(), input.ProductID)
	if err != nil {
		h.respondWithEngineError(w, "add to cart", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveFromCart(r.Context(), chi.URLParam(r, "itemId")); err != nil {
		h.respondWithEngineError(w, "remove from cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) QuoteCartItem(w http.ResponseWriter, r *http.Request) {
	qty := 0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "Invalid quantity. Must be a positive integer")
			return
		}
		qty = n
	}
	q, err := h.engine.Quote(chi.URLParam(r, "itemId"), qty)
	if err != nil {
		h.respondWithEngineError(w, "quote cart item", err)
		return
	}
	respondWithJSON(w, http.StatusOK, q)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var form catalog.CheckoutForm
	if err := decodeBody(r, &form); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	order, err := h.engine.Checkout(r.Context(), form, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.respondWithEngineError(w, "place order", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, order)
}

// --- Order Handlers ---

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := derive.OrderQuery{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
	}
	view := h.engine.Orders(q)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"data":    view.Orders,
		"summary": view.Summary,
		"status":  h.engine.Store().Status(store.DomainOrders),
	})
}

// OrderStatusInput is the body of PUT /orders/{orderId}/status.
type OrderStatusInput struct {
	Status string `json:"status" validate:"required"`
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var input OrderStatusInput
	if err := decodeBody(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	order, err := h.engine.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderId"), input.Status)
	if err != nil {
		h.respondWithEngineError(w, "update order status", err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// --- Session Handlers ---

// SessionResponse is the access decision plus the signed-in user, if any.
type SessionResponse struct {
	authz.Decision
	User *domain.User `json:"user,omitempty"`
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{Decision: h.gate.Check()}
	if u, ok := h.engine.Store().CurrentUser(); ok {
		resp.User = &u
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in gateway.Credentials
	if err := decodeBody(r, &in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	u, err := h.engine.Login(r.Context(), in)
	if err != nil {
		h.respondWithEngineError(w, "log in", err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in gateway.Registration
	if err := decodeBody(r, &in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.engine.Register(r.Context(), in); err != nil {
		h.respondWithEngineError(w, "register", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"redirect": authz.LoginPath})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context()); err != nil {
		h.respondWithEngineError(w, "log out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.engine.Store().Profile()
	if !ok {
		var err error
		if u, err = h.engine.LoadProfile(r.Context()); err != nil {
			h.respondWithEngineError(w, "load profile", err)
			return
		}
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"data":   h.engine.Store().Users(),
		"status": h.engine.Store().Status(store.DomainUsers),
	})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/state/{domain}", h.GetDomainState)
		r.Post("/sync/{domain}", h.SyncDomain)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Get("/{categoryId}/products", h.ListCategoryProducts)
			r.Post("/{categoryId}/load", h.LoadCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.With(RequireRole(h.gate)).Post("/", h.CreateProduct)
			r.Get("/{productId}", h.GetProductByID)
			r.Post("/{productId}/load", h.LoadProductDetails)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
		})

		// Signed-in routes
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(h.gate))
			r.Get("/profile", h.GetProfile)
			r.Post("/favorites/{productId}", h.AddFavorite)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/", h.AddToCart)
				r.Delete("/{itemId}", h.RemoveFromCart)
				r.Get("/{itemId}/quote", h.QuoteCartItem)
			})
			r.Post("/checkout", h.Checkout)
			r.Get("/orders", h.ListOrders)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(h.gate, domain.RoleAdmin))
			r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
			r.Get("/users", h.ListUsers)
		})
	})
	h.logger.Info("HTTP routes registered")
}
