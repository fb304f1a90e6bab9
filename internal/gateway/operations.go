package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"storefront-sync/internal/domain"

	"go.uber.org/zap"
)

var _ Gateway = (*HTTPGateway)(nil)

// --- ProductGateway Implementation ---

func (g *HTTPGateway) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return g.listProducts(ctx, request{method: http.MethodGet, path: "/allProducts"})
}

func (g *HTTPGateway) ListMyProducts(ctx context.Context) ([]domain.Product, error) {
	return g.listProducts(ctx, request{method: http.MethodGet, path: "/user/myProducts"})
}

func (g *HTTPGateway) ListFavourites(ctx context.Context) ([]domain.Product, error) {
	return g.listProducts(ctx, request{method: http.MethodGet, path: "/user/favourite"})
}

// ListCategoryProducts accepts both a bare array and a {data: [...]} body.
func (g *HTTPGateway) ListCategoryProducts(ctx context.Context, category string) ([]domain.Product, error) {
	req := request{method: http.MethodGet, path: "/category/" + url.PathEscape(category)}
	dtos, conv, err := fetchList[productDTO](ctx, g, req)
	if err != nil {
		return nil, err
	}
	return conv.products(dtos)
}

func (g *HTTPGateway) listProducts(ctx context.Context, req request) ([]domain.Product, error) {
	dtos, conv, err := fetchData[[]productDTO](ctx, g, req)
	if err != nil {
		return nil, err
	}
	return conv.products(dtos)
}

func (g *HTTPGateway) GetProductDetails(ctx context.Context, id string) (domain.Product, error) {
	req := request{method: http.MethodGet, path: "/productDetails/" + url.PathEscape(id)}
	dto, conv, err := fetchData[productDTO](ctx, g, req)
	if err != nil {
		return domain.Product{}, err
	}
	return conv.product(dto)
}

// AddProduct posts the listing as multipart form data, one "images" part per file.
func (g *HTTPGateway) AddProduct(ctx context.Context, in NewProduct, idempotencyKey string) (domain.Product, error) {
	body, contentType, err := encodeProductForm(in)
	if err != nil {
		return domain.Product{}, &TransportError{Op: "POST /user/addProduct", Err: err}
	}
	req := request{
		method:         http.MethodPost,
		path:           "/user/addProduct",
		rawBody:        body,
		contentType:    contentType,
		idempotencyKey: idempotencyKey,
	}
	dto, conv, err := fetchData[productDTO](ctx, g, req)
	if err != nil {
		return domain.Product{}, err
	}
	return conv.product(dto)
}

func encodeProductForm(in NewProduct) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := []struct{ name, value string }{
		{"title", in.Title},
		{"price", in.Price.String()},
		{"category", in.Category},
		{"description", in.Description},
		{"location", in.Location},
		{"condition", string(in.Condition)},
		{"stock", strconv.Itoa(in.Stock)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", f.name, err)
		}
	}
	for _, img := range in.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Filename))
		h.Set("Content-Type", img.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating image part %s: %w", img.Filename, err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("writing image part %s: %w", img.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// AddFavourite returns the favourited product when the gateway echoes one,
// nil when its data is an acknowledgement of some other shape, such as the
// favourite record itself.
func (g *HTTPGateway) AddFavourite(ctx context.Context, productID string) (*domain.Product, error) {
	req := request{method: http.MethodPost, path: "/user/favourite/" + url.PathEscape(productID)}
	resp, err := g.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var ack map[string]json.RawMessage
	if err := decodeJSON(req.op(), resp.body, &ack); err != nil {
		return nil, err
	}
	var env dataEnvelope[productDTO]
	if json.Unmarshal(resp.body, &env) != nil || env.Data == nil || env.Data.ID == "" {
		return nil, nil
	}
	p, err := g.converter(req, resp).product(*env.Data)
	if err != nil {
		g.logger.Debug("favourite echo is not a product", zap.String("product_id", productID), zap.Error(err))
		return nil, nil
	}
	return &p, nil
}

// --- OrderGateway Implementation ---

func (g *HTTPGateway) AddToCart(ctx context.Context, productID string) (domain.CartItem, error) {
	req := request{method: http.MethodPost, path: "/user/addToCart", jsonBody: addToCartBody{ID: productID}}
	dto, conv, err := fetchData[cartItemDTO](ctx, g, req)
	if err != nil {
		return domain.CartItem{}, err
	}
	if dto.ProductID == "" {
		dto.ProductID = productID
	}
	return conv.cartItem(dto)
}

func (g *HTTPGateway) ListCartItems(ctx context.Context) ([]domain.CartItem, error) {
	req := request{method: http.MethodGet, path: "/user/cartItems"}
	dtos, conv, err := fetchList[cartItemDTO](ctx, g, req)
	if err != nil {
		return nil, err
	}
	return conv.cartItems(dtos)
}

func (g *HTTPGateway) PlaceOrder(ctx context.Context, in PlaceOrderRequest, idempotencyKey string) (domain.Order, error) {
	req := request{
		method:         http.MethodPost,
		path:           "/user/addOrder",
		jsonBody:       in,
		idempotencyKey: idempotencyKey,
	}
	dto, conv, err := fetchData[orderDTO](ctx, g, req)
	if err != nil {
		return domain.Order{}, err
	}
	return conv.order(dto)
}

func (g *HTTPGateway) ListMyOrders(ctx context.Context) ([]domain.Order, error) {
	return g.listOrders(ctx, request{method: http.MethodGet, path: "/user/myOrders"})
}

func (g *HTTPGateway) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return g.listOrders(ctx, request{method: http.MethodGet, path: "/admin/allOrders"})
}

func (g *HTTPGateway) listOrders(ctx context.Context, req request) ([]domain.Order, error) {
	dtos, conv, err := fetchData[[]orderDTO](ctx, g, req)
	if err != nil {
		return nil, err
	}
	return conv.orders(dtos)
}

func (g *HTTPGateway) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	req := request{
		method:   http.MethodPut,
		path:     "/admin/updateOrder/" + url.PathEscape(orderID),
		jsonBody: updateOrderBody{Status: status},
	}
	dto, conv, err := fetchData[orderDTO](ctx, g, req)
	if err != nil {
		return domain.Order{}, err
	}
	return conv.order(dto)
}

// --- UserGateway Implementation ---

// CurrentUser checks the session. A 2xx answer whose status is not 1 or that
// has no user is reported as ErrNotAuthenticated.
func (g *HTTPGateway) CurrentUser(ctx context.Context) (domain.User, error) {
	req := request{method: http.MethodGet, path: "/auth/me"}
	resp, err := g.do(ctx, req)
	if err != nil {
		return domain.User{}, err
	}
	var env meEnvelope
	if err := decodeJSON(req.op(), resp.body, &env); err != nil {
		return domain.User{}, err
	}
	if env.Status != 1 || env.Data == nil {
		return domain.User{}, &StatusError{
			Op:         req.op(),
			StatusCode: resp.statusCode,
			Message:    fmt.Sprintf("session status %d", env.Status),
			Err:        ErrNotAuthenticated,
		}
	}
	return g.converter(req, resp).user(*env.Data)
}

func (g *HTTPGateway) Profile(ctx context.Context) (domain.User, error) {
	req := request{method: http.MethodGet, path: "/user/profile"}
	dto, conv, err := fetchData[userDTO](ctx, g, req)
	if err != nil {
		return domain.User{}, err
	}
	return conv.user(dto)
}

func (g *HTTPGateway) Login(ctx context.Context, in Credentials) (domain.User, error) {
	req := request{method: http.MethodPost, path: "/login", jsonBody: in}
	dto, conv, err := fetchData[userDTO](ctx, g, req)
	if err != nil {
		return domain.User{}, err
	}
	return conv.user(dto)
}

func (g *HTTPGateway) Register(ctx context.Context, in Registration) error {
	_, err := g.do(ctx, request{method: http.MethodPost, path: "/register", jsonBody: in})
	return err
}

func (g *HTTPGateway) Logout(ctx context.Context) error {
	_, err := g.do(ctx, request{method: http.MethodPost, path: "/logout"})
	return err
}

func (g *HTTPGateway) ListUsers(ctx context.Context) ([]domain.User, error) {
	req := request{method: http.MethodGet, path: "/admin/allUsers"}
	dtos, conv, err := fetchData[[]userDTO](ctx, g, req)
	if err != nil {
		return nil, err
	}
	return conv.users(dtos)
}
