package gateway

import (
	"net/http"
	"strings"
	"time"

	"storefront-sync/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Wire shapes of the remote API. Every response is decoded into one of these,
// validated, and only then converted into domain types.

type dataEnvelope[T any] struct {
	Data *T `json:"data"`
}

type meEnvelope struct {
	Status int      `json:"status"`
	Data   *userDTO `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type productDTO struct {
	ID          string          `json:"_id" validate:"required"`
	Title       string          `json:"title" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Condition   string          `json:"condition"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Images      []string        `json:"images" validate:"max=5"`
	UserID      string          `json:"userId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type cartItemDTO struct {
	ID        string          `json:"_id" validate:"required_without=ProductID"`
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Images    []string        `json:"images"`
}

type orderDTO struct {
	ID          string          `json:"_id" validate:"required"`
	UserID      string          `json:"userId"`
	Customer    string          `json:"customer"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      string          `json:"status"`
	CardName    string          `json:"cardName"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type userDTO struct {
	ID        string `json:"_id" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=user admin"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type addToCartBody struct {
	ID string `json:"id"`
}

type updateOrderBody struct {
	Status domain.OrderStatus `json:"status"`
}

// converter validates DTOs and turns them into domain values. Errors are
// StatusErrors wrapping ErrShapeMismatch.
type converter struct {
	validate *validator.Validate
	op       string
	code     int
}

func (c converter) check(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return shapeError(c.op, c.code, "%v", err)
	}
	return nil
}

func (c converter) product(d productDTO) (domain.Product, error) {
	if err := c.check(d); err != nil {
		return domain.Product{}, err
	}
	if d.Price.IsNegative() {
		return domain.Product{}, shapeError(c.op, c.code, "product %s has negative price %s", d.ID, d.Price)
	}
	cond, err := c.condition(d.ID, d.Condition)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:          d.ID,
		Title:       d.Title,
		Price:       d.Price,
		Category:    d.Category,
		Description: d.Description,
		Location:    d.Location,
		Condition:   cond,
		Stock:       d.Stock,
		Images:      d.Images,
		OwnerID:     d.UserID,
		CreatedAt:   d.CreatedAt,
	}, nil
}

func (c converter) condition(id, raw string) (domain.Condition, error) {
	switch {
	case raw == "":
		return "", nil
	case strings.EqualFold(raw, string(domain.ConditionNew)):
		return domain.ConditionNew, nil
	case strings.EqualFold(raw, string(domain.ConditionUsed)):
		return domain.ConditionUsed, nil
	}
	return "", shapeError(c.op, c.code, "product %s has unknown condition %q", id, raw)
}

func (c converter) products(ds []productDTO) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(ds))
	for _, d := range ds {
		p, err := c.product(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c converter) cartItem(d cartItemDTO) (domain.CartItem, error) {
	if err := c.check(d); err != nil {
		return domain.CartItem{}, err
	}
	if d.Price.IsNegative() {
		return domain.CartItem{}, shapeError(c.op, c.code, "cart item %s has negative price %s", d.ID, d.Price)
	}
	qty := d.Quantity
	if qty == 0 {
		qty = 1
	}
	return domain.CartItem{
		ID:        d.ID,
		ProductID: d.ProductID,
		Title:     d.Title,
		Price:     d.Price,
		Quantity:  qty,
		Images:    d.Images,
	}, nil
}

func (c converter) cartItems(ds []cartItemDTO) ([]domain.CartItem, error) {
	out := make([]domain.CartItem, 0, len(ds))
	for _, d := range ds {
		item, err := c.cartItem(d)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (c converter) order(d orderDTO) (domain.Order, error) {
	if err := c.check(d); err != nil {
		return domain.Order{}, err
	}
	status, err := domain.ParseOrderStatus(d.Status)
	if err != nil {
		return domain.Order{}, shapeError(c.op, c.code, "order %s: %v", d.ID, err)
	}
	return domain.Order{
		ID:         d.ID,
		UserID:     d.UserID,
		Customer:   d.Customer,
		ProductID:  d.ProductID,
		Title:      d.ProductName,
		Quantity:   d.Quantity,
		TotalPrice: d.TotalPrice.IntPart(),
		Status:     status,
		CardName:   d.CardName,
		OrderedAt:  d.CreatedAt,
	}, nil
}

func (c converter) orders(ds []orderDTO) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(ds))
	for _, d := range ds {
		o, err := c.order(d)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (c converter) user(d userDTO) (domain.User, error) {
	if err := c.check(d); err != nil {
		return domain.User{}, err
	}
	role := domain.Role(d.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:        d.ID,
		Role:      role,
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Phone:     d.Phone,
	}, nil
}

func (c converter) users(ds []userDTO) ([]domain.User, error) {
	out := make([]domain.User, 0, len(ds))
	for _, d := range ds {
		u, err := c.user(d)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
