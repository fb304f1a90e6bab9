package gateway

import (
	"context"

	"storefront-sync/internal/domain"

	"github.com/shopspring/decimal"
)

// ImageUpload is one image file attached to a new listing.
type ImageUpload struct {
	Filename    string `validate:"required"`
	ContentType string `validate:"required,startswith=image/"`
	Data        []byte `validate:"required,max=5242880"`
}

// NewProduct holds the fields of the sell-product form.
type NewProduct struct {
	Title       string           `validate:"required,max=200"`
	Price       decimal.Decimal  `validate:"-"`
	Category    string           `validate:"required"`
	Description string           `validate:"required"`
	Location    string           `validate:"required"`
	Condition   domain.Condition `validate:"required,oneof=New Used"`
	Stock       int              `validate:"gte=0"`
	Images      []ImageUpload    `validate:"min=1,max=5,dive"`
}

// PlaceOrderRequest is the checkout submission. Card fields are sent once and
// are not part of any stored entity.
type PlaceOrderRequest struct {
	CardName    string `json:"cardName"`
	CardNumber  string `json:"cardNumber"`
	ExpiryDate  string `json:"expiryDate"`
	CVV         string `json:"cvv"`
	TotalPrice  int64  `json:"totalPrice"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Quantity    int    `json:"quantity"`
}

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration holds the sign-up form fields.
type Registration struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Password  string `json:"password" validate:"required,min=6"`
}

// ProductGateway defines the remote operations on listings and favourites.
type ProductGateway interface {
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
	ListMyProducts(ctx context.Context) ([]domain.Product, error)
	GetProductDetails(ctx context.Context, id string) (domain.Product, error)
	ListCategoryProducts(ctx context.Context, category string) ([]domain.Product, error)
	AddProduct(ctx context.Context, in NewProduct, idempotencyKey string) (domain.Product, error)
	AddFavourite(ctx context.Context, productID string) (*domain.Product, error)
	ListFavourites(ctx context.Context) ([]domain.Product, error)
}

// OrderGateway defines the remote cart and order operations.
type OrderGateway interface {
	AddToCart(ctx context.Context, productID string) (domain.CartItem, error)
	ListCartItems(ctx context.Context) ([]domain.CartItem, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest, idempotencyKey string) (domain.Order, error)
	ListMyOrders(ctx context.Context) ([]domain.Order, error)
	ListAllOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
}

// UserGateway defines the remote session and account operations.
type UserGateway interface {
	CurrentUser(ctx context.Context) (domain.User, error)
	Profile(ctx context.Context) (domain.User, error)
	Login(ctx context.Context, in Credentials) (domain.User, error)
	Register(ctx context.Context, in Registration) error
	Logout(ctx context.Context) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Gateway is the full remote catalog contract.
type Gateway interface {
	ProductGateway
	OrderGateway
	UserGateway
}
