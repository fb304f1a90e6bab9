// Package gatewaytest provides a testify mock of gateway.Gateway.
package gatewaytest

import (
	"context"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/gateway"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

var _ gateway.Gateway = (*MockGateway)(nil)

func (m *MockGateway) products(args mock.Arguments) ([]domain.Product, error) {
	var out []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		out = arg0.([]domain.Product)
	}
	return out, args.Error(1)
}

func (m *MockGateway) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return m.products(m.Called(ctx))
}

func (m *MockGateway) ListMyProducts(ctx context.Context) ([]domain.Product, error) {
	return m.products(m.Called(ctx))
}

func (m *MockGateway) GetProductDetails(ctx context.Context, id string) (domain.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockGateway) ListCategoryProducts(ctx context.Context, category string) ([]domain.Product, error) {
	return m.products(m.Called(ctx, category))
}

func (m *MockGateway) AddProduct(ctx context.Context, in gateway.NewProduct, idempotencyKey string) (domain.Product, error) {
	args := m.Called(ctx, in, idempotencyKey)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockGateway) AddFavourite(ctx context.Context, productID string) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockGateway) ListFavourites(ctx context.Context) ([]domain.Product, error) {
	return m.products(m.Called(ctx))
}

func (m *MockGateway) AddToCart(ctx context.Context, productID string) (domain.CartItem, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.CartItem), args.Error(1)
}

func (m *MockGateway) ListCartItems(ctx context.Context) ([]domain.CartItem, error) {
	args := m.Called(ctx)
	var out []domain.CartItem
	if arg0 := args.Get(0); arg0 != nil {
		out = arg0.([]domain.CartItem)
	}
	return out, args.Error(1)
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req gateway.PlaceOrderRequest, idempotencyKey string) (domain.Order, error) {
	args := m.Called(ctx, req, idempotencyKey)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *MockGateway) orders(args mock.Arguments) ([]domain.Order, error) {
	var out []domain.Order
	if arg0 := args.Get(0); arg0 != nil {
		out = arg0.([]domain.Order)
	}
	return out, args.Error(1)
}

func (m *MockGateway) ListMyOrders(ctx context.Context) ([]domain.Order, error) {
	return m.orders(m.Called(ctx))
}

func (m *MockGateway) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return m.orders(m.Called(ctx))
}

func (m *MockGateway) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	args := m.Called(ctx, orderID, status)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *MockGateway) CurrentUser(ctx context.Context) (domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockGateway) Profile(ctx context.Context) (domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockGateway) Login(ctx context.Context, in gateway.Credentials) (domain.User, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockGateway) Register(ctx context.Context, in gateway.Registration) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockGateway) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockGateway) ListUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	var out []domain.User
	if arg0 := args.Get(0); arg0 != nil {
		out = arg0.([]domain.User)
	}
	return out, args.Error(1)
}
