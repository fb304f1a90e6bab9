package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront-sync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

// setupTestBackend serves router as the remote API and returns a gateway
// pointed at it.
func setupTestBackend(t *testing.T, router chi.Router) (*HTTPGateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	gw, err := NewHTTPGateway(Config{BaseURL: server.URL, UserAgent: "test-agent"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return gw, server
}

func TestNewHTTPGateway_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(Config{}, nil)
	require.Error(t, err)
}

func TestListAllProducts_Success(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/allProducts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, `{"data":[
			{"_id":"p1","title":"iPhone","price":1500,"category":"Mobiles","condition":"used","stock":2,"images":["a.jpg"],"userId":"u9","createdAt":"2024-03-01T10:00:00Z"},
			{"_id":"p2","title":"Civic","price":"2500000.50","category":"Vehicles","condition":"New","stock":0}
		]}`)
	})
	gw, _ := setupTestBackend(t, r)

	products, err := gw.ListAllProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "p1", products[0].ID)
	assert.True(t, decimal.NewFromInt(1500).Equal(products[0].Price))
	assert.Equal(t, domain.ConditionUsed, products[0].Condition)
	assert.Equal(t, "u9", products[0].OwnerID)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), products[0].CreatedAt.UTC())
	assert.True(t, decimal.RequireFromString("2500000.50").Equal(products[1].Price))
	assert.False(t, products[1].InStock())
}

func TestListAllProducts_Non2xxIsStatusError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/allProducts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"message":"database unavailable"}`)
	})
	gw, _ := setupTestBackend(t, r)

	_, err := gw.ListAllProducts(context.Background())
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "database unavailable", se.Message)
	assert.Contains(t, err.Error(), "HTTP error! status: 500")
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
}

func TestListAllProducts_MalformedBodyIsTransportError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/allProducts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `<html>oops`)
	})
	gw, _ := setupTestBackend(t, r)

	_, err := gw.ListAllProducts(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestListAllProducts_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing data", `{"items":[]}`},
		{"missing id", `{"data":[{"title":"x","price":1}]}`},
		{"negative price", `{"data":[{"_id":"p","title":"x","price":-1}]}`},
		{"too many images", `{"data":[{"_id":"p","title":"x","price":1,"images":["1","2","3","4","5","6"]}]}`},
		{"unknown condition", `{"data":[{"_id":"p","title":"x","price":1,"condition":"Refurbished"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Get("/allProducts", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})
			gw, _ := setupTestBackend(t, r)

			_, err := gw.ListAllProducts(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShapeMismatch)
			assert.True(t, IsStatus(err, http.StatusOK))
		})
	}
}

func TestListCategoryProducts_BareArrayAndEscaping(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/category/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Home & Garden", chi.URLParam(r, "name"))
		writeJSON(w, http.StatusOK, `[{"_id":"p1","title":"Chair","price":10,"category":"Home & Garden"}]`)
	})
	gw, _ := setupTestBackend(t, r)

	products, err := gw.ListCategoryProducts(context.Background(), "Home & Garden")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Chair", products[0].Title)
}

func TestAddProduct_MultipartWithIdempotencyKey(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/user/addProduct", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Bike", r.FormValue("title"))
		assert.Equal(t, "1200.5", r.FormValue("price"))
		assert.Equal(t, "Used", r.FormValue("condition"))
		assert.Equal(t, "3", r.FormValue("stock"))
		files := r.MultipartForm.File["images"]
		require.Len(t, files, 2)
		assert.Equal(t, "front.png", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, `{"data":{"_id":"new1","title":"Bike","price":1200.5,"category":"Vehicles","condition":"Used","stock":3}}`)
	})
	gw, _ := setupTestBackend(t, r)

	in := NewProduct{
		Title:     "Bike",
		Price:     decimal.RequireFromString("1200.5"),
		Category:  "Vehicles",
		Condition: domain.ConditionUsed,
		Stock:     3,
		Images: []ImageUpload{
			{Filename: "front.png", ContentType: "image/png", Data: []byte("png-bytes")},
			{Filename: "back.png", ContentType: "image/png", Data: []byte("png-bytes-2")},
		},
	}
	p, err := gw.AddProduct(context.Background(), in, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "new1", p.ID)
}

func TestAddFavourite_EchoAndAcknowledgement(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/user/favourite/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "echo":
			writeJSON(w, http.StatusOK, `{"data":{"_id":"echo","title":"Lamp","price":5}}`)
		case "record":
			writeJSON(w, http.StatusOK, `{"data":{"_id":"fav1","productId":"record","userId":"u1"}}`)
		case "broken":
			writeJSON(w, http.StatusOK, `{"data":`)
		default:
			writeJSON(w, http.StatusOK, `{"message":"added"}`)
		}
	})
	gw, _ := setupTestBackend(t, r)

	p, err := gw.AddFavourite(context.Background(), "echo")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Lamp", p.Title)

	p, err = gw.AddFavourite(context.Background(), "ack")
	require.NoError(t, err)
	assert.Nil(t, p)

	// The favourite record itself is an acknowledgement, not a bad product.
	p, err = gw.AddFavourite(context.Background(), "record")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = gw.AddFavourite(context.Background(), "broken")
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestAddToCart_SendsProductID(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/user/addToCart", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["id"])
		writeJSON(w, http.StatusOK, `{"data":{"_id":"c1","title":"Phone","price":1500}}`)
	})
	gw, _ := setupTestBackend(t, r)

	item, err := gw.AddToCart(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "c1", item.ID)
	assert.Equal(t, "p1", item.ProductID)
	assert.Equal(t, 1, item.Quantity)
}

func TestListCartItems_AcceptsBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"envelope": `{"data":[{"_id":"c1","productId":"p1","title":"A","price":1,"quantity":2}]}`,
		"array":    `[{"_id":"c1","productId":"p1","title":"A","price":1,"quantity":2}]`,
	} {
		t.Run(name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Get("/user/cartItems", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			})
			gw, _ := setupTestBackend(t, r)

			items, err := gw.ListCartItems(context.Background())
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, 2, items[0].Quantity)
		})
	}
}

func TestPlaceOrder(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/user/addOrder", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "order-key", r.Header.Get("Idempotency-Key"))
		var body PlaceOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(3000), body.TotalPrice)
		assert.Equal(t, 2, body.Quantity)
		writeJSON(w, http.StatusOK, `{"data":{"_id":"o1","productId":"p1","productName":"Phone","quantity":2,"totalPrice":3000,"status":"pending","cardName":"A B"}}`)
	})
	gw, _ := setupTestBackend(t, r)

	o, err := gw.PlaceOrder(context.Background(), PlaceOrderRequest{
		CardName: "A B", CardNumber: "4111111111111111", ExpiryDate: "12/30", CVV: "123",
		TotalPrice: 3000, ProductID: "p1", Quantity: 2,
	}, "order-key")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "Phone", o.Title)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, int64(3000), o.TotalPrice)
}

func TestUpdateOrderStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Put("/admin/updateOrder/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "o1", chi.URLParam(r, "id"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Shipped", body["status"])
		writeJSON(w, http.StatusOK, `{"data":{"_id":"o1","status":"Shipped"}}`)
	})
	gw, _ := setupTestBackend(t, r)

	o, err := gw.UpdateOrderStatus(context.Background(), "o1", domain.OrderShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, o.Status)
}

func TestCurrentUser(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		wantErr  error
		wantRole domain.Role
	}{
		{"signed in", http.StatusOK, `{"status":1,"data":{"_id":"u1","role":"admin","email":"a@b.c"}}`, nil, domain.RoleAdmin},
		{"default role", http.StatusOK, `{"status":1,"data":{"_id":"u1"}}`, nil, domain.RoleUser},
		{"status zero", http.StatusOK, `{"status":0,"data":null}`, ErrNotAuthenticated, ""},
		{"unknown role", http.StatusOK, `{"status":1,"data":{"_id":"u1","role":"root"}}`, ErrShapeMismatch, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.code, tt.body)
			})
			gw, _ := setupTestBackend(t, r)

			u, err := gw.CurrentUser(context.Background())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, u.Role)
		})
	}
}

func TestLogin_SessionCookieIsReused(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "abc", Path: "/"})
		writeJSON(w, http.StatusOK, `{"data":{"_id":"u1","role":"user"}}`)
	})
	r.Get("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("token")
		if err != nil || c.Value != "abc" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthorized"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"_id":"u1","firstName":"Sara"}}`)
	})
	gw, _ := setupTestBackend(t, r)

	_, err := gw.Profile(context.Background())
	require.True(t, IsStatus(err, http.StatusUnauthorized))

	_, err = gw.Login(context.Background(), Credentials{Email: "s@x.io", Password: "secret"})
	require.NoError(t, err)

	u, err := gw.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sara", u.FirstName)
}

func TestDo_ConnectionFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: url}, nil)
	require.NoError(t, err)

	_, err = gw.ListMyOrders(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/admin/allUsers", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	gw, _ := setupTestBackend(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gw.ListUsers(ctx)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_RateLimited(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	})
	server := httptest.NewServer(r)
	defer server.Close()
	gw, err := NewHTTPGateway(Config{BaseURL: server.URL, RateQPS: 1, RateBurst: 1}, nil)
	require.NoError(t, err)

	require.NoError(t, gw.Logout(context.Background()))
	// The bucket is empty; a short deadline cannot wait for the next token.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = gw.Logout(ctx)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(1), calls.Load())
}
