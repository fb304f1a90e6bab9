// Package gateway is the boundary to the remote storefront API. It performs the
// HTTP calls, carries the session cookie, and parses every response into typed
// domain values or a TransportError/StatusError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "storefront-sync/1.0"
	maxResponseBytes = 10 << 20

	idempotencyHeader = "Idempotency-Key"
)

// Config configures an HTTPGateway.
type Config struct {
	BaseURL string
	// Timeout bounds a whole request. Zero means no timeout.
	Timeout   time.Duration
	RateQPS   float64
	RateBurst int
	UserAgent string
	// HTTPClient overrides the default client. Its Jar is replaced when nil.
	HTTPClient *http.Client
}

// HTTPGateway implements Gateway over the storefront's REST API.
type HTTPGateway struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewHTTPGateway creates a gateway for cfg.BaseURL with a cookie jar holding
// the session credentials.
func NewHTTPGateway(cfg Config, logger *zap.Logger) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("gateway: creating cookie jar: %w", err)
		}
		client.Jar = jar
	}

	limit := rate.Inf
	if cfg.RateQPS > 0 {
		limit = rate.Limit(cfg.RateQPS)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &HTTPGateway{
		baseURL:    base,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		userAgent:  ua,
		validate:   validator.New(),
		logger:     logger.Named("gateway"),
	}, nil
}

// request describes one call to the remote API.
type request struct {
	method         string
	path           string
	jsonBody       any
	rawBody        io.Reader
	contentType    string
	idempotencyKey string
}

func (r request) op() string { return r.method + " " + r.path }

// response is a completed call with a 2xx status.
type response struct {
	statusCode int
	body       []byte
}

// do executes req once. There is no retry: a failed call is reported and the
// caller decides whether to issue it again.
func (g *HTTPGateway) do(ctx context.Context, req request) (*response, error) {
	op := req.op()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	body := req.rawBody
	contentType := req.contentType
	if req.jsonBody != nil {
		b, err := json.Marshal(req.jsonBody)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("marshaling request body: %w", err)}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	u := g.baseURL.JoinPath(req.path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", g.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(idempotencyHeader, req.idempotencyKey)
	}

	start := time.Now()
	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}
	g.logger.Debug("request completed",
		zap.String("op", op),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if !isSuccess(httpResp.StatusCode) {
		return nil, &StatusError{
			Op:         op,
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(raw),
		}
	}
	return &response{statusCode: httpResp.StatusCode, body: raw}, nil
}

// errorMessage extracts the server's message from a failure body, if any.
func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

func (g *HTTPGateway) converter(req request, resp *response) converter {
	return converter{validate: g.validate, op: req.op(), code: resp.statusCode}
}

func decodeJSON(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// fetchData performs req and decodes a {data: T} envelope, requiring data.
func fetchData[T any](ctx context.Context, g *HTTPGateway, req request) (T, converter, error) {
	var zero T
	resp, err := g.do(ctx, req)
	if err != nil {
		return zero, converter{}, err
	}
	conv := g.converter(req, resp)
	var env dataEnvelope[T]
	if err := decodeJSON(req.op(), resp.body, &env); err != nil {
		return zero, conv, err
	}
	if env.Data == nil {
		return zero, conv, shapeError(req.op(), resp.statusCode, "missing data field")
	}
	return *env.Data, conv, nil
}

// fetchList is fetchData for list endpoints that may also answer with a bare
// JSON array.
func fetchList[T any](ctx context.Context, g *HTTPGateway, req request) ([]T, converter, error) {
	resp, err := g.do(ctx, req)
	if err != nil {
		return nil, converter{}, err
	}
	conv := g.converter(req, resp)
	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := decodeJSON(req.op(), trimmed, &items); err != nil {
			return nil, conv, err
		}
		return items, conv, nil
	}
	var env dataEnvelope[[]T]
	if err := decodeJSON(req.op(), trimmed, &env); err != nil {
		return nil, conv, err
	}
	if env.Data == nil {
		return nil, conv, shapeError(req.op(), resp.statusCode, "missing data field")
	}
	return *env.Data, conv, nil
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
