package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultRetryBaseDelay       = 100 * time.Millisecond
	defaultMaxRetries    uint64 = 2
	errorBodyReadLimit   int64  = 1024

	headerAPIKey         = "X-Api-Key"
	headerIdempotencyKey = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("storefront base url is required")

// Client talks to the upstream storefront REST API that owns products,
// coupons, shipping rates, orders and notifications.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
	baseDelay  time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the key sent on every upstream request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithRetries configures the backoff used for idempotent requests.
func WithRetries(max uint64, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// NewClient builds an upstream client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid storefront base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// GetProduct fetches one catalog product.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var product Product
	if err := c.do(ctx, call{method: http.MethodGet, path: "/products/" + url.PathEscape(id), out: &product}); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = id
	}
	return &product, nil
}

// ValidateCoupon asks upstream whether code applies to cartTotal.
func (c *Client) ValidateCoupon(ctx context.Context, req CouponValidationRequest) (*CouponValidationResponse, error) {
	var resp CouponValidationResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/coupons/validate", body: req, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EstimateShipping requests a shipping cost for the supplied items and destination.
func (c *Client) EstimateShipping(ctx context.Context, req ShippingEstimateRequest) (*ShippingEstimateResponse, error) {
	var resp ShippingEstimateResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/shipping/estimate", body: req, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateOrder submits an order. The idempotency key lets upstream collapse
// duplicate submissions of the same checkout attempt.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, req OrderRequest) (*OrderResponse, error) {
	headers := map[string]string{}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		headers[headerIdempotencyKey] = key
	}
	var resp OrderResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/orders", body: req, headers: headers, out: &resp}); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order response missing id")
	}
	return &resp, nil
}

// ListNotifications returns one page of a scope's notifications.
func (c *Client) ListNotifications(ctx context.Context, scope enums.NotificationScope, page, limit int) (*NotificationPage, error) {
	if !scope.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification scope")
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp NotificationPage
	if err := c.do(ctx, call{method: http.MethodGet, path: notificationsPath(scope), query: query, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkNotificationRead marks one notification as read upstream.
func (c *Client) MarkNotificationRead(ctx context.Context, scope enums.NotificationScope, id string) error {
	if !scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification scope")
	}
	return c.do(ctx, call{method: http.MethodPut, path: notificationsPath(scope) + "/" + url.PathEscape(id) + "/read"})
}

// MarkAllNotificationsRead marks every notification in scope as read upstream.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, scope enums.NotificationScope) error {
	if !scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification scope")
	}
	return c.do(ctx, call{method: http.MethodPut, path: notificationsPath(scope) + "/read-all"})
}

// DeleteNotification removes a notification upstream.
func (c *Client) DeleteNotification(ctx context.Context, scope enums.NotificationScope, id string) error {
	if !scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification scope")
	}
	return c.do(ctx, call{method: http.MethodDelete, path: notificationsPath(scope) + "/" + url.PathEscape(id)})
}

func notificationsPath(scope enums.NotificationScope) string {
	return "/" + scope.String() + "/notifications"
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	out     any
}

// idempotent reports whether a failed attempt may be replayed safely.
func (c call) idempotent() bool {
	switch c.method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (c *Client) do(ctx context.Context, req call) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}

	var payload []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal storefront request")
		}
		payload = encoded
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.attempt(ctx, req, payload)
		if err != nil && req.idempotent() && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	err = mapError(err)
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", req.method, req.path))
}

func (c *Client) attempt(ctx context.Context, req call, payload []byte) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build storefront request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(headerAPIKey, c.apiKey)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(excerpt))}
	}

	if req.out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode storefront response")
	}
	return nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("storefront status %d", e.status)
	}
	return fmt.Sprintf("storefront status %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	var tErr *transportError
	if errors.As(err, &tErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.status >= http.StatusInternalServerError || sErr.status == http.StatusTooManyRequests
	}
	return false
}

// mapError converts a non-2xx upstream status into a typed error.
func mapError(err error) error {
	var sErr *statusError
	if !errors.As(err, &sErr) {
		return err
	}
	switch sErr.status {
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "resource not found upstream")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upstream rejected request").WithDetails(sErr.body)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upstream returned %d", sErr.status)).WithDetails(sErr.body)
	}
}
