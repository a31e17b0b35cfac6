package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/internal/wishlist"
	"github.com/angelmondragon/storefront/pkg/auth"
	authsession "github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type noCoupons struct{}

func (noCoupons) Validate(context.Context, string, decimal.Decimal) (coupons.Coupon, error) {
	return coupons.Coupon{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon")
}

type flatQuoter struct{}

func (flatQuoter) Quote(context.Context, shipping.Request) (decimal.Decimal, error) {
	return decimal.NewFromInt(50), nil
}

type okPlacer struct{}

func (okPlacer) PlaceOrder(context.Context, string, checkout.Order) (string, error) {
	return "ord-1", nil
}

type emptyRemote struct{}

func (emptyRemote) List(context.Context, enums.NotificationScope, int, int) (notifications.Page, error) {
	return notifications.Page{}, nil
}
func (emptyRemote) MarkRead(context.Context, enums.NotificationScope, string) error { return nil }
func (emptyRemote) MarkAllRead(context.Context, enums.NotificationScope) error       { return nil }
func (emptyRemote) Delete(context.Context, enums.NotificationScope, string) error   { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "storefront",
			ExpirationMinutes: 60,
		},
		Session: config.SessionConfig{AllowGuests: true},
		RateLimit: config.RateLimitConfig{
			CouponWindow:       time.Minute,
			CouponSessionLimit: 2,
			CouponIPLimit:      100,
		},
	}
}

type harness struct {
	router   http.Handler
	registry *authsession.Manager
	shoppers *session.Manager
}

func newHarness(t *testing.T, cfg *config.Config) harness {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redis.NewWithClient(raw)

	registry, err := authsession.NewManager(client, time.Hour)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	cartStore, err := cart.NewRedisStore(client, time.Hour)
	if err != nil {
		t.Fatalf("cart store: %v", err)
	}
	wishStore, err := wishlist.NewRedisStore(client, time.Hour)
	if err != nil {
		t.Fatalf("wishlist store: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	shoppers, err := session.NewManager(session.ManagerParams{
		Catalog: catalog.StaticLoader{
			"tee": {ID: "tee", Name: "Tee", BasePrice: decimal.NewFromInt(20), StockQuantity: 10, VendorID: "v1"},
		},
		CartStore:     cartStore,
		WishlistStore: wishStore,
		Coupons:       noCoupons{},
		Quoter:        flatQuoter{},
		Placer:        okPlacer{},
		Notifications: emptyRemote{},
		Logger:        logg,
		Settings: session.Settings{
			TaxRate:  decimal.RequireFromString("0.18"),
			Rates:    shipping.Rates{Standard: decimal.NewFromInt(50), Express: decimal.NewFromInt(150)},
			Debounce: 5 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	t.Cleanup(func() { _ = shoppers.CloseAll(context.Background()) })

	router := NewRouter(cfg, logg, stubPinger{}, client, registry, shoppers, nil, nil, nil)
	return harness{router: router, registry: registry, shoppers: shoppers}
}

func (h harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func guestToken(t *testing.T, h harness) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/v1/sessions/guest", "", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for guest session got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		AccessToken string `json:"accessToken"`
		SessionID   string `json:"sessionId"`
		Guest       bool   `json:"guest"`
	}
	decodeData(t, resp, &body)
	if body.AccessToken == "" || body.SessionID == "" || !body.Guest {
		t.Fatalf("unexpected guest session %+v", body)
	}
	return body.AccessToken
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t, testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := h.do(t, http.MethodGet, path, "", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
		if got := resp.Header().Get("X-Storefront-Env"); got != "test" {
			t.Fatalf("%s: expected env header, got %q", path, got)
		}
	}
}

func TestReadyReportsFailingDatabase(t *testing.T) {
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	router := NewRouter(cfg, logg, stubPinger{err: context.DeadlineExceeded}, nil, nil, nil, nil, nil, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestShopperRoutesRequireToken(t *testing.T) {
	h := newHarness(t, testConfig())

	for _, path := range []string{"/api/v1/cart", "/api/v1/checkout", "/api/v1/sessions/current", "/api/v1/user/notifications"} {
		resp := h.do(t, http.MethodGet, path, "", nil)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestGuestSessionFlow(t *testing.T) {
	h := newHarness(t, testConfig())
	token := guestToken(t, h)

	resp := h.do(t, http.MethodPost, "/api/v1/cart/items", token, map[string]any{"productId": "tee", "quantity": 2})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding item got %d: %s", resp.Code, resp.Body.String())
	}

	resp = h.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for cart got %d", resp.Code)
	}
	var view struct {
		Total string `json:"total"`
		Items []struct {
			ProductID string `json:"productId"`
		} `json:"items"`
	}
	decodeData(t, resp, &view)
	if view.Total != "40" || len(view.Items) != 1 {
		t.Fatalf("unexpected cart %+v", view)
	}

	resp = h.do(t, http.MethodGet, "/api/v1/sessions/current", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for current session got %d", resp.Code)
	}
	var current struct {
		Guest        bool   `json:"guest"`
		CheckoutStep string `json:"checkoutStep"`
	}
	decodeData(t, resp, &current)
	if !current.Guest || current.CheckoutStep != string(enums.CheckoutStepShipping) {
		t.Fatalf("unexpected current session %+v", current)
	}
	if h.shoppers.Len() != 1 {
		t.Fatalf("expected one live session, got %d", h.shoppers.Len())
	}

	resp = h.do(t, http.MethodDelete, "/api/v1/sessions/current", token, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 ending session got %d", resp.Code)
	}
	if h.shoppers.Len() != 0 {
		t.Fatalf("expected live session closed, got %d", h.shoppers.Len())
	}

	resp = h.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to get 401, got %d", resp.Code)
	}
}

func TestGuestSessionsCanBeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AllowGuests = false
	h := newHarness(t, cfg)

	resp := h.do(t, http.MethodPost, "/api/v1/sessions/guest", "", nil)
	if resp.Code != http.StatusNotFound && resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected guest route to be absent, got %d", resp.Code)
	}
}

func TestStartSessionRegistersExternalToken(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)

	now := time.Now().UTC()
	token, err := auth.MintAccessToken(cfg.JWT, now, auth.AccessTokenPayload{
		UserID:    uuid.New(),
		SessionID: authsession.NewSessionID(),
		Scopes:    []enums.NotificationScope{enums.NotificationScopeUser, enums.NotificationScopeVendor},
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	resp := h.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unregistered session to get 401, got %d", resp.Code)
	}

	resp = h.do(t, http.MethodPost, "/api/v1/sessions", token, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 starting session got %d: %s", resp.Code, resp.Body.String())
	}

	resp = h.do(t, http.MethodGet, "/api/v1/vendor/notifications", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for vendor mailbox got %d: %s", resp.Code, resp.Body.String())
	}
	resp = h.do(t, http.MethodGet, "/api/v1/delivery/notifications", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for ungranted delivery mailbox got %d", resp.Code)
	}
}

func TestGuestHasNoMailboxes(t *testing.T) {
	h := newHarness(t, testConfig())
	token := guestToken(t, h)

	resp := h.do(t, http.MethodGet, "/api/v1/user/notifications", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for guest mailbox got %d", resp.Code)
	}
	resp = h.do(t, http.MethodGet, "/api/v1/staff/notifications", token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown scope got %d", resp.Code)
	}
}

func TestCouponRouteIsRateLimited(t *testing.T) {
	h := newHarness(t, testConfig())
	token := guestToken(t, h)

	var last int
	for i := 0; i < 3; i++ {
		resp := h.do(t, http.MethodPost, "/api/v1/checkout/coupon", token, map[string]string{"code": "SAVE"})
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third coupon attempt to be limited, got %d", last)
	}
}

func TestSubmitRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t, testConfig())
	token := guestToken(t, h)

	resp := h.do(t, http.MethodPost, "/api/v1/checkout/submit", token, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}
}
