package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/internal/wishlist"
	pkgAuth "github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	sfredis "github.com/angelmondragon/storefront/pkg/redis"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

type couponTable map[string]coupons.Coupon

func (c couponTable) Validate(_ context.Context, code string, _ decimal.Decimal) (coupons.Coupon, error) {
	coupon, ok := c[code]
	if !ok {
		return coupons.Coupon{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon not found")
	}
	return coupon, nil
}

type flatQuoter struct{}

func (flatQuoter) Quote(context.Context, shipping.Request) (decimal.Decimal, error) {
	return decimal.NewFromInt(50), nil
}

type recordingPlacer struct {
	mu     sync.Mutex
	orders []checkout.Order
}

func (p *recordingPlacer) PlaceOrder(_ context.Context, _ string, order checkout.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	return "ord-1", nil
}

type inboxRemote struct {
	mu      sync.Mutex
	items   []notifications.Notification
	reads   []string
	deletes []string
}

func (r *inboxRemote) List(_ context.Context, _ enums.NotificationScope, page, limit int) (notifications.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := (page - 1) * limit
	if start >= len(r.items) {
		return notifications.Page{TotalPages: 1}, nil
	}
	end := min(len(r.items), start+limit)
	unread := 0
	for _, n := range r.items {
		if !n.IsRead {
			unread++
		}
	}
	pages := (len(r.items) + limit - 1) / limit
	return notifications.Page{Items: append([]notifications.Notification(nil), r.items[start:end]...), UnreadCount: unread, TotalPages: pages}, nil
}

func (r *inboxRemote) MarkRead(_ context.Context, _ enums.NotificationScope, id string) error {
	r.mu.Lock()
	r.reads = append(r.reads, id)
	r.mu.Unlock()
	return nil
}

func (r *inboxRemote) MarkAllRead(context.Context, enums.NotificationScope) error { return nil }

func (r *inboxRemote) Delete(_ context.Context, _ enums.NotificationScope, id string) error {
	r.mu.Lock()
	r.deletes = append(r.deletes, id)
	r.mu.Unlock()
	return nil
}

type shopperFixture struct {
	manager *session.Manager
	session *session.Session
	claims  *pkgAuth.AccessTokenClaims
	placer  *recordingPlacer
	inbox   *inboxRemote
}

func newShopperFixture(t *testing.T, userID uuid.UUID, scopes ...enums.NotificationScope) shopperFixture {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := sfredis.NewWithClient(raw)

	cartStore, err := cart.NewRedisStore(client, time.Hour)
	if err != nil {
		t.Fatalf("cart store: %v", err)
	}
	wishStore, err := wishlist.NewRedisStore(client, time.Hour)
	if err != nil {
		t.Fatalf("wishlist store: %v", err)
	}

	placer := &recordingPlacer{}
	inbox := &inboxRemote{}
	manager, err := session.NewManager(session.ManagerParams{
		Catalog: catalog.StaticLoader{
			"tee":  {ID: "tee", Name: "Tee", BasePrice: decimal.NewFromInt(20), StockQuantity: 10, VendorID: "v1", VendorName: "Looms"},
			"mug":  {ID: "mug", Name: "Mug", BasePrice: decimal.NewFromInt(15), StockQuantity: 3, VendorID: "v2", VendorName: "Kiln"},
			"sold": {ID: "sold", Name: "Sold out", BasePrice: decimal.NewFromInt(5), StockQuantity: 0, VendorID: "v1"},
		},
		CartStore:     cartStore,
		WishlistStore: wishStore,
		Coupons: couponTable{
			"SAVE5": {Code: "SAVE5", Type: enums.CouponTypeFixed, Value: decimal.NewFromInt(5)},
		},
		Quoter:        flatQuoter{},
		Placer:        placer,
		Notifications: inbox,
		Logger:        testLogger(),
		Settings: session.Settings{
			TaxRate:     decimal.RequireFromString("0.18"),
			Rates:       shipping.Rates{FreeThreshold: decimal.NewFromInt(1000), Standard: decimal.NewFromInt(50), Express: decimal.NewFromInt(150)},
			Debounce:    5 * time.Millisecond,
			MailboxPage: 2,
		},
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.CloseAll(context.Background()) })

	sessionID := uuid.NewString()
	claims := &pkgAuth.AccessTokenClaims{UserID: userID, Scopes: scopes, Guest: userID == uuid.Nil}
	claims.ID = sessionID

	identity := session.Identity{SessionID: sessionID, Guest: claims.Guest, Scopes: scopes}
	if !claims.Guest {
		identity.UserID = userID.String()
	}
	sess, err := manager.Get(context.Background(), sessionID, identity)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return shopperFixture{manager: manager, session: sess, claims: claims, placer: placer, inbox: inbox}
}

// request builds a request carrying the fixture's claims and session plus
// the given chi URL params.
func (f shopperFixture) request(t *testing.T, method, target string, body any, params map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithClaims(ctx, f.claims)
	ctx = middleware.WithShopper(ctx, f.session)
	return req.WithContext(ctx)
}

func serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
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

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}{}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}
