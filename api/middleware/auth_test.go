package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token := mintTestToken(t, auth.AccessTokenPayload{UserID: uuid.New()})
	for name, verifier := range map[string]stubSessionVerifier{
		"revoked":     {ok: false},
		"redis error": {err: errors.New("down")},
	} {
		handler := Auth(testJWT, verifier, nil)(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		want := http.StatusUnauthorized
		if verifier.err != nil {
			want = http.StatusServiceUnavailable
		}
		if resp.Code != want {
			t.Fatalf("%s: expected %d got %d", name, want, resp.Code)
		}
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, auth.AccessTokenPayload{
		UserID:    userID,
		SessionID: "sess-1",
		Scopes:    []enums.NotificationScope{enums.NotificationScopeUser, enums.NotificationScopeVendor},
	})

	var captured struct {
		user    string
		session string
		vendor  bool
	}
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.session = SessionIDFromContext(r.Context())
		captured.vendor = ClaimsFromContext(r.Context()).HasScope(enums.NotificationScopeVendor)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.session != "sess-1" {
		t.Fatalf("expected session sess-1 got %s", captured.session)
	}
	if !captured.vendor {
		t.Fatal("expected vendor scope")
	}
}

func TestAuthGuestHasNoUserID(t *testing.T) {
	token := mintTestToken(t, auth.AccessTokenPayload{Guest: true, SessionID: "guest-1"})

	var user, sess string
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		sess = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if user != "" || sess != "guest-1" {
		t.Fatalf("unexpected guest identity user=%q session=%q", user, sess)
	}
}

func TestRequireScope(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	claims := &auth.AccessTokenClaims{Scopes: []enums.NotificationScope{enums.NotificationScopeUser}}

	tests := []struct {
		scope string
		want  int
	}{
		{"user", http.StatusOK},
		{"vendor", http.StatusForbidden},
		{"admin", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/"+tt.scope+"/notifications", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("scope", tt.scope)
		ctx := context.WithValue(WithClaims(req.Context(), claims), chi.RouteCtxKey, routeCtx)
		resp := httptest.NewRecorder()
		RequireScope("scope", logg)(okHandler()).ServeHTTP(resp, req.WithContext(ctx))
		if resp.Code != tt.want {
			t.Fatalf("scope %s: expected %d got %d", tt.scope, tt.want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, payload auth.AccessTokenPayload) string {
	t.Helper()
	if payload.SessionID == "" {
		payload.SessionID = session.NewSessionID()
	}
	token, err := auth.MintAccessToken(testJWT, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}
