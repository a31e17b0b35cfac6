package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/storefront/pkg/config"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	cases := map[string]struct {
		database, cache Pinger
		want            int
		redis           string
	}{
		"all healthy":   {database: ok, cache: ok, want: http.StatusOK, redis: "ok"},
		"redis skipped": {database: ok, want: http.StatusOK, redis: "skipped"},
		"redis down":    {database: ok, cache: down, want: http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		resp := serve(HealthReady(cfg, testLogger(), tc.database, tc.cache), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", name, tc.want, resp.Code)
		}
		if resp.Header().Get(envHeader) != "dev" {
			t.Fatalf("%s: missing env header", name)
		}
		if tc.want != http.StatusOK {
			continue
		}
		var body map[string]string
		decodeData(t, resp, &body)
		if body["redis"] != tc.redis || body["status"] != "ready" {
			t.Fatalf("%s: unexpected body %v", name, body)
		}
	}
}
