package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/address"
	"github.com/angelmondragon/storefront/internal/session"
	authsession "github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type sessionRegistry interface {
	authsession.AccessSessionChecker
	Register(ctx context.Context, rec authsession.Record) (authsession.Record, error)
	Revoke(ctx context.Context, sessionID string) error
}

type shopperManager interface {
	Get(ctx context.Context, id string, identity session.Identity) (*session.Session, error)
	Close(ctx context.Context, id string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry sessionRegistry,
	shoppers shopperManager,
	addressService address.Service,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Access(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var database, cache controllers.Pinger
	if dbP != nil {
		database = dbP
	}
	if redisClient != nil {
		cache = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, database, cache))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	couponLimit := passthrough
	if redisClient != nil {
		couponLimit = middleware.RateLimit(middleware.NewRateLimitPolicy(
			"coupon",
			cfg.RateLimit.CouponWindow,
			cfg.RateLimit.CouponIPLimit,
			cfg.RateLimit.CouponSessionLimit,
		), redisClient, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Session.AllowGuests {
			r.Post("/sessions/guest", controllers.CreateGuestSession(registry, cfg.JWT, logg))
		}
		// Tokens minted elsewhere are not in the registry until they start a session here.
		r.With(middleware.Auth(cfg.JWT, nil, logg)).Post("/sessions", controllers.StartSession(registry, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, registry, logg))
			if redisClient != nil {
				r.Use(middleware.Idempotency(redisClient, logg))
			}

			r.Delete("/sessions/current", controllers.EndSession(registry, shoppers, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Shopper(shoppers, logg))

				r.Get("/sessions/current", controllers.CurrentSession(logg))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", controllers.GetCart(logg))
					r.Delete("/", controllers.ClearCart(logg))
					r.Post("/items", controllers.AddCartItem(logg))
					r.Patch("/items/{productId}", controllers.UpdateCartItem(logg))
					r.Delete("/items/{productId}", controllers.RemoveCartItem(logg))
					r.Post("/refresh", controllers.RefreshCart(logg))
				})

				r.Route("/wishlist", func(r chi.Router) {
					r.Get("/", controllers.GetWishlist(logg))
					r.Post("/items", controllers.AddWishlistItem(logg))
					r.Delete("/items/{productId}", controllers.RemoveWishlistItem(logg))
					r.Post("/items/{productId}/move-to-cart", controllers.MoveWishlistItemToCart(logg))
				})

				r.Route("/checkout", func(r chi.Router) {
					r.Get("/", controllers.GetCheckout(logg))
					r.Patch("/shipping", controllers.UpdateShippingDraft(logg))
					r.Post("/shipping", controllers.ProceedToPayment(addressService, logg))
					r.Post("/back", controllers.BackToShipping(logg))
					r.Put("/payment", controllers.UpdatePayment(logg))
					r.With(couponLimit).Post("/coupon", controllers.ApplyCoupon(logg))
					r.Delete("/coupon", controllers.RemoveCoupon(logg))
					r.Post("/submit", controllers.SubmitCheckout(logg))
					r.Post("/reset", controllers.ResetCheckout(logg))
				})

				r.Route("/addresses", func(r chi.Router) {
					r.Get("/", controllers.ListAddresses(addressService, logg))
					r.Post("/", controllers.CreateAddress(addressService, logg))
					r.Get("/suggest", controllers.SuggestAddresses(addressService, logg))
					r.Post("/resolve", controllers.ResolveAddress(addressService, logg))
					r.Get("/{addressId}", controllers.GetAddress(addressService, logg))
					r.Put("/{addressId}", controllers.UpdateAddress(addressService, logg))
					r.Delete("/{addressId}", controllers.DeleteAddress(addressService, logg))
					r.Post("/{addressId}/default", controllers.SetDefaultAddress(addressService, logg))
				})

				r.Route("/{scope}/notifications", func(r chi.Router) {
					r.Use(middleware.RequireScope("scope", logg))
					r.Get("/", controllers.ListNotifications(logg))
					r.Post("/read-all", controllers.MarkAllNotificationsRead(logg))
					r.Post("/{notificationId}/read", controllers.MarkNotificationRead(logg))
					r.Delete("/{notificationId}", controllers.DeleteNotification(logg))
				})
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
