package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/address"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/coupons"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/internal/shipping"
	"github.com/angelmondragon/storefront/internal/wishlist"
	authsession "github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/env"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/maps"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/storefront"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := authsession.NewManager(redisClient, cfg.Session.IdleTTL)
	requireResource(ctx, logg, "session registry", err)

	upstream, err := storefront.NewClient(cfg.Upstream.BaseURL,
		storefront.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		storefront.WithAPIKey(cfg.Upstream.APIKey),
		storefront.WithRetries(cfg.Upstream.MaxRetries, cfg.Upstream.RetryBaseDelay),
	)
	requireResource(ctx, logg, "storefront client", err)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricSet := metrics.NewSet(promRegistry)

	shoppers, err := buildSessionManager(cfg, logg, redisClient, upstream, metricSet)
	requireResource(ctx, logg, "session manager", err)

	addressService, err := buildAddressService(cfg, logg, dbClient)
	requireResource(ctx, logg, "address service", err)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			shoppers,
			addressService,
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			metricSet.HTTP,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(runCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := shoppers.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
		defer cancel()
		logg.Info(shutdownCtx, "shutting down api server")
		return multierr.Combine(server.Shutdown(shutdownCtx), shoppers.CloseAll(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "api server stopped")
}

func buildSessionManager(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, upstream *storefront.Client, metricSet *metrics.Set) (*session.Manager, error) {
	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart.StorageTTL)
	if err != nil {
		return nil, err
	}
	wishlistStore, err := wishlist.NewRedisStore(redisClient, cfg.Cart.StorageTTL)
	if err != nil {
		return nil, err
	}
	loader, err := catalog.NewRemoteLoader(upstream)
	if err != nil {
		return nil, err
	}
	validator, err := coupons.NewRemoteValidator(upstream)
	if err != nil {
		return nil, err
	}
	quoter, err := shipping.NewRemoteQuoter(upstream)
	if err != nil {
		return nil, err
	}
	placer, err := checkout.NewRemotePlacer(upstream)
	if err != nil {
		return nil, err
	}
	remote, err := notifications.NewStorefrontRemote(upstream)
	if err != nil {
		return nil, err
	}

	return session.NewManager(session.ManagerParams{
		Catalog:       loader,
		CartStore:     cartStore,
		WishlistStore: wishlistStore,
		Coupons:       validator,
		Quoter:        quoter,
		Placer:        placer,
		Notifications: remote,
		Metrics:       metricSet,
		Logger:        logg,
		Settings: session.Settings{
			TaxRate: cfg.Pricing.TaxRate,
			Rates: shipping.Rates{
				FreeThreshold: cfg.Pricing.FreeShippingThreshold,
				Standard:      cfg.Pricing.StandardShippingRate,
				Express:       cfg.Pricing.ExpressShippingRate,
			},
			Debounce:       cfg.Shipping.Debounce,
			RemoteTimeout:  cfg.Shipping.RemoteTimeout,
			MaxCartLines:   cfg.Cart.MaxLines,
			MailboxPage:    cfg.Notifications.PageSize,
			MailboxTimeout: cfg.Notifications.SyncTimeout,
			IdleTTL:        cfg.Session.IdleTTL,
			SweepInterval:  cfg.Session.SweepInterval,
		},
	})
}

func buildAddressService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (address.Service, error) {
	params := address.ServiceParams{
		DB:     dbClient,
		Repo:   address.NewRepository(dbClient.DB()),
		Logger: logg,
	}
	if cfg.GoogleMaps.APIKey != "" {
		places, err := maps.NewClient(cfg.GoogleMaps.APIKey,
			maps.WithHTTPClient(&http.Client{Timeout: cfg.GoogleMaps.Timeout}),
			maps.WithLanguage(cfg.GoogleMaps.Language),
			maps.WithRetries(cfg.GoogleMaps.Retries, 100*time.Millisecond),
		)
		if err != nil {
			return nil, err
		}
		params.Places = places
	} else {
		logg.Warn(context.Background(), "google maps api key not set, address suggestions disabled")
	}
	return address.NewService(params)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
