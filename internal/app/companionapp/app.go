// Package companionapp wires the device companion server: the purchase
// coordinator, the appearance preferences service and their HTTP surface.
package companionapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/tipjar/internal/config"
	redrepo "github.com/ivankudzin/tipjar/internal/repo/redis"
	prefssvc "github.com/ivankudzin/tipjar/internal/services/prefs"
	purchasesvc "github.com/ivankudzin/tipjar/internal/services/purchase"
	"github.com/ivankudzin/tipjar/internal/storefront"
	"github.com/ivankudzin/tipjar/internal/storefront/httpstore"
	"github.com/ivankudzin/tipjar/internal/storefront/storetest"
)

type App struct {
	cfg         config.Config
	logger      *zap.Logger
	server      *http.Server
	redis       *goredis.Client
	coordinator *purchasesvc.Coordinator
	httpRouter  http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	store, err := newStorefront(cfg, log)
	if err != nil {
		return nil, err
	}

	coordinator, err := purchasesvc.New(ctx, store, purchasesvc.Config{
		TipSmallID:     storefront.ProductID(cfg.Billing.TipSmallID),
		TipLargeID:     storefront.ProductID(cfg.Billing.TipLargeID),
		SubscriptionID: storefront.ProductID(cfg.Billing.SubscriptionID),
		ResetDelay:     cfg.Billing.ResetDelay,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create purchase coordinator: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	prefsRepo := redrepo.NewPrefsRepo(redisClient)
	prefsService := prefssvc.NewService(prefsRepo, prefssvc.Config{
		DefaultAccentColor: cfg.Prefs.DefaultAccentColor,
		DefaultIcon:        cfg.Prefs.DefaultIcon,
	})

	RegisterRoutes(r, Dependencies{
		Coordinator:  coordinator,
		PrefsService: prefsService,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:         cfg,
		logger:      log,
		server:      server,
		redis:       redisClient,
		coordinator: coordinator,
		httpRouter:  r,
	}, nil
}

// newStorefront picks the configured backend: an HTTP client against a
// storefrontd instance, or the scripted in-memory store seeded from the
// catalog config for running without external services.
func newStorefront(cfg config.Config, log *zap.Logger) (storefront.Storefront, error) {
	switch cfg.Storefront.Mode {
	case "", "http":
		if cfg.Storefront.BaseURL == "" {
			return nil, fmt.Errorf("storefront base url is required in http mode")
		}
		return httpstore.New(
			cfg.Storefront.BaseURL,
			cfg.Storefront.RequestTimeout,
			cfg.Storefront.PollInterval,
			log,
		), nil
	case "local":
		products := make([]storefront.Product, 0, len(cfg.Store.Catalog))
		for _, p := range cfg.Store.Catalog {
			products = append(products, storefront.Product{
				ID:          storefront.ProductID(p.ID),
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
			})
		}
		return storetest.New(products...), nil
	default:
		return nil, fmt.Errorf("unknown storefront mode %q", cfg.Storefront.Mode)
	}
}

func (a *App) Run() error {
	a.logger.Info("companion server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
