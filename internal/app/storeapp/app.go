// Package storeapp wires the storefront emulator server: the catalog and
// purchase ledger, receipt signing and the emulator HTTP API.
package storeapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/ivankudzin/tipjar/internal/config"
	s3infra "github.com/ivankudzin/tipjar/internal/infra/s3"
	pgrepo "github.com/ivankudzin/tipjar/internal/repo/postgres"
	storesvc "github.com/ivankudzin/tipjar/internal/services/store"
	"github.com/ivankudzin/tipjar/internal/storefront"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	products := make([]storefront.Product, 0, len(cfg.Store.Catalog))
	for _, p := range cfg.Store.Catalog {
		products = append(products, storefront.Product{
			ID:          storefront.ProductID(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		})
	}

	var archive storesvc.Archive
	if s3Client != nil {
		archive = storesvc.NewS3Archive(s3Client, cfg.S3.Bucket)
	}

	storeService, err := storesvc.NewService(storesvc.Dependencies{
		Ledger:  pgrepo.NewTransactionRepo(pool),
		Signer:  storesvc.NewReceiptSigner(cfg.Store.ReceiptSecret),
		Archive: archive,
	}, storesvc.Config{
		Products:         products,
		UpdateBatchLimit: cfg.Store.UpdateBatchLimit,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create store service: %w", err)
	}

	RegisterRoutes(r, Dependencies{
		StoreService: storeService,
		AdminToken:   cfg.Store.AdminToken,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("storefront emulator started", zap.String("addr", a.cfg.HTTP.Addr))
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
	if a.postgres != nil {
		a.postgres.Close()
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
