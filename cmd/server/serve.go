package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/leadline/internal/api"
	"github.com/RichardoC/leadline/internal/cache"
	"github.com/RichardoC/leadline/internal/config"
	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/debugbridge"
	"github.com/RichardoC/leadline/internal/llm"
	"github.com/RichardoC/leadline/internal/mail"
	"github.com/RichardoC/leadline/internal/research"
	"github.com/RichardoC/leadline/internal/session"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the debug bridge when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// app holds what serve opens so it can be closed in one place.
type app struct {
	db    *db.Database
	cache cache.Cache
}

func (a *app) Close() error {
	return multierr.Combine(a.cache.Close(), a.db.Close())
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return err
	}

	contextCache := cache.Nop()
	if cfg.Redis.URL != "" {
		if contextCache, err = cache.Dial(ctx, cfg.Redis.URL); err != nil {
			database.Close()
			return err
		}
	}
	a := &app{db: database, cache: contextCache}
	defer func() { err = multierr.Append(err, a.Close()) }()

	llmService, err := llm.New(cfg.LLM, database, logger)
	if err != nil {
		return err
	}
	researchService, err := research.New(ctx, cfg.Research, database, logger)
	if err != nil {
		return err
	}
	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return err
	}
	notifier := mail.NewNotifier(mailer, cfg.Mail.AdminEmail, logger)

	handler := api.NewHandler(api.Options{
		DB:            database,
		Sessions:      session.NewService(database, contextCache, cfg.Redis.ContextTTL, logger),
		LLM:           llmService,
		Research:      researchService,
		Notifier:      notifier,
		Logger:        logger,
		AdminToken:    cfg.Admin.Token,
		AllowedOrigin: cfg.Server.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Admin.Token == "" {
		logger.Warn("ADMIN_TOKEN is not set, admin routes are disabled")
	}
	logger.Info("Starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("database", cfg.Database.Driver),
		zap.String("cache", cache.Describe(contextCache)),
		zap.String("model", cfg.LLM.Model),
		zap.Bool("research", researchService.Enabled()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.DebugBridge.Enabled {
		bridge := debugbridge.New(cfg.DebugBridge.Capacity, logger)
		g.Go(func() error {
			return bridge.Serve(gctx, cfg.DebugBridge.Addr)
		})
	}

	return g.Wait()
}
