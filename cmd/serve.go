package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meditrack-backend/internal/api"
	"meditrack-backend/internal/middleware"
	"meditrack-backend/internal/services"
	"meditrack-backend/internal/telemetry"
)

// housekeepingInterval is how often expired revocations and idle rate limit entries are dropped
const housekeepingInterval = 10 * time.Minute

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, log := a.cfg, a.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:  "meditrack-backend",
		Version:      api.Version,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.EnableTracing,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		cache  services.Cache      = services.NewMemoryCache()
		tokens services.TokenStore = services.NewMemoryTokenStore()
	)
	if cfg.RedisURL != "" {
		client, err := services.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, using in-process cache and token store", zap.Error(err))
		} else {
			defer client.Close()
			cache = services.NewRedisCache(client)
			tokens = services.NewRedisTokenStore(client)
			log.Info("connected to redis")
		}
	}

	var mailer services.Mailer = services.NewLogMailer(log)
	if cfg.SMTPConfigured() {
		mailer = services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.SMTPFrom, cfg.SiteURL, log)
	}

	authService := services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiration, cfg.AdminEmailDomain, tokens)
	users := services.NewUserService(db, cfg.AdminEmailDomain)
	catalog := services.NewCatalogService(db, cache, cfg.CacheTTL, log)
	feed := services.NewOrderFeed(cfg.AllowedOrigins, cfg.AllowAllOrigins, log)
	orders := services.NewOrderService(db, catalog, feed, mailer, log)
	defer orders.Wait()

	var oauth *services.OAuthService
	if cfg.GoogleOAuthConfigured() {
		oauth = services.NewOAuthService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL,
			cfg.JWTSecret, users)
	}

	window := cfg.RateLimitWindowDuration()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, window)
	authLimiter := middleware.NewRateLimiter(max(cfg.RateLimitRequests/10, 5), window)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := api.NewRouter(&api.Dependencies{
		Config:          cfg,
		Logger:          log,
		DB:              db,
		Auth:            authService,
		Users:           users,
		OAuth:           oauth,
		Catalog:         catalog,
		Cart:            services.NewCartService(db),
		Orders:          orders,
		Dashboard:       services.NewDashboardService(db, catalog, orders, cfg.AdminEmailDomain),
		Feed:            feed,
		RateLimiter:     limiter,
		AuthRateLimiter: authLimiter,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "meditrack-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		feed.Run(gctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Cleanup(window)
				authLimiter.Cleanup(window)
				if memory, ok := tokens.(*services.MemoryTokenStore); ok {
					memory.CleanupExpired()
				}
			}
		}
	})

	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("google_oauth", oauth != nil),
			zap.Bool("smtp", cfg.SMTPConfigured()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}
