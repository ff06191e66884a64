package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"loginguard/internal/api"
	"loginguard/internal/config"
	"loginguard/internal/counter"
	"loginguard/internal/logger"
	"loginguard/internal/login"
	"loginguard/internal/models"
	"loginguard/internal/observability"
	"loginguard/internal/password"
	"loginguard/internal/ratelimit"
	"loginguard/internal/session"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"loginguard/internal/version"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var configFile = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	loginMetrics, err := observability.NewLoginMetrics(otelProvider.MeterProvider())
	if err != nil {
		slog.Error("Failed to create login metrics", "error", err)
		os.Exit(1)
	}

	// Initialize the counter store
	store, mode, err := initializeCounterStore(cfg, log, loginMetrics)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		slog.Warn("Shared counter store unreachable at startup, using local fallback", "error", err)
	}
	cancelPing()
	slog.Info("Counter store ready", "mode", mode, "key_prefix", cfg.Store.KeyPrefix)

	// Wrap the store with instrumentation if metrics are enabled
	var activeStore counter.Store = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStore(store)
		if err != nil {
			slog.Error("Failed to create instrumented store", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented
	}

	// Initialize the account directory
	directory, err := storage.NewFactory().Create(cfg.Accounts)
	if err != nil {
		slog.Error("Failed to initialize account directory", "error", err, "type", cfg.Accounts.Type)
		os.Exit(1)
	}
	defer directory.Close()

	issuer, err := session.NewIssuer(cfg.Session)
	if err != nil {
		slog.Error("Failed to initialize session issuer", "error", err)
		os.Exit(1)
	}
	if issuer.GeneratedSecret() {
		slog.Warn("No session secret configured; generated one, sessions will not survive a restart")
	}

	// Initialize the login service
	keys := throttle.NewKeys(cfg.Store.KeyPrefix)
	lockout := throttle.NewLockout(activeStore, keys, cfg.Lockout.Base, cfg.Lockout.Cap, log)
	accountant := throttle.NewAccountant(activeStore, keys, throttleLimits(cfg.Throttle), lockout)
	loginService := login.NewService(accountant, lockout, directory,
		password.NewVerifier(cfg.Password.BcryptCost), issuer,
		login.WithFailClosed(cfg.Lockout.FailClosed),
		login.WithLogger(log),
		login.WithRecorder(loginMetrics),
	)

	// Initialize HTTP handlers with the store and directory for health checks
	handlers := api.NewHandlers(loginService, issuer,
		api.WithCounterStore(activeStore, mode),
		api.WithDirectory(directory),
		api.WithTrustProxyHeaders(cfg.Server.TrustProxyHeaders),
		api.WithVersion(ver.Version),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	// Initialize the request burst guard if enabled
	if cfg.RequestLimit.Enabled {
		limiter := ratelimit.NewFromConfig(cfg.RequestLimit)
		defer limiter.Close()
		keyFunc := api.ClientIPFunc(cfg.Server.TrustProxyHeaders)
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(limiter, keyFunc)))
	}

	router := api.SetupRoutes(handlers, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "version", ver.Version)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeCounterStore builds the fallback store: Redis when an address is
// configured, with the process-local store behind it. The returned mode is
// "shared" or "local".
func initializeCounterStore(cfg *models.Config, log *slog.Logger, metrics *observability.LoginMetrics) (*counter.FallbackStore, string, error) {
	local := counter.NewMemoryStore()
	opts := []counter.FallbackOption{
		counter.WithLogger(log),
		counter.WithFallbackHook(metrics.RecordFallback),
	}

	if cfg.Store.Redis.Addr == "" {
		return counter.NewFallbackStore(nil, local, opts...), "local", nil
	}

	redisCfg := cfg.Store.Redis
	client, err := counter.NewRedisClient(counter.RedisConfig{
		Addr:           redisCfg.Addr,
		Password:       redisCfg.Password,
		DB:             redisCfg.DB,
		PoolSize:       redisCfg.PoolSize,
		DialTimeout:    redisCfg.DialTimeout,
		CommandTimeout: redisCfg.CommandTimeout,
	})
	if err != nil {
		return nil, "", err
	}
	shared := counter.NewRedisStore(client, redisCfg.CommandTimeout)
	return counter.NewFallbackStore(shared, local, opts...), "shared", nil
}

func throttleLimits(cfg models.ThrottleConfig) throttle.Limits {
	return throttle.Limits{
		IPWindow:     cfg.IPWindow,
		IPCeiling:    cfg.IPCeiling,
		EmailWindow:  cfg.EmailWindow,
		EmailCeiling: cfg.EmailCeiling,
	}
}
