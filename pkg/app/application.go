package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"robopay/internal/health/handler"
	"robopay/pkg/auth"
	"robopay/pkg/config"
	"robopay/pkg/contracts"
	"robopay/pkg/middleware"
)

type Application struct {
	cfg            *config.Config
	server         *http.Server
	rateLimiter    *middleware.PayerRateLimiter
	healthHandler  http.Handler
	appHttpHandler http.Handler
	onShutdown     []func()
}

func NewApplication() *Application {
	return &Application{}
}

// OnShutdown registers fn to run after the server has drained.
func (a *Application) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

func (a *Application) SetApp(cfg *config.Config, appHandler contracts.Handler) {
	a.cfg = cfg
	a.setHealthHandler(cfg)
	a.setAppHandler(cfg, appHandler)
	a.setAppServer()
}

// Handler returns the root handler. Exposed for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler(cfg *config.Config) {
	deps := map[string]handler.Pinger{}
	if cfg.Client.Mongo != nil {
		mongo := cfg.Client.Mongo
		deps["mongo"] = handler.PingFunc(func(ctx context.Context) error { return mongo.Ping(ctx, nil) })
	}
	if cfg.Client.Redis != nil {
		rdb := cfg.Client.Redis
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	healthRouter := httprouter.New()
	handler.NewHealthHandler(deps, cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(cfg *config.Config, appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.rateLimiter = middleware.NewPayerRateLimiter(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		middleware.PayerOrIP,
		cfg.Log,
	)

	var validator *auth.Validator
	if cfg.JWTSecret != "" {
		validator = auth.NewValidator(cfg.JWTSecret)
	}

	// Recovery → Logging → MaxSize → ContentType → Auth → RateLimit → Timeout → Idempotency → Router
	var appHttpHandler http.Handler = appRouter
	if cfg.Client.Redis != nil {
		store := middleware.NewRedisIdempotencyStore(cfg.Client.Redis, cfg.IdempotencyTTL)
		appHttpHandler = middleware.Idempotency(store, middleware.DefaultIdempotencyHeader, cfg.Log)(appHttpHandler)
	}
	appHttpHandler = middleware.RequestTimeout(cfg.RequestTimeout, cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.PayerRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = auth.Middleware(validator, cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	cfg.Log.Info("Application endpoints configured with full security middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.rateLimiter.Stop()
	for _, fn := range a.onShutdown {
		fn()
	}
	a.cfg.Log.Info("Server stopped gracefully")
}
