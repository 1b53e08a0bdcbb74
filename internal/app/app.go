// Package app wires the engine together: configuration, logging,
// OpenTelemetry, cache, pipeline, HTTP router and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"marketfuse/internal/cache"
	"marketfuse/internal/config"
	"marketfuse/internal/infrastructure"
	custommw "marketfuse/internal/middleware"
	"marketfuse/internal/pipeline"
	handlers "marketfuse/internal/transport/http"
	ws "marketfuse/internal/websocket"
)

// Version is the application version, overridable at build time.
var Version = "v1.0.0"

// Application is the composition root.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Pipeline      *pipeline.Pipeline
	Cache         *cache.Memory
	WebSocketHub  *ws.Hub
	OTelProviders *infrastructure.OTelProviders
	Logger        *slog.Logger
}

// NewApplication loads configuration and builds the full dependency graph.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", "marketfuse"),
		slog.String("version", Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}
	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	if a.Config.Cache.Enabled {
		a.Cache = cache.NewMemory(a.Config.Cache.SweepEvery)
	}

	opts := []pipeline.Option{pipeline.WithPublisher(hub)}
	if a.OTelProviders.Meter != nil {
		tracer, err := pipeline.NewTracer(a.OTelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create pipeline tracer: %w", err)
		}
		opts = append(opts, pipeline.WithTracer(tracer))
	}
	a.Pipeline = pipeline.New(a.Config.Engine, a.Logger, opts...)
	return nil
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Middleware that must not wrap the WebSocket ResponseWriter.
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)

	r.HandleFunc("/ws", ws.ServeWS(a.WebSocketHub, a.Logger))

	r.Group(func(r chi.Router) {
		r.Use(custommw.StructuredLogger(a.Logger))
		r.Use(custommw.Recoverer(a.Logger))
		r.Use(custommw.SecurityHeaders)
		r.Use(custommw.Compress(5))
		if a.Config.Server.RateLimit.Enabled {
			r.Use(custommw.NewRateLimiter(
				a.Config.Server.RateLimit.RPS,
				a.Config.Server.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			healthHandler := handlers.NewHealthHandler(Version)
			healthHandler.RegisterRoutes(r)

			var resultCache cache.Cache
			if a.Cache != nil {
				resultCache = a.Cache
			}
			pipelineHandler := handlers.NewPipelineHandler(a.Pipeline, resultCache, a.Config.Cache.DefaultTTL, a.Logger)
			pipelineHandler.RegisterRoutes(r)
		})

		r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}
	return a.Shutdown()
}

// Shutdown stops the server and its collaborators gracefully.
func (a *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.Warn("opentelemetry shutdown", slog.String("error", err.Error()))
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}
	a.Logger.Info("shutdown complete")
	return nil
}
