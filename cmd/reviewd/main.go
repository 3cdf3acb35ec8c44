package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	rvhttp "github.com/reviewd-io/reviewd/internal/adapter/http"
	"github.com/reviewd-io/reviewd/internal/adapter/litellm"
	"github.com/reviewd-io/reviewd/internal/adapter/logdispatch"
	"github.com/reviewd-io/reviewd/internal/adapter/memstore"
	"github.com/reviewd-io/reviewd/internal/adapter/natskv"
	"github.com/reviewd-io/reviewd/internal/adapter/natsq"
	"github.com/reviewd-io/reviewd/internal/adapter/otel"
	"github.com/reviewd-io/reviewd/internal/adapter/postgres"
	"github.com/reviewd-io/reviewd/internal/adapter/ristretto"
	"github.com/reviewd-io/reviewd/internal/adapter/slack"
	"github.com/reviewd-io/reviewd/internal/adapter/tiered"
	"github.com/reviewd-io/reviewd/internal/adapter/ws"
	"github.com/reviewd-io/reviewd/internal/config"
	"github.com/reviewd-io/reviewd/internal/logger"
	"github.com/reviewd-io/reviewd/internal/port/cache"
	"github.com/reviewd-io/reviewd/internal/port/dispatch"
	"github.com/reviewd-io/reviewd/internal/port/store"
	"github.com/reviewd-io/reviewd/internal/resilience"
	"github.com/reviewd-io/reviewd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"dev_mode", cfg.Server.DevMode,
		"dispatch_provider", cfg.Dispatch.Provider,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Error("telemetry shutdown failed", "error", err)
			}
		}()

		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("telemetry metrics: %w", err)
		}
		slog.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	// --- Store ---
	var st store.CorrelationStore
	if cfg.Server.DevMode {
		st = memstore.New()
		slog.Info("using in-memory store")
	} else {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		slog.Info("postgres connected")

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")

		st = postgres.NewStore(pool)
	}

	// --- Review dispatch ---
	var dispatcher dispatch.Dispatcher
	var natsDisp *natsq.Dispatcher
	switch {
	case cfg.Server.DevMode:
		dispatcher = logdispatch.New()
	case cfg.Dispatch.Provider == "slack":
		d := slack.NewDispatcher(cfg.Dispatch.SlackWebhookURL, cfg.Dispatch.CallbackBaseURL)
		d.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		dispatcher = d
	case cfg.Dispatch.Provider == "nats":
		natsDisp, err = natsq.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer natsDisp.Close()
		dispatcher = natsDisp
	default:
		dispatcher = logdispatch.New()
	}

	// --- Classification cache ---
	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()

	var classifyCache cache.Cache = l1
	if natsDisp != nil {
		// With NATS in play, share classifications across replicas
		// through a JetStream KV bucket behind the in-process layer.
		kv, err := natsDisp.KeyValue(ctx, cfg.NATS.KVBucket, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		classifyCache = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
	}

	// --- Classifier ---
	classifier := litellm.NewClient(
		cfg.Classifier.URL,
		cfg.Classifier.MasterKey,
		cfg.Classifier.Model,
		cfg.Classifier.Timeout,
	)
	classifier.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub(st, cfg.Broadcast)
	defer hub.Close()

	handlers := &rvhttp.Handlers{
		Intake:     service.NewIntake(classifier, st, dispatcher, classifyCache, cfg.Cache.TTL),
		Reconciler: service.NewReconciler(st, hub),
		Store:      st,
		Metrics:    metrics,
	}

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(rvhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rvhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	// Long-lived, exempt from the request timeout.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Get("/health", healthHandler(cfg, hub))
		rvhttp.MountRoutes(r, handlers, cfg.Webhook.Secret)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthHandler reports the configured backends and live observer count.
func healthHandler(cfg *config.Config, hub *ws.Hub) http.HandlerFunc {
	storeKind := "postgres"
	if cfg.Server.DevMode {
		storeKind = "memory"
	}
	dispatchKind := cfg.Dispatch.Provider
	if cfg.Server.DevMode {
		dispatchKind = "log"
	}

	type healthStatus struct {
		Status      string `json:"status"`
		Store       string `json:"store"`
		Dispatch    string `json:"dispatch"`
		Connections int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:      "ok",
			Store:       storeKind,
			Dispatch:    dispatchKind,
			Connections: hub.ConnectionCount(),
		})
	}
}
