package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/canopyhq/canopy/internal/adapter/email"
	canopyhttp "github.com/canopyhq/canopy/internal/adapter/http"
	"github.com/canopyhq/canopy/internal/adapter/memblob"
	"github.com/canopyhq/canopy/internal/adapter/memqueue"
	"github.com/canopyhq/canopy/internal/adapter/natsblob"
	"github.com/canopyhq/canopy/internal/adapter/natskv"
	"github.com/canopyhq/canopy/internal/adapter/natsqueue"
	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/adapter/ristretto"
	"github.com/canopyhq/canopy/internal/adapter/tiered"
	"github.com/canopyhq/canopy/internal/config"
	"github.com/canopyhq/canopy/internal/domain/membership"
	"github.com/canopyhq/canopy/internal/logger"
	"github.com/canopyhq/canopy/internal/middleware"
	"github.com/canopyhq/canopy/internal/port/blobstore"
	pcache "github.com/canopyhq/canopy/internal/port/cache"
	"github.com/canopyhq/canopy/internal/port/mailer"
	"github.com/canopyhq/canopy/internal/port/taskqueue"
	"github.com/canopyhq/canopy/internal/resilience"
	"github.com/canopyhq/canopy/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// services is the wired service graph shared by the server and the admin
// subcommands.
type services struct {
	gate        *service.Gate
	entities    *service.EntityStore
	types       *service.TypeService
	orgs        *service.OrgService
	slugs       *service.SlugIndex
	auth        *service.AuthService
	importer    *service.Importer
	delivery    *service.Delivery
	invalidator *service.Invalidator
	queue       taskqueue.Queue
	idemKV      jetstream.KeyValue // nil for the memory driver
	log         *slog.Logger
}

// buildServices connects the storage backend and wires the service graph.
// The returned cleanup drains the queue and must run on shutdown.
func buildServices(ctx context.Context, cfg *config.Config, log *slog.Logger, metrics *otel.Metrics) (*services, func(), error) {
	var store blobstore.Store
	var queue taskqueue.Queue
	var js jetstream.JetStream

	switch cfg.Blob.Driver {
	case "nats":
		nq, err := natsqueue.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		ns, err := natsblob.Open(ctx, nq.JetStream(), cfg.Blob.Bucket)
		if err != nil {
			_ = nq.Close()
			return nil, nil, fmt.Errorf("object store: %w", err)
		}
		store, queue, js = ns, nq, nq.JetStream()
	case "memory":
		store, queue = memblob.New(), memqueue.New()
	default:
		return nil, nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}

	local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		_ = queue.Close()
		return nil, nil, fmt.Errorf("cache: %w", err)
	}

	// With NATS available the definition caches become two-level: every
	// process shares the KV copy while ristretto keeps the hot local set.
	var cache pcache.Cache = local
	var idemKV jetstream.KeyValue
	if js != nil {
		cacheKV, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: cfg.Blob.Bucket + "-cache",
			TTL:    cfg.Cache.TypeTTL,
		})
		if err != nil {
			_ = queue.Close()
			return nil, nil, fmt.Errorf("cache kv: %w", err)
		}
		cache = tiered.New(local, natskv.New(cacheKV), cfg.Cache.TypeTTL)

		idemKV, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: cfg.Blob.Bucket + "-idempotency",
			TTL:    24 * time.Hour,
		})
		if err != nil {
			_ = queue.Close()
			return nil, nil, fmt.Errorf("idempotency kv: %w", err)
		}
	}

	gate := service.NewGate(store, nil, log)
	gate.SetMetrics(metrics)
	types := service.NewTypeService(gate, cache)
	slugs := service.NewSlugIndex(gate)
	entities := service.NewEntityStore(gate, types, slugs, log)
	orgs := service.NewOrgService(gate)
	keys := service.NewMembershipService(func(context.Context) ([]membership.Key, error) {
		return cfg.Membership.Keys, nil
	}, cache)
	mat := service.NewMaterializer(gate, entities, types, orgs, keys, metrics, log)
	inv := service.NewInvalidator(gate, mat, types, orgs, metrics, log)

	gate.SetScheduler(service.NewQueueScheduler(queue))
	cancelSub, err := inv.Subscribe(ctx, queue)
	if err != nil {
		_ = queue.Close()
		return nil, nil, fmt.Errorf("invalidation subscribe: %w", err)
	}

	auth := service.NewAuthService(gate, &cfg.Auth, log)
	if cfg.Email.SMTPHost != "" {
		var m mailer.Mailer = email.NewMailer(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			From:     cfg.Email.From,
			Password: cfg.Email.Password,
		})
		auth.SetMailer(email.NewResilientMailer(m, resilience.NewBreaker(5, 30*time.Second)))
	}

	cleanup := func() {
		cancelSub()
		if err := queue.Drain(); err != nil {
			log.Warn("queue drain failed", "error", err)
		}
	}

	return &services{
		gate:        gate,
		entities:    entities,
		types:       types,
		orgs:        orgs,
		slugs:       slugs,
		auth:        auth,
		importer:    service.NewImporter(entities, types, slugs, log),
		delivery:    service.NewDelivery(gate),
		invalidator: inv,
		queue:       queue,
		idemKV:      idemKV,
		log:         log,
	}, cleanup, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"blob_driver", cfg.Blob.Driver,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	shutdownTracer, err := otel.InitTracer(ctx, cfg.Otel.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	svcs, cleanup, err := buildServices(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svcs.auth.SeedDefaultAdmin(ctx); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	svcs.auth.StartLinkCleanup(ctx, cfg.Auth.LinkCleanupInterval)

	handlers := &canopyhttp.Handlers{
		Entities:    svcs.entities,
		Types:       svcs.types,
		Orgs:        svcs.orgs,
		Auth:        svcs.auth,
		Slugs:       svcs.slugs,
		Importer:    svcs.importer,
		Delivery:    svcs.delivery,
		Invalidator: svcs.invalidator,
	}

	r := chi.NewRouter()

	r.Use(canopyhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(canopyhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Otel.Service))
	r.Use(canopyhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst).Handler)
	if svcs.idemKV != nil {
		r.Use(middleware.Idempotency(svcs.idemKV))
	}
	r.Use(canopyhttp.Auth(svcs.auth))

	r.Get("/health", healthHandler(cfg))

	canopyhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports service health and the configured backends.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		Blob   string `json:"blob"`
		NATS   string `json:"nats,omitempty"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", Blob: cfg.Blob.Driver}
		if cfg.Blob.Driver == "nats" {
			status.NATS = cfg.NATS.URL
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
