package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/mindengage-surveys/internal/api/http"
	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/config"
	"github.com/mind-engage/mindengage-surveys/internal/db"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/metrics"
	"github.com/mind-engage/mindengage-surveys/internal/receipt"
	"github.com/mind-engage/mindengage-surveys/internal/session"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Catalog ---
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
			return err
		}
	}

	// --- Drafts ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	backend, closeBackend, err := openDrafts(openCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("draft backend %s: %w", cfg.DraftDriver, err)
	}
	defer closeBackend()

	exports, err := storage.NewFSStore(cfg.ExportBaseDir)
	if err != nil {
		return fmt.Errorf("export store: %w", err)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Sinks and sessions ---
	receipts := receipt.NewIssuer(cfg.ReceiptSecret, cfg.ReceiptIssuer)
	mock := sink.NewMock(cat,
		sink.WithSubmitDelay(cfg.SubmitDelay),
		sink.WithCopyDelay(cfg.CopyDelay),
		sink.WithReceipts(receipts),
		sink.WithMetrics(m),
		sink.WithLogger(log))
	drafts := api.NewDrafts(backend, draft.WithLogger(log), draft.WithMetrics(m))
	sessions := session.NewRegistry(
		session.WithIdleTimeout(cfg.SessionIdle),
		session.WithMetrics(m),
		session.WithLogger(log))
	newEngine := func(clientID string) *engine.Engine {
		return engine.New(cat, drafts.Store(clientID), mock,
			engine.WithCopier(mock),
			engine.WithLogger(log.With(zap.String("client_id", clientID))))
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", api.ClientIDHeader},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/surveys", api.ListSurveysHandler(cat, log))
	r.Get("/api/survey/config/{surveyId}", api.SurveyConfigHandler(cat, log))
	r.Post("/api/survey/submit", api.SubmitHandler(mock, log))
	r.Post("/api/email/copy", api.CopyHandler(mock, log))
	r.Post("/api/receipts/verify", api.VerifyReceiptHandler(receipts))
	drafts.Register(r)
	api.NewSessions(sessions, newEngine, log).WithExports(exports).Register(r)
	r.Route("/api/exports", func(er chi.Router) {
		api.MountExports(er, exports)
	})

	r.Get("/healthz", api.HealthzHandler())
	r.Get("/readyz", api.ReadyzHandler(drafts.Store("")))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("drafts", string(cfg.DraftDriver)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(sweepEvery(cfg.SessionIdle))
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := sessions.Sweep(); n > 0 {
					log.Debug("idle sessions closed", zap.Int("count", n))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sessions.CloseAll()
		log.Info("stopped")
		return err
	})
	return g.Wait()
}

func sweepEvery(idle time.Duration) time.Duration {
	if d := idle / 2; d >= time.Second {
		return d
	}
	return time.Second
}

// openDrafts returns the configured draft backend and its closer.
func openDrafts(ctx context.Context, cfg config.Config) (draft.Backend, func(), error) {
	switch cfg.DraftDriver {
	case config.DraftMemory, "":
		return draft.NewMemoryBackend(), func() {}, nil
	case config.DraftSQLite, config.DraftPostgres:
		driver, err := db.ParseDriver(string(cfg.DraftDriver))
		if err != nil {
			return nil, nil, err
		}
		dbh, err := db.Open(ctx, driver, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		return draft.NewSQLBackend(dbh), func() { _ = dbh.Close() }, nil
	case config.DraftRedis:
		client, err := db.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPoolSize)
		if err != nil {
			return nil, nil, err
		}
		return draft.NewRedisBackend(client, draft.WithTTL(cfg.DraftTTL)), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown draft driver %q", cfg.DraftDriver)
	}
}
