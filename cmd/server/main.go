// Command server runs the lockout service: the signed lock/unlock endpoints,
// a guarded example login surface, Prometheus metrics, and the retention
// prune worker. Business logic lives in internal/lockout.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lockoutcfg "lockgate/internal/lockout/config"
	"lockgate/internal/lockout/counter"
	"lockgate/internal/lockout/engine"
	"lockgate/internal/lockout/handler"
	"lockgate/internal/lockout/metrics"
	lockoutmw "lockgate/internal/lockout/middleware"
	"lockgate/internal/lockout/notify"
	"lockgate/internal/lockout/resolver"
	"lockgate/internal/lockout/signedurl"
	"lockgate/internal/lockout/store"
	"lockgate/internal/lockout/workers/prune"
	"lockgate/internal/platform/config"
	"lockgate/internal/platform/database"
	"lockgate/internal/platform/logger"
	"lockgate/internal/platform/redis"
	request "lockgate/pkg/platform/middleware/request"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

func main() {
	srvCfg := config.FromEnv()
	lockCfg := lockoutcfg.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	log.Info("initializing lockgate",
		"addr", srvCfg.Addr,
		"max_attempts", lockCfg.MaxAttempts,
		"decay_window", lockCfg.DecayWindow,
		"cache_store", lockCfg.CacheStore,
	)

	m := metrics.New()

	rdb, err := redis.New(srvCfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	var attempts counter.Counter
	if lockCfg.CacheStore == "redis" && rdb != nil {
		attempts = counter.NewRedis(rdb.Client, lockCfg.DecayWindow)
	} else {
		if lockCfg.CacheStore == "redis" {
			log.Warn("redis counter requested but REDIS_URL not set, using in-memory counter")
		}
		attempts = counter.NewMemory(lockCfg.DecayWindow)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = srvCfg.DatabaseURL
	dbCfg.MaxOpenConns = srvCfg.DBMaxOpenConns
	dbCfg.MaxIdleConns = srvCfg.DBMaxIdleConns
	dbCfg.ConnMaxLifetime = srvCfg.DBConnMaxLifetime
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	registry := resolver.NewRegistry(lockCfg.SubjectKind)

	var locks interface {
		engine.Store
		prune.Store
	}
	if pool != nil {
		locks = store.NewPostgres(pool.DB())
		pg, err := resolver.NewPostgres(pool.DB(), lockCfg.SubjectKind, lockCfg.SubjectTable, lockCfg.LoginField)
		if err != nil {
			log.Error("invalid subject table configuration", "error", err)
			os.Exit(1)
		}
		registry.Register(lockCfg.SubjectKind, pg)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory lock store")
		locks = store.NewMemory()
		registry.Register(lockCfg.SubjectKind, resolver.NewStatic())
	}

	gateway := signedurl.New(srvCfg.BaseURL, []byte(srvCfg.SigningSecret),
		signedurl.WithRejectionHook(func(reason string) {
			m.SignedURLRejections.WithLabelValues(reason).Inc()
		}),
	)
	notifier := notify.NewLogNotifier(log)

	eng, err := engine.New(attempts, locks,
		engine.WithConfig(lockCfg),
		engine.WithResolver(registry),
		engine.WithNotifier(notifier),
		engine.WithSigner(gateway),
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)
	if err != nil {
		log.Error("engine construction failed", "error", err)
		os.Exit(1)
	}
	eng.RegisterDefaultListeners()

	guard := lockoutmw.NewGuard(eng, locks, lockCfg,
		lockoutmw.WithLogger(log),
		lockoutmw.WithMetrics(m),
	)

	router := chi.NewRouter()
	router.Use(requesttime.Middleware)
	router.Use(request.RequestID)
	router.Use(request.Recovery(log))

	handler.New(eng, registry, locks, gateway, lockCfg, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthHandler(pool, rdb))

	// The guard is exported for host applications; this route demonstrates
	// the wiring and keeps the check exercised end to end.
	router.With(guard.RequireNotLocked(nil)).Post("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if lockCfg.Prune.Enabled {
		pruner := prune.New(locks, lockCfg.Prune,
			prune.WithLogger(log),
			prune.WithMetrics(m),
		)
		go func() {
			if err := pruner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("prune worker stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", srvCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}
	log.Info("server stopped")
}

func healthHandler(pool *database.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Health(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
			rdb.RecordPoolStats()
		}
		w.WriteHeader(http.StatusOK)
	}
}
