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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/somerville/nbhd-map/internal/cache"
	"github.com/somerville/nbhd-map/internal/config"
	"github.com/somerville/nbhd-map/internal/db"
	"github.com/somerville/nbhd-map/internal/layermap"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/somerville/nbhd-map/internal/metrics"
	"github.com/somerville/nbhd-map/internal/middleware"
	"github.com/somerville/nbhd-map/internal/nbhd"
)

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(os.Getenv("NBHD_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL, cfg.Log.SlowQuery, log)
	if err != nil {
		log.Fatal("Database connection failed", "error", err)
	}
	if err := nbhd.Init(gdb); err != nil {
		log.Fatal("Schema setup failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cache.Open(cfg.Redis, log)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		log.Warn("Redis unreachable, serving from the database", "error", err)
	}

	store := nbhd.NewStore(gdb)

	var reload nbhd.Reloader
	if runCfg, err := layermap.NewConfig(cfg.Loader); err != nil {
		log.Warn("Reload disabled", "error", err)
	} else {
		reload = nbhd.NewReloader(runCfg, store, c, log)
	}
	if cfg.Admin.TokenHash == "" {
		log.Info("Admin routes disabled (no admin.token_hash)")
	}

	h := nbhd.NewHandler(store, c, reload, log)

	r := newRouter(ctx, cfg, h, func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}, log)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.Std(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown failed", "error", err)
		}
	}()

	log.Info("Server listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server failed", "error", err)
	}
	log.Info("Server stopped")
}

// newRouter mounts every route. The public and admin routes share the
// per-IP rate limiter, which runs before the admin token check.
func newRouter(ctx context.Context, cfg config.Config, h *nbhd.Handler, ping func(context.Context) error, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Instrument)
	r.Use(middleware.CORSMiddleware(cfg.HTTP.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.HTTP.RateLimit > 0 {
			rl := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
			go rl.SweepEvery(ctx, time.Minute)
			r.Use(rl.Middleware)
		}
		r.Get("/", h.Index)
		r.Mount("/neighborhoods", nbhd.SetupRoutes(h))
		r.Mount("/admin", nbhd.SetupAdminRoutes(h, cfg.Admin.TokenHash))
	})

	return r
}
