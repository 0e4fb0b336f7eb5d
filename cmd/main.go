package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/hatch/internal/adapters/http/api"
	"github.com/okian/hatch/internal/adapters/http/swagger"
	"github.com/okian/hatch/internal/adapters/mq/queue"
	"github.com/okian/hatch/internal/adapters/repository"
	app "github.com/okian/hatch/internal/app"
	"github.com/okian/hatch/internal/config"
	"github.com/okian/hatch/internal/domain/streak"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "hatch exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run serves the API until ctx is canceled, then shuts the HTTP server and
// the service down.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	applyLogLevel(ctx, log, cfg.LogLevel)

	svc, closeStore, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	g.Go(func() error {
		return config.Watch(gctx, func(next *config.Config, err error) {
			if err != nil {
				log.Warn(gctx, "config reload failed", logger.Error(err))
				return
			}
			applyLogLevel(gctx, log, next.LogLevel)
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service stop: %w", err))
		}
		log.Info(shutdownCtx, "server stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newService builds the service over the configured store. The returned
// func releases the store.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func() error, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithQueue(func() queue.Queue {
			return queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
		}),
		app.WithEvaluator(streak.NewEvaluator(
			streak.WithWakingDayHour(cfg.WakingDayHour),
			streak.WithHitThreshold(cfg.HitThreshold),
			streak.WithExpiryWindow(cfg.ExpiryWindow),
			streak.WithLocation(loc),
		)),
		app.WithDefaultProgressTarget(cfg.DefaultProgressTarget),
		app.WithUserID(cfg.UserID),
		app.WithPollInterval(cfg.PollInterval),
		app.WithEvaluateInterval(cfg.EvaluateInterval),
	}

	closeStore := func() error { return nil }
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		opts = append(opts, app.WithStores(db.Talents(), db.Sessions()))
		closeStore = db.Close
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.SQLitePath))
	default:
		log.Info(ctx, "using memory store")
	}

	return app.New(opts...), closeStore, nil
}

// newHandler registers the docs and API routes behind the request id
// middleware.
func newHandler(ctx context.Context, svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return api.RequestIDMiddleware(mux)
}

// applyLogLevel falls back to info on invalid input.
func applyLogLevel(ctx context.Context, log logger.Logger, level string) {
	if err := logger.SetLevelString(level); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
