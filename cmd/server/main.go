/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave calendar server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config.toml
  2. Build the logger
  3. Initialize SQLite store
  4. Build metrics and the realtime signal (Redis or in-process)
  5. Create API handler and refresh scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config path (default: config.toml, missing file = defaults)
  -port    HTTP server port, overrides [server].port
  -db      SQLite database path, overrides [database].path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete ([server].shutdown_timeout)
  4. Close database and Redis connections
  5. Exit

EXAMPLES:
  # Run with in-memory database and debug logs
  ./server -db=":memory:"

  # Run several instances sharing change signals
  [realtime]
  redis_addr = "localhost:6379"

SEE ALSO:
  - config/config.go: Configuration sections
  - api/server.go: Router configuration
  - api/scheduler.go: Background refresh
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-calendar/api"
	"github.com/warp/leave-calendar/calendar"
	"github.com/warp/leave-calendar/config"
	"github.com/warp/leave-calendar/metrics"
	"github.com/warp/leave-calendar/realtime"
	"github.com/warp/leave-calendar/store/sqlite"
)

type changeSignal interface {
	realtime.Publisher
	realtime.Subscriber
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leave-calendar: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "config.toml", "TOML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := cfg.Logs.NewLogger(os.Stdout, cfg.Metrics.ServiceName)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	options := make(map[calendar.Kind]calendar.Options)
	for _, kind := range []calendar.Kind{calendar.KindDaily, calendar.KindVacation} {
		opts, err := cfg.Calendars.For(kind).Options(kind)
		if err != nil {
			return err
		}
		options[kind] = opts
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.ServiceName)
	}

	changes, closeChanges := newSignal(cfg.Realtime, logger)
	defer closeChanges()

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Calendars: options,
		Metrics:   m,
		Publisher: changes,
		Logger:    logger,
	})

	scheduler := api.NewRefreshScheduler(handler.Calendars, changes, logger)
	scheduler.Debounce = cfg.Realtime.Debounce
	scheduler.Interval = cfg.Realtime.Interval
	scheduler.Start()
	defer scheduler.Stop()

	routerOpts := api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins}
	if m != nil {
		routerOpts.MetricsHandler = m.Handler()
		routerOpts.MetricsPath = cfg.Metrics.Path
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, routerOpts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newSignal returns the change signal shared by the refresh endpoint and
// the scheduler: Redis pub/sub when configured, in-process otherwise.
func newSignal(cfg config.RealtimeConfig, logger *slog.Logger) (changeSignal, func()) {
	if cfg.RedisAddr == "" {
		b := realtime.NewBroadcaster()
		return b, b.Close
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("realtime signal via redis", "addr", cfg.RedisAddr, "channel", cfg.Channel)
	return realtime.NewRedis(rdb, cfg.Channel), func() { rdb.Close() }
}
