// Explorer Server
//
// Serves the workspace explorer over HTTP:
// - Named workspaces with one active at a time
// - Tree reads, add/delete/move/rename, reveal on open
// - SSE stream of explorer events
// - Prometheus metrics & structured logging (zap)
// - Pluggable persistence (memory, local, PostgreSQL, SQLite, S3)
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/api"
	"github.com/fruitsalade/explorer/internal/auth"
	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/persist"
	"github.com/fruitsalade/explorer/internal/quota"
	"github.com/fruitsalade/explorer/internal/workspace"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Explorer server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("store", cfg.StoreBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persist.Open(ctx, cfg)
	if err != nil {
		logging.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	bus := events.NewBus()
	broadcaster := events.NewBroadcaster()
	bridge := events.Bridge(bus, broadcaster)
	defer bridge.Dispose()
	logging.Info("SSE broadcaster initialized")

	manager := workspace.NewManager(store, bus,
		workspace.WithRules(vpath.Rules{FoldCase: cfg.FoldCase, Reserved: cfg.ReservedNames}),
		workspace.WithRevealRepeat(cfg.RevealRepeat),
	)
	if err := manager.SwitchTo(ctx, cfg.DefaultWorkspace); err != nil {
		logging.Fatal("opening default workspace failed",
			zap.String("workspace", cfg.DefaultWorkspace), zap.Error(err))
	}

	authHandler := auth.New(cfg.JWTSecret, cfg.TokenTTL)
	if authHandler == nil {
		logging.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	srv := api.NewServer(manager, broadcaster, authHandler)
	limiter := quota.NewRateLimiter(cfg.RateLimitRPM)
	srv.SetRateLimiter(limiter)
	if limiter != nil {
		logging.Info("rate limiting enabled", zap.Int("rpm", cfg.RateLimitRPM))
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Cancelling ctx ends open SSE streams.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Retry saves that failed while the store was unavailable, and drop idle
	// rate limit buckets.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
				if len(manager.Dirty()) == 0 {
					continue
				}
				if err := manager.Flush(ctx); err != nil {
					logging.Warn("periodic flush failed", zap.Error(err))
				}
			}
		}
	}()

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
		if err := manager.Close(shutdownCtx); err != nil {
			logging.Error("final flush failed", zap.Error(err))
		}
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	<-done
}
