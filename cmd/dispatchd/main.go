package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zevecom/canary/internal/dispatch"
	"github.com/zevecom/canary/internal/pool"
)

func main() {
	// Read the configuration
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg := dispatch.Load(path)

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("loaded config", "workers", cfg.Workers, "metrics_addr", cfg.MetricsAddr)

	p := pool.New(cfg.Workers, logger)
	p.Start()

	metrics := dispatch.NewMetrics(cfg.MetricsNamespace)
	d := dispatch.New(p, logger, metrics)
	d.Start()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", dispatch.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	// A cycle task standing in for the world heartbeat: logs progress and
	// fans a little parallel work out each second.
	var pulses atomic.Uint64
	pulseID := d.Schedule(time.Second, func() {
		n := pulses.Add(1)
		logger.Info("world pulse", "pulse", n, "serial_tasks", d.Cycle())
		d.PostAsync(func() {
			busyWork(2 * time.Millisecond)
		}, dispatch.GroupGenericParallel)
	}, "world:pulse", true)

	d.Post(func() {
		logger.Info("world initialized")
	}, "world:init")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	d.Cancel(pulseID)
	d.Stop()
	p.Stop()
	logger.Info("dispatcher shut down", "serial_tasks", d.Cycle())
}

func newLogger(cfg dispatch.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// busyWork stands in for a real parallel workload.
func busyWork(d time.Duration) {
	time.Sleep(d)
}
