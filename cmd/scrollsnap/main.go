package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/use-agent/scrollsnap/api"
	"github.com/use-agent/scrollsnap/cache"
	"github.com/use-agent/scrollsnap/capture"
	"github.com/use-agent/scrollsnap/config"
	"github.com/use-agent/scrollsnap/fetch"
	"github.com/use-agent/scrollsnap/ledger"
	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/observability"
	"github.com/use-agent/scrollsnap/screenshot"
	"github.com/use-agent/scrollsnap/segment"
	"github.com/use-agent/scrollsnap/snapshot"
	"github.com/use-agent/scrollsnap/storage"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("scrollsnap starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"outputDir", cfg.Storage.OutputDir,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Metrics ──────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// ── 4. Segmentation hand-off ────────────────────────────────────
	var backend segment.Backend = segment.LogBackend{}
	if cfg.Segment.WebhookURL != "" {
		backend = segment.NewWebhook(cfg.Segment.WebhookURL, cfg.Segment.WebhookSecret)
	}
	queue := segment.NewQueue(backend, cfg.Segment.QueueSize, cfg.Segment.Workers, cfg.Segment.Timeout, metrics)
	slog.Info("segmentation queue ready", "backend", backend.Name(), "workers", cfg.Segment.Workers)

	// ── 5. Snapshot engine (cache + ledger) ─────────────────────────
	baselines := cache.New[*storage.Table](cfg.Storage.CacheMaxEntries, time.Hour)
	defer baselines.Close()

	opts := snapshot.Options{
		OutputDir:   cfg.Storage.OutputDir,
		Store:       storage.NewCSVStore(),
		Screenshots: &screenshot.Saver{Annotate: cfg.Storage.AnnotateDelta, MaxPixels: cfg.Storage.ScreenshotMaxPixels},
		Queue:       queue,
		Cache:       baselines,
		Metrics:     metrics,
		Logger:      slog.Default(),
	}

	var led *ledger.Ledger
	if cfg.LedgerEnabled() {
		led, err = ledger.Open(cfg.Storage.LedgerPath)
		if err != nil {
			slog.Error("failed to open ledger", "path", cfg.Storage.LedgerPath, "error", err)
			os.Exit(1)
		}
		defer led.Close()
		opts.Ledger = led
	}

	eng := snapshot.NewEngine(opts)

	// ── 6. Browser capture (optional) ───────────────────────────────
	browser, err := capture.Launch(cfg.Browser)
	if err != nil {
		slog.Warn("browser unavailable, capture endpoints disabled", "error", err)
		browser = nil
	} else {
		defer browser.Close()
	}
	agent := capture.NewAgent(browser, eng, cfg.Capture, metrics, slog.Default())

	// ── 7. Static fetcher for locator derivation ────────────────────
	fetcher, err := fetch.New(cfg.Browser.Proxy, cfg.Capture.FetchTimeout)
	if err != nil {
		slog.Warn("fetcher unavailable, url locators disabled", "error", err)
		fetcher = nil
	}

	// ── 8. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Engine:    eng,
		Agent:     agent,
		Browser:   browser,
		Queue:     queue,
		Fetcher:   fetcher,
		Deriver:   &locator.Deriver{Logger: slog.Default()},
		Ledger:    led,
		Metrics:   metrics,
		StartTime: time.Now(),
	}, cfg)

	// ── 9. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 10. Graceful shutdown ───────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	agent.Close()
	if err := queue.Close(ctx); err != nil {
		slog.Warn("segmentation queue not drained", "error", err)
	}

	// browser, ledger and cache close via defer.
	slog.Info("scrollsnap stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
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
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
