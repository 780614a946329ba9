// Package capture drives a headless browser through a page, one viewport at
// a time, and feeds every viewport into the snapshot engine.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/scrollsnap/config"
	"github.com/use-agent/scrollsnap/models"
)

// Browser owns the Chromium process and the reusable page pool.
// It is safe for concurrent use.
type Browser struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	activePages atomic.Int32

	mu     sync.Mutex
	health map[*rod.Page]*pageHealth
}

// Launch starts Chromium and creates the page pool.
func Launch(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("hide-scrollbars"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewIngestError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	slog.Info("page pool created", "maxPages", cfg.MaxPages)
	return &Browser{
		browser:  browser,
		pagePool: rod.NewPagePool(cfg.MaxPages),
		cfg:      cfg,
		health:   make(map[*rod.Page]*pageHealth),
	}, nil
}

// Stats returns a snapshot of the pool's current state. A nil Browser
// reports a disabled pool.
func (b *Browser) Stats() models.PoolStats {
	if b == nil {
		return models.PoolStats{}
	}
	return models.PoolStats{
		Enabled:     true,
		MaxPages:    b.cfg.MaxPages,
		ActivePages: int(b.activePages.Load()),
	}
}

// acquire borrows a page from the pool, blocking while the pool is
// exhausted. The returned func records whether the page was used
// successfully, then either retires it or navigates it to about:blank and
// returns it.
func (b *Browser) acquire() (*rod.Page, func(ok bool), error) {
	b.activePages.Add(1)
	page, err := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		b.activePages.Add(-1)
		return nil, nil, models.NewIngestError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	return page, func(ok bool) {
		defer b.activePages.Add(-1)
		if b.retire(page, ok) {
			slog.Info("retiring unhealthy page")
			_ = page.Close()
			// A nil slot makes the pool create a fresh page on the next Get.
			b.pagePool.Put(nil)
			return
		}
		if err := page.Navigate("about:blank"); err != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
		}
		b.pagePool.Put(page)
	}, nil
}

// retire records the outcome of one use of page and reports whether the
// page should be closed instead of reused.
func (b *Browser) retire(page *rod.Page, ok bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	h, found := b.health[page]
	if !found {
		h = newPageHealth(now)
		b.health[page] = h
	}
	h.record(ok)
	if h.shouldRetire(now) {
		delete(b.health, page)
		return true
	}
	return false
}

// Close drains the page pool and kills the browser process.
func (b *Browser) Close() {
	slog.Info("capture shutting down: draining page pool")
	b.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("capture shutting down: closing browser")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps browser errors in an IngestError whose code tells
// timeouts apart from navigation failures.
func categorizeError(err error, msg string) *models.IngestError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewIngestError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewIngestError(models.ErrCodeTimeout, "capture canceled", err)
	default:
		return models.NewIngestError(models.ErrCodeNavigation, msg, err)
	}
}
