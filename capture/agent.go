package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"github.com/use-agent/scrollsnap/config"
	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/observability"
	"github.com/use-agent/scrollsnap/screenshot"
	"github.com/use-agent/scrollsnap/simhash"
	"github.com/use-agent/scrollsnap/snapshot"
)

const (
	// jobTTL is how long finished jobs stay queryable.
	jobTTL = time.Hour

	settlePoll = 150 * time.Millisecond

	// settleDistance is the largest fingerprint change still counted as settled.
	settleDistance = 3
)

// Ingester accepts scroll batches.
type Ingester interface {
	Ingest(ctx context.Context, b snapshot.Batch) (*snapshot.Result, error)
}

// Agent runs capture jobs in the background and keeps their status.
type Agent struct {
	browser *Browser
	engine  Ingester
	cfg     config.CaptureConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	// run performs one capture; replaced in tests.
	run func(ctx context.Context, job *models.CaptureJob, req *models.CaptureRequest) error

	jobs     sync.Map // id -> *models.CaptureJob
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewAgent creates an Agent and starts the expiry loop for finished jobs.
func NewAgent(browser *Browser, engine Ingester, cfg config.CaptureConfig, metrics *observability.Metrics, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		browser: browser,
		engine:  engine,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "capture"),
		stop:    make(chan struct{}),
	}
	a.run = a.capture
	go a.expireLoop()
	return a
}

// Start validates req, registers a job and captures in the background.
func (a *Agent) Start(req *models.CaptureRequest) (*models.CaptureJob, error) {
	req.Defaults(a.cfg.MaxScrolls, a.cfg.MinArea, int(a.cfg.Timeout/time.Second))
	site, err := siteFor(req)
	if err != nil {
		return nil, err
	}
	if err := validateActions(req.Actions); err != nil {
		return nil, err
	}

	job := &models.CaptureJob{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Site:      snapshot.SanitizeSite(site),
		Status:    models.JobProcessing,
		CreatedAt: time.Now().Unix(),
	}
	req.Site = site
	a.jobs.Store(job.ID, job)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.Timeout)*time.Second)
		defer cancel()
		go func() {
			select {
			case <-a.stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		start := time.Now()
		err := a.run(ctx, job, req)
		a.finish(job, err, time.Since(start))
	}()
	return job, nil
}

// Enabled reports whether a browser is available for captures.
func (a *Agent) Enabled() bool { return a.browser != nil }

// Job returns a registered job.
func (a *Agent) Job(id string) (*models.CaptureJob, bool) {
	v, ok := a.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.CaptureJob), true
}

// Close cancels running captures and waits for them to stop.
func (a *Agent) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Agent) finish(job *models.CaptureJob, err error, took time.Duration) {
	now := time.Now().Unix()
	if err == nil {
		job.Finish(nil, now)
		a.metrics.CaptureJob(models.JobCompleted)
		a.logger.Info("capture finished", "id", job.ID, "site", job.Site, "took", took)
		return
	}

	var ie *models.IngestError
	if !errors.As(err, &ie) {
		ie = models.NewIngestError(models.ErrCodeCaptureFailed, err.Error(), err)
	}
	job.Finish(ie.ToDetail(), now)
	a.metrics.CaptureJob(models.JobFailed)
	a.logger.Warn("capture failed", "id", job.ID, "site", job.Site, "code", ie.Code, "error", err)
}

func (a *Agent) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.expire(time.Now().Add(-jobTTL).Unix())
		}
	}
}

// expire drops finished jobs created before cutoff.
func (a *Agent) expire(cutoff int64) {
	a.jobs.Range(func(key, value any) bool {
		job := value.(*models.CaptureJob)
		if s := job.Snapshot(); s.Status != models.JobProcessing && s.CreatedAt < cutoff {
			a.jobs.Delete(key)
		}
		return true
	})
}

// siteFor returns the explicit site or the URL host.
func siteFor(req *models.CaptureRequest) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", models.InvalidInput("invalid url: %s", req.URL)
	}
	if req.Site != "" {
		return req.Site, nil
	}
	return u.Hostname(), nil
}

// capture opens req.URL and ingests one batch per viewport until the page
// stops scrolling or MaxScrolls viewports were captured.
func (a *Agent) capture(ctx context.Context, job *models.CaptureJob, req *models.CaptureRequest) (err error) {
	if a.browser == nil {
		return models.NewIngestError(models.ErrCodeCaptureFailed, "browser capture is disabled", nil)
	}

	// ── 1. Acquire page ──────────────────────────────────────────────
	page, release, err := a.browser.acquire()
	if err != nil {
		return err
	}
	defer func() { release(err == nil) }()

	// ── 2. Stealth, headers and resource blocking before navigation ──
	if req.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			a.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
	}
	if router := setupHijack(page, a.cfg.BlockedResourceTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 3. Navigate ──────────────────────────────────────────────────
	p := page.Context(ctx)
	navCtx, cancelNav := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	err = p.Context(navCtx).Navigate(req.URL)
	cancelNav()
	if err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		a.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	if err := runActions(ctx, p, req.Actions); err != nil {
		return err
	}

	// ── 4. Scroll and capture ────────────────────────────────────────
	col := &collector{
		doc:     &liveDocument{page: p},
		deriver: &locator.Deriver{Logger: a.logger},
		ids:     newIDAssigner(),
		logger:  a.logger.With("url", req.URL),
	}
	for n := 0; n < req.MaxScrolls; n++ {
		if n > 0 {
			moved, err := scrollViewport(p)
			if err != nil {
				return categorizeError(err, "scroll failed")
			}
			if !moved {
				a.logger.Debug("reached bottom of page", "id", job.ID, "viewports", n)
				break
			}
		}
		a.settle(p)

		if err := a.captureViewport(ctx, p, col, job, req); err != nil {
			return err
		}
	}
	return nil
}

// captureViewport collects the current viewport and ingests it.
func (a *Agent) captureViewport(ctx context.Context, p *rod.Page, col *collector, job *models.CaptureJob, req *models.CaptureRequest) error {
	metrics, err := p.Eval(`() => ({y: window.scrollY, h: window.innerHeight})`)
	if err != nil {
		return categorizeError(err, "failed to read scroll position")
	}
	scrollIndex := viewportIndex(metrics.Value.Get("y").Num(), metrics.Value.Get("h").Num())

	records, err := col.collect(p, scrollIndex, req.MinArea)
	if err != nil {
		return err
	}
	a.metrics.CaptureScroll()

	scroll := &models.CaptureScroll{
		ScrollIndex: scrollIndex,
		Elements:    len(records),
		Fingerprint: fmt.Sprintf("%016x", simhash.Viewport(records)),
	}
	if len(records) == 0 {
		a.logger.Info("viewport has no elements, skipping", "id", job.ID, "scroll_index", scrollIndex)
		job.AddScroll(scroll)
		return nil
	}

	var shot string
	if req.Screenshots != nil && *req.Screenshots {
		img, err := p.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err != nil {
			a.logger.Warn("viewport screenshot failed", "id", job.ID, "scroll_index", scrollIndex, "error", err)
		} else {
			shot = screenshot.EncodeDataURL(img)
		}
	}

	res, err := a.engine.Ingest(ctx, snapshot.Batch{
		Site:        req.Site,
		ScrollIndex: scrollIndex,
		Records:     records,
		Screenshot:  shot,
	})
	if err != nil {
		return err
	}
	scroll.Result = res.Response()
	job.AddScroll(scroll)
	return nil
}

// settle waits until two consecutive reads of the page text and markup are
// within settleDistance of each other, or SettleTimeout passes.
func (a *Agent) settle(p *rod.Page) {
	deadline := time.Now().Add(a.cfg.SettleTimeout)
	prevText, prevMarkup, ok := pageFingerprints(p)
	for ok && time.Now().Before(deadline) {
		select {
		case <-p.GetContext().Done():
			return
		case <-time.After(settlePoll):
		}
		text, markup, readOK := pageFingerprints(p)
		if !readOK {
			return
		}
		if simhash.Similar(prevText, text, settleDistance) && simhash.Similar(prevMarkup, markup, settleDistance) {
			return
		}
		prevText, prevMarkup = text, markup
	}
}

func pageFingerprints(p *rod.Page) (text, markup uint64, ok bool) {
	body := evalStringOrEmpty(p, `() => document.body ? document.body.innerText : ''`)
	html, err := p.HTML()
	if err != nil {
		return 0, 0, false
	}
	return simhash.Fingerprint(body), simhash.Markup(html), true
}

// scrollViewport scrolls down one viewport and reports whether the page moved.
func scrollViewport(p *rod.Page) (bool, error) {
	res, err := p.Eval(`() => {
		const before = window.scrollY;
		window.scrollBy(0, window.innerHeight);
		return window.scrollY !== before;
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// viewportIndex is floor(scrollY / innerHeight), 0 for an unusable height.
func viewportIndex(scrollY, innerHeight float64) int {
	if innerHeight <= 0 || scrollY <= 0 {
		return 0
	}
	return int(math.Floor(scrollY / innerHeight))
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
