// Package snapshot implements incremental scroll capture: the first batch
// seen for a (site, scroll index) becomes that key's baseline, and every
// later batch is reduced to the rows that differ from it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/scrollsnap/cache"
	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/observability"
	"github.com/use-agent/scrollsnap/segment"
	"github.com/use-agent/scrollsnap/storage"
)

// Store persists tables.
type Store interface {
	Exists(path string) (bool, error)
	Read(path string) (*storage.Table, error)
	Write(path string, t *storage.Table) error
}

// ScreenshotSaver writes a data URL screenshot to path, outlining highlight
// records when it supports annotation.
type ScreenshotSaver interface {
	Save(dataURL, path string, highlight []models.Record) (string, error)
}

// SegmentQueue accepts segmentation jobs without blocking.
type SegmentQueue interface {
	Enqueue(job segment.Job) bool
}

// Recorder keeps ingest history.
type Recorder interface {
	Record(ctx context.Context, e models.HistoryEntry) error
}

// baselineColumns is the projection persisted as the baseline.
var baselineColumns = []string{models.ColElementID, models.ColOriginalXPath, models.ColXPath, models.ColText}

// Batch is one scroll capture to ingest.
type Batch struct {
	Site        string
	ScrollIndex int
	Records     []models.Record
	Screenshot  string // data URL, optional
}

// BatchFromRequest resolves and validates an API request into a Batch.
func BatchFromRequest(req *models.IngestRequest) (Batch, error) {
	if err := req.Validate(); err != nil {
		return Batch{}, err
	}
	idx, err := req.ResolveScrollIndex()
	if err != nil {
		return Batch{}, err
	}
	return Batch{
		Site:        req.SiteName(),
		ScrollIndex: idx,
		Records:     req.Elements,
		Screenshot:  req.Screenshot,
	}, nil
}

func (b Batch) validate() error {
	if b.ScrollIndex < 0 {
		return models.InvalidInput("invalid scroll_index: %d", b.ScrollIndex)
	}
	if len(b.Records) == 0 {
		return models.InvalidInput("no elements provided")
	}
	for i, rec := range b.Records {
		if missing := rec.Missing(); len(missing) > 0 {
			return models.InvalidInput("element %d is missing required field(s): %s", i, strings.Join(missing, ", "))
		}
	}
	return nil
}

// Result describes what an ingest did.
type Result struct {
	Kind        string
	Message     string
	Site        string
	ScrollIndex int

	UncleanedCSV string
	CleanedCSV   string
	XPathCSV     string
	ModifiedCSV  string

	RowsTotal    int
	RowsModified int

	// Screenshot is the saved image path, "" when none was saved.
	Screenshot string
	CapturedAt time.Time

	// Delta holds the persisted delta rows of an incremental capture.
	Delta []models.Record
}

// Response converts the result to its API form.
func (r *Result) Response() *models.IngestResponse {
	resp := &models.IngestResponse{
		Success:      true,
		Message:      r.Message,
		Kind:         r.Kind,
		Site:         r.Site,
		ScrollIndex:  r.ScrollIndex,
		UncleanedCSV: r.UncleanedCSV,
		CleanedCSV:   r.CleanedCSV,
		XPathCSV:     r.XPathCSV,
		ModifiedCSV:  r.ModifiedCSV,
		RowsTotal:    r.RowsTotal,
		RowsModified: r.RowsModified,
		CapturedAt:   r.CapturedAt.Format(time.RFC3339),
	}
	if r.Screenshot != "" {
		s := r.Screenshot
		resp.Screenshot = &s
	}
	return resp
}

// Options configures an Engine. OutputDir and Store are required.
type Options struct {
	OutputDir   string
	Store       Store
	Screenshots ScreenshotSaver
	Queue       SegmentQueue
	Ledger      Recorder
	Cache       *cache.Cache[*storage.Table]
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine ingests scroll batches. It is safe for concurrent use; batches for
// the same (site, scroll index) are processed one at a time.
type Engine struct {
	layout  Layout
	store   Store
	shots   ScreenshotSaver
	queue   SegmentQueue
	ledger  Recorder
	cache   *cache.Cache[*storage.Table]
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	locks   *keyLocks
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		layout:  Layout{Root: opts.OutputDir},
		store:   opts.Store,
		shots:   opts.Screenshots,
		queue:   opts.Queue,
		ledger:  opts.Ledger,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "snapshot"),
		now:     opts.Now,
		locks:   newKeyLocks(),
	}
}

// Layout returns the artifact layout.
func (e *Engine) Layout() Layout { return e.layout }

// Ingest processes one batch. Errors are *models.IngestError: client errors
// are reported before anything is written.
func (e *Engine) Ingest(ctx context.Context, b Batch) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ingest panicked",
				"site", b.Site,
				"scroll_index", b.ScrollIndex,
				"panic", r,
			)
			res = nil
			err = models.NewIngestError(models.ErrCodeInternal, "internal error during ingest", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			code := models.ErrCodeInternal
			var ie *models.IngestError
			if errors.As(err, &ie) {
				code = ie.Code
			}
			e.metrics.IngestFailed(code)
			return
		}
		e.metrics.ObserveIngest(res.Kind, res.RowsTotal, res.RowsModified, time.Since(start))
	}()

	if err := b.validate(); err != nil {
		return nil, err
	}

	site := SanitizeSite(b.Site)
	unlock, err := e.locks.lock(ctx, site+"|"+strconv.Itoa(b.ScrollIndex))
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeInternal, "ingest canceled while waiting for key", err)
	}
	defer unlock()

	paths := e.layout.For(site, b.ScrollIndex)
	exists, err := e.store.Exists(paths.XPath)
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeStorage, "failed to look up baseline", err)
	}
	if !exists {
		return e.initial(ctx, b, site, paths)
	}
	return e.incremental(ctx, b, site, paths)
}

// initial writes the raw, cleaned and baseline tables and queues the
// baseline for segmentation. The baseline is written last so a failed
// initial capture can be retried.
func (e *Engine) initial(ctx context.Context, b Batch, site string, paths Paths) (*Result, error) {
	now := e.now()
	cleaned := cleanRecords(b.Records)
	baseline := project(cleaned, baselineColumns)

	writes := []struct {
		path  string
		table *storage.Table
		what  string
	}{
		{paths.Uncleaned, storage.TableFromRecords(b.Records), "raw batch"},
		{paths.Cleaned, storage.TableFromRecords(cleaned), "cleaned batch"},
		{paths.XPath, baseline, "baseline"},
	}
	for _, w := range writes {
		if err := e.store.Write(w.path, w.table); err != nil {
			return nil, models.NewIngestError(models.ErrCodeStorage, "failed to write "+w.what, err)
		}
	}
	if e.cache != nil {
		e.cache.Set(paths.XPath, baseline)
	}

	shot := e.saveScreenshot(b.Screenshot, paths.Screenshot, nil)

	if e.queue != nil {
		e.queue.Enqueue(segment.Job{
			ID:          uuid.NewString(),
			Site:        site,
			ScrollIndex: b.ScrollIndex,
			XPathCSV:    paths.XPath,
			CleanedCSV:  paths.Cleaned,
			Screenshot:  shot,
			EnqueuedAt:  now.Unix(),
		})
	}

	e.record(ctx, models.HistoryEntry{
		Site:        site,
		ScrollIndex: b.ScrollIndex,
		Kind:        models.KindInitial,
		Artifact:    paths.XPath,
		Rows:        len(b.Records),
		Screenshot:  shot,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	})

	e.logger.Info("baseline established",
		"site", site,
		"scroll_index", b.ScrollIndex,
		"rows", len(b.Records),
	)

	return &Result{
		Kind:         models.KindInitial,
		Message:      "Scroll batch saved",
		Site:         site,
		ScrollIndex:  b.ScrollIndex,
		UncleanedCSV: paths.Uncleaned,
		CleanedCSV:   paths.Cleaned,
		XPathCSV:     paths.XPath,
		RowsTotal:    len(b.Records),
		Screenshot:   shot,
		CapturedAt:   now,
	}, nil
}

// incremental compares the batch against the baseline and persists only the
// rows that changed.
func (e *Engine) incremental(ctx context.Context, b Batch, site string, paths Paths) (*Result, error) {
	now := e.now()

	baseline, err := e.loadBaseline(paths.XPath)
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeStorage, "failed to read baseline", err)
	}

	current := cleanRecords(b.Records)
	delta, err := Diff(baseline, current, models.ColOriginalXPath)
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeInternal, "baseline is not comparable with batch", err)
	}

	if len(delta) == 0 {
		e.logger.Debug("no changes detected", "site", site, "scroll_index", b.ScrollIndex)
		return &Result{
			Kind:        models.KindUnchanged,
			Message:     "No changes detected",
			Site:        site,
			ScrollIndex: b.ScrollIndex,
			RowsTotal:   len(b.Records),
			CapturedAt:  now,
		}, nil
	}

	flagged := strconv.Itoa(b.ScrollIndex)
	for i := range delta {
		delta[i].Delete(models.ColScrollIndexSnake)
		delta[i].Delete(models.ColScrollIndex)
		delta[i].Set(models.ColFlaggedScrollIndex, flagged)
	}

	ts := now.Format(TimestampFormat)
	seq, err := e.freeSequence(paths, ts)
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeStorage, "failed to name delta artifact", err)
	}
	modified := paths.Modified(ts, seq)
	if err := e.store.Write(modified, storage.TableFromRecords(delta)); err != nil {
		return nil, models.NewIngestError(models.ErrCodeStorage, "failed to write delta", err)
	}

	shot := e.saveScreenshot(b.Screenshot, paths.ModifiedScreenshot(ts, seq), delta)

	e.record(ctx, models.HistoryEntry{
		Site:        site,
		ScrollIndex: b.ScrollIndex,
		Kind:        models.KindIncremental,
		Artifact:    modified,
		Rows:        len(delta),
		Screenshot:  shot,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	})

	e.logger.Info("modifications saved",
		"site", site,
		"scroll_index", b.ScrollIndex,
		"rows_modified", len(delta),
		"rows_total", len(b.Records),
	)

	return &Result{
		Kind:         models.KindIncremental,
		Message:      "Modifications saved",
		Site:         site,
		ScrollIndex:  b.ScrollIndex,
		ModifiedCSV:  modified,
		RowsTotal:    len(b.Records),
		RowsModified: len(delta),
		Screenshot:   shot,
		CapturedAt:   now,
		Delta:        delta,
	}, nil
}

func (e *Engine) loadBaseline(path string) (*storage.Table, error) {
	if e.cache != nil {
		if t, ok := e.cache.Get(path); ok {
			return t, nil
		}
	}
	t, err := e.store.Read(path)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(path, t)
	}
	return t, nil
}

// freeSequence finds the first suffix under which no delta exists yet for ts.
func (e *Engine) freeSequence(paths Paths, ts string) (int, error) {
	for seq := 0; seq < 1000; seq++ {
		exists, err := e.store.Exists(paths.Modified(ts, seq))
		if err != nil {
			return 0, err
		}
		if !exists {
			return seq, nil
		}
	}
	return 0, fmt.Errorf("snapshot: too many deltas for timestamp %s", ts)
}

// saveScreenshot stores the screenshot if one was sent. Failures are logged
// and reported as "".
func (e *Engine) saveScreenshot(dataURL, path string, highlight []models.Record) string {
	if dataURL == "" || e.shots == nil {
		return ""
	}
	saved, err := e.shots.Save(dataURL, path, highlight)
	if err != nil {
		e.metrics.Screenshot("failed")
		e.logger.Warn("screenshot not saved", "path", path, "error", err)
		return ""
	}
	e.metrics.Screenshot("saved")
	return saved
}

func (e *Engine) record(ctx context.Context, entry models.HistoryEntry) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.logger.Warn("ledger write failed", "artifact", entry.Artifact, "error", err)
	}
}

// cleanRecords returns copies of records with the locator normalized and the
// original kept in original_xpath.
func cleanRecords(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, rec := range records {
		c := rec.Clone()
		orig := c.Value(models.ColXPath)
		c.Set(models.ColXPath, Normalize(orig))
		c.Set(models.ColOriginalXPath, orig)
		out[i] = c
	}
	return out
}

// project builds a table of the given columns from records.
func project(records []models.Record, cols []string) *storage.Table {
	t := &storage.Table{
		Columns: append([]string(nil), cols...),
		Rows:    make([][]string, 0, len(records)),
	}
	for _, rec := range records {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = rec.Value(col)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
