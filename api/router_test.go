package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/use-agent/scrollsnap/capture"
	"github.com/use-agent/scrollsnap/config"
	"github.com/use-agent/scrollsnap/ledger"
	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/observability"
	"github.com/use-agent/scrollsnap/segment"
	"github.com/use-agent/scrollsnap/snapshot"
	"github.com/use-agent/scrollsnap/storage"
)

const testKey = "test-key"

type testServer struct {
	router http.Handler
	dir    string
}

func newTestServer(t *testing.T, withLedger bool) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{testKey}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	queue := segment.NewQueue(segment.LogBackend{}, 8, 1, time.Second, metrics)
	t.Cleanup(func() { _ = queue.Close(context.Background()) })

	dir := t.TempDir()
	opts := snapshot.Options{
		OutputDir: dir,
		Store:     storage.NewCSVStore(),
		Queue:     queue,
		Metrics:   metrics,
		Logger:    logger,
	}

	var led *ledger.Ledger
	if withLedger {
		var err error
		led, err = ledger.Open(":memory:")
		if err != nil {
			t.Fatalf("ledger.Open: %v", err)
		}
		t.Cleanup(func() { led.Close() })
		opts.Ledger = led
	}

	eng := snapshot.NewEngine(opts)
	agent := capture.NewAgent(nil, eng, cfg.Capture, metrics, logger)
	t.Cleanup(agent.Close)

	r := NewRouter(Deps{
		Engine:    eng,
		Agent:     agent,
		Queue:     queue,
		Deriver:   &locator.Deriver{Logger: logger},
		Ledger:    led,
		Metrics:   metrics,
		StartTime: time.Now(),
	}, cfg)
	return &testServer{router: r, dir: dir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

const batchBody = `{"site":"www.example.com","scroll_index":0,"elements":[
	{"webElementId":1,"xpath":"/html/body/div[1]","text":"Hello"},
	{"webElementId":2,"xpath":"/html/body/div[2]","text":"World"}]}`

func TestIngest_InitialThenUnchanged(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/ingest", batchBody)
	if w.Code != http.StatusOK {
		t.Fatalf("first ingest status = %d, body %s", w.Code, w.Body.String())
	}
	first := decode[models.IngestResponse](t, w)
	if !first.Success || first.Kind != models.KindInitial || first.Message != "Scroll batch saved" {
		t.Errorf("first = %+v", first)
	}
	if first.Site != "example_com" || first.XPathCSV == "" {
		t.Errorf("site = %q, xpath csv = %q", first.Site, first.XPathCSV)
	}

	w = s.do(t, http.MethodPost, "/api/v1/ingest", batchBody)
	second := decode[models.IngestResponse](t, w)
	if w.Code != http.StatusOK || second.Kind != models.KindUnchanged || second.Message != "No changes detected" {
		t.Errorf("second = %d %+v", w.Code, second)
	}

	w = s.do(t, http.MethodGet, "/api/v1/history?site=example_com&scroll_index=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", w.Code, w.Body.String())
	}
	hist := decode[models.HistoryResponse](t, w)
	if len(hist.Entries) != 1 || hist.Entries[0].Kind != models.KindInitial {
		t.Errorf("history = %+v", hist.Entries)
	}
}

func TestIngest_BadRequests(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no elements", `{"site":"s","scroll_index":0,"elements":[]}`},
		{"negative index", `{"site":"s","scroll_index":-2,"elements":[{"webElementId":1,"xpath":"//p","text":""}]}`},
		{"missing fields", `{"site":"s","scroll_index":0,"elements":[{"xpath":"//p"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/ingest", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			resp := decode[models.IngestResponse](t, w)
			if resp.Success || resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(batchBody))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health without key status = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	w := s.do(t, http.MethodGet, "/api/v1/health", "")
	resp := decode[models.HealthResponse](t, w)
	if resp.Status != "healthy" || resp.PoolStats.Enabled {
		t.Errorf("health = %+v", resp)
	}
	if resp.Segmentation.Backend != "log" || resp.Segmentation.Capacity != 8 {
		t.Errorf("segmentation = %+v", resp.Segmentation)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPost, "/api/v1/ingest", batchBody)

	w := s.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "scrollsnap_") {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestHistory(t *testing.T) {
	disabled := newTestServer(t, false)
	if w := disabled.do(t, http.MethodGet, "/api/v1/history?site=x", ""); w.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d", w.Code)
	}

	s := newTestServer(t, true)
	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?site=x&scroll_index=abc", http.StatusBadRequest},
		{"?site=x&limit=0", http.StatusBadRequest},
		{"?site=x&limit=5", http.StatusOK},
	}
	for _, tt := range tests {
		if w := s.do(t, http.MethodGet, "/api/v1/history"+tt.query, ""); w.Code != tt.want {
			t.Errorf("history%s status = %d, want %d", tt.query, w.Code, tt.want)
		}
	}
}

func TestLocators_InlineHTML(t *testing.T) {
	s := newTestServer(t, false)

	body, _ := json.Marshal(models.LocateRequest{
		HTML:     `<html><head><title> Demo </title></head><body><div id="main"><p>Hi</p></div></body></html>`,
		Selector: "p",
	})
	w := s.do(t, http.MethodPost, "/api/v1/locators", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[models.LocateResponse](t, w)
	if resp.Title != "Demo" || resp.Total != 1 || len(resp.Elements) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	el := resp.Elements[0]
	if el.Tag != "p" || !strings.HasPrefix(el.Locator, "//") || el.Text != "Hi" {
		t.Errorf("element = %+v", el)
	}
}

func TestLocators_Validation(t *testing.T) {
	s := newTestServer(t, false)
	tests := []struct {
		name string
		body string
	}{
		{"neither", `{}`},
		{"both", `{"html":"<p></p>","url":"https://example.com"}`},
		{"url without fetcher", `{"url":"https://example.com"}`},
		{"bad selector", `{"html":"<p></p>","selector":"[["}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, http.MethodPost, "/api/v1/locators", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCapture_DisabledAndUnknown(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/capture", `{"url":"https://example.com"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("capture without browser status = %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/v1/capture", `{"url":"not a url"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid url status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/capture/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d", w.Code)
	}
	resp := decode[models.ErrorResponse](t, w)
	if resp.Error == nil || resp.Error.Code != models.ErrCodeNotFound {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t, false)
	if w := s.do(t, http.MethodGet, "/api/v1/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}
