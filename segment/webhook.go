package segment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Scrollsnap-Signature"

// Event is the payload sent to the segmentation endpoint.
type Event struct {
	Type      string `json:"type"` // "segmentation.requested"
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      Job    `json:"data"`
}

// Webhook posts jobs to an HTTP endpoint, retrying failed deliveries.
type Webhook struct {
	URL    string
	Secret string

	// Delays are the waits before each attempt. Default: 0, 1s, 5s, 30s.
	Delays []time.Duration

	Client *http.Client
}

// NewWebhook creates a Webhook with the default retry schedule.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:    url,
		Secret: secret,
		Delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Deliver sends job, retrying per Delays until one attempt succeeds or ctx
// is done.
func (w *Webhook) Deliver(ctx context.Context, job Job) error {
	event := &Event{
		Type:      "segmentation.requested",
		JobID:     job.ID,
		Timestamp: time.Now().Unix(),
		Data:      job,
	}

	var lastErr error
	for attempt, delay := range w.Delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("segment: webhook: %w (last error: %v)", ctx.Err(), lastErr)
			}
		}
		lastErr = w.send(ctx, event)
		if lastErr == nil {
			slog.Info("segmentation webhook delivered",
				"url", w.URL,
				"job_id", job.ID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("segmentation webhook delivery failed",
			"url", w.URL,
			"job_id", job.ID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return fmt.Errorf("segment: webhook exhausted %d attempts: %w", len(w.Delays), lastErr)
}

// send performs a single signed POST.
func (w *Webhook) send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("segment: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("segment: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Scrollsnap-Segment/1.0")

	if w.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.Secret, body))
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("segment: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("segment: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// LogBackend only logs jobs. It is used when no segmentation endpoint is
// configured.
type LogBackend struct{}

func (LogBackend) Name() string { return "log" }

func (LogBackend) Deliver(_ context.Context, job Job) error {
	slog.Info("segmentation job ready",
		"job_id", job.ID,
		"site", job.Site,
		"scroll_index", job.ScrollIndex,
		"xpath_csv", job.XPathCSV,
	)
	return nil
}
