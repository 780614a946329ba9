package segment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	jobs    []Job
	release chan struct{}
	err     error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Deliver(ctx context.Context, job Job) error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	b.jobs = append(b.jobs, job)
	b.mu.Unlock()
	return b.err
}

func TestQueue_DeliversAndDrains(t *testing.T) {
	b := &fakeBackend{}
	q := NewQueue(b, 8, 2, time.Second, nil)

	for i := 0; i < 5; i++ {
		if !q.Enqueue(Job{ID: "j", ScrollIndex: i}) {
			t.Fatalf("Enqueue(%d) dropped", i)
		}
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(b.jobs) != 5 {
		t.Errorf("delivered %d jobs, want 5", len(b.jobs))
	}
	if s := q.Stats(); s.Delivered != 5 || s.Dropped != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	b := &fakeBackend{release: make(chan struct{})}
	q := NewQueue(b, 1, 1, time.Second, nil)

	// The worker holds the first job, the buffer holds the second.
	q.Enqueue(Job{ID: "1"})
	deadline := time.Now().Add(time.Second)
	for len(q.jobs) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	q.Enqueue(Job{ID: "2"})

	if q.Enqueue(Job{ID: "3"}) {
		t.Error("Enqueue on a full queue returned true")
	}
	if got := q.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}

	close(b.release)
	_ = q.Close(context.Background())
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := NewQueue(&fakeBackend{}, 1, 1, time.Second, nil)
	_ = q.Close(context.Background())

	if q.Enqueue(Job{ID: "late"}) {
		t.Error("Enqueue after Close returned true")
	}
}

func TestQueue_CountsFailures(t *testing.T) {
	q := NewQueue(&fakeBackend{err: errors.New("down")}, 2, 1, time.Second, nil)
	q.Enqueue(Job{ID: "x"})
	_ = q.Close(context.Background())

	if got := q.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
}

func TestWebhook_SignsAndRetries(t *testing.T) {
	var calls atomic.Int32
	var gotSig string
	var gotEvent Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		if want := "sha256=" + Sign("s3cret", body); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		_ = json.Unmarshal(body, &gotEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "s3cret")
	w.Delays = []time.Duration{0, time.Millisecond}

	job := Job{ID: "job-1", Site: "example_com", ScrollIndex: 2, XPathCSV: "/out/x.csv"}
	if err := w.Deliver(context.Background(), job); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if gotEvent.Type != "segmentation.requested" || gotEvent.Data.XPathCSV != job.XPathCSV {
		t.Errorf("event = %+v", gotEvent)
	}
}

func TestWebhook_ExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "")
	w.Delays = []time.Duration{0, 0}

	if err := w.Deliver(context.Background(), Job{ID: "j"}); err == nil {
		t.Fatal("Deliver succeeded against a failing endpoint")
	}
}
