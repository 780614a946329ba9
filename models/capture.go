package models

import "sync"

// Capture job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// CaptureScroll is the outcome of one captured viewport.
type CaptureScroll struct {
	ScrollIndex int             `json:"scroll_index"`
	Elements    int             `json:"elements"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Result      *IngestResponse `json:"result"`
}

// CaptureJob tracks a background page capture. It is shared between the
// capture goroutine and status readers, so fields are guarded by mu.
type CaptureJob struct {
	mu sync.Mutex

	ID          string
	URL         string
	Site        string
	Status      string
	Scrolls     []*CaptureScroll
	Error       *ErrorDetail
	CreatedAt   int64
	CompletedAt int64
}

// AddScroll appends a finished viewport.
func (j *CaptureJob) AddScroll(s *CaptureScroll) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Scrolls = append(j.Scrolls, s)
}

// Finish marks the job completed, or failed when detail is non-nil.
func (j *CaptureJob) Finish(detail *ErrorDetail, at int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobCompleted
	if detail != nil {
		j.Status = JobFailed
		j.Error = detail
	}
	j.CompletedAt = at
}

// Snapshot returns a consistent copy of the job for serialisation.
func (j *CaptureJob) Snapshot() CaptureStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	scrolls := make([]*CaptureScroll, len(j.Scrolls))
	copy(scrolls, j.Scrolls)
	return CaptureStatusResponse{
		ID:          j.ID,
		URL:         j.URL,
		Site:        j.Site,
		Status:      j.Status,
		Completed:   len(scrolls),
		Scrolls:     scrolls,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// CaptureResponse is the immediate response for POST /api/v1/capture.
type CaptureResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Site   string       `json:"site,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// CaptureStatusResponse is the response for GET /api/v1/capture/:id.
type CaptureStatusResponse struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Site        string           `json:"site"`
	Status      string           `json:"status"`
	Completed   int              `json:"completed"`
	Scrolls     []*CaptureScroll `json:"scrolls"`
	Error       *ErrorDetail     `json:"error,omitempty"`
	CreatedAt   int64            `json:"created_at"`
	CompletedAt int64            `json:"completed_at,omitempty"`
}
