package models

// Ingest outcome kinds.
const (
	KindInitial     = "initial"
	KindIncremental = "incremental"
	KindUnchanged   = "unchanged"
)

// IngestResponse is the response for POST /api/v1/ingest.
type IngestResponse struct {
	// Success indicates whether the batch was processed.
	Success bool `json:"success"`

	// Message is a human readable outcome ("Scroll batch saved",
	// "No changes detected", "Modifications saved").
	Message string `json:"message,omitempty"`

	// Kind is one of initial, incremental or unchanged.
	Kind string `json:"kind,omitempty"`

	Site        string `json:"site,omitempty"`
	ScrollIndex int    `json:"scroll_index"`

	// Artifacts written by an initial capture.
	UncleanedCSV string `json:"uncleaned_csv,omitempty"`
	CleanedCSV   string `json:"cleaned_csv,omitempty"`
	XPathCSV     string `json:"xpath_csv,omitempty"`

	// ModifiedCSV is the delta artifact written by an incremental capture.
	ModifiedCSV string `json:"modified_csv,omitempty"`

	RowsTotal    int `json:"rows_total,omitempty"`
	RowsModified int `json:"rows_modified,omitempty"`

	// Screenshot is the saved image path, or null when none was saved.
	Screenshot *string `json:"screenshot"`

	// CapturedAt is the capture timestamp (RFC 3339).
	CapturedAt string `json:"captured_at,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// LocatedElement is one element of a LocateResponse.
type LocatedElement struct {
	Tag     string `json:"tag"`
	Locator string `json:"locator"`
	Text    string `json:"text,omitempty"`
}

// LocateResponse is the response for POST /api/v1/locators.
type LocateResponse struct {
	Success  bool             `json:"success"`
	FinalURL string           `json:"final_url,omitempty"`
	Title    string           `json:"title,omitempty"`
	Total    int              `json:"total"`
	Elements []LocatedElement `json:"elements"`
	Error    *ErrorDetail     `json:"error,omitempty"`
}

// HistoryEntry is one recorded artifact write.
type HistoryEntry struct {
	ID          int64  `json:"id"`
	Site        string `json:"site"`
	ScrollIndex int    `json:"scroll_index"`
	Kind        string `json:"kind"`
	Artifact    string `json:"artifact"`
	Rows        int    `json:"rows"`
	Screenshot  string `json:"screenshot,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Success bool           `json:"success"`
	Entries []HistoryEntry `json:"entries"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	PoolStats    PoolStats    `json:"pool_stats"`
	Segmentation SegmentStats `json:"segmentation"`
	Version      string       `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	Enabled     bool `json:"enabled"`
	MaxPages    int  `json:"max_pages"`
	ActivePages int  `json:"active_pages"`
}

// SegmentStats reports the segmentation queue counters.
type SegmentStats struct {
	Backend   string `json:"backend"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
}

// ErrorResponse is returned by endpoints that failed before producing a
// typed result, and by the middleware.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
