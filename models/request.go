package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IngestRequest is the payload for POST /api/v1/ingest.
type IngestRequest struct {
	// Site identifies the captured web site (usually its host name).
	Site string `json:"site"`

	// Website is accepted as an alias of Site.
	Website string `json:"website,omitempty"`

	// ScrollIndex is the viewport position of the batch. Integer or
	// integer-like string. When absent, the first element's scrollIndex
	// column is used.
	ScrollIndex json.RawMessage `json:"scroll_index,omitempty"`

	// Elements are the captured element records. At least one is required.
	Elements []Record `json:"elements"`

	// Screenshot is an optional data URL ("data:image/png;base64,...").
	Screenshot string `json:"screenshot,omitempty"`
}

// SiteName returns Site, falling back to Website.
func (r *IngestRequest) SiteName() string {
	if r.Site != "" {
		return r.Site
	}
	return r.Website
}

// ResolveScrollIndex returns the explicit scroll_index, or the first
// element's scrollIndex when no explicit value was sent.
func (r *IngestRequest) ResolveScrollIndex() (int, error) {
	raw := bytes.TrimSpace(r.ScrollIndex)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		text := string(raw)
		if raw[0] == '"' {
			if err := json.Unmarshal(raw, &text); err != nil {
				return 0, InvalidInput("invalid scroll_index: %s", raw)
			}
		}
		n, ok := ParseScrollIndex(text)
		if !ok {
			return 0, InvalidInput("invalid scroll_index: %s", text)
		}
		return n, nil
	}

	if len(r.Elements) > 0 {
		if v, present := r.Elements[0].Get(ColScrollIndex); present && v != "" {
			n, ok := ParseScrollIndex(v)
			if !ok {
				return 0, InvalidInput("invalid scroll_index: %s", v)
			}
			return n, nil
		}
	}
	return 0, InvalidInput("missing scroll_index")
}

// Validate checks that the batch is non-empty and that every record carries
// the required columns.
func (r *IngestRequest) Validate() error {
	if len(r.Elements) == 0 {
		return InvalidInput("no elements provided")
	}
	for i, rec := range r.Elements {
		if missing := rec.Missing(); len(missing) > 0 {
			return InvalidInput("element %d is missing required field(s): %s", i, strings.Join(missing, ", "))
		}
	}
	return nil
}

// ParseScrollIndex parses a non-negative integer, also accepting integral
// decimal forms such as "3.0".
func ParseScrollIndex(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// LocateRequest is the payload for POST /api/v1/locators.
// Exactly one of HTML or URL must be set.
type LocateRequest struct {
	// HTML is a static document to derive locators for.
	HTML string `json:"html,omitempty"`

	// URL is fetched over HTTP when HTML is empty.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// Selector optionally restricts derivation to elements matching a CSS
	// selector. Default: every element in the document.
	Selector string `json:"selector,omitempty"`

	// Limit caps the number of returned elements. Default: 500.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1,max=10000"`
}

// Defaults applies default values to unset fields.
func (r *LocateRequest) Defaults() {
	if r.Limit == 0 {
		r.Limit = 500
	}
}

// CaptureRequest is the payload for POST /api/v1/capture.
type CaptureRequest struct {
	// URL is the page to capture. Required.
	URL string `json:"url" binding:"required,url"`

	// Site overrides the site name derived from the URL host.
	Site string `json:"site,omitempty"`

	// MaxScrolls bounds the number of viewports captured.
	MaxScrolls int `json:"max_scrolls,omitempty" binding:"omitempty,min=1,max=500"`

	// Timeout is the deadline in seconds for the whole capture.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=1800"`

	// Stealth enables anti-bot-detection evasions.
	Stealth bool `json:"stealth,omitempty"`

	// MinArea is the minimum element area in CSS pixels.
	MinArea int `json:"min_area,omitempty" binding:"omitempty,min=0"`

	// Screenshots controls whether each viewport is screenshotted.
	// Default: true.
	Screenshots *bool `json:"screenshots,omitempty"`

	// Headers are extra HTTP headers sent with the navigation.
	Headers map[string]string `json:"headers,omitempty"`

	// Actions run in order after navigation, before the first viewport is
	// captured. Use them to dismiss overlays or open collapsed content.
	Actions []Action `json:"actions,omitempty" binding:"omitempty,max=20,dive"`
}

// Action is a browser step run before capture.
type Action struct {
	// Type is one of "wait", "click" or "execute_js".
	Type string `json:"type" binding:"required,oneof=wait click execute_js"`

	// Selector is the CSS selector for click, or to wait for.
	Selector string `json:"selector,omitempty"`

	// Milliseconds is a fixed wait when no selector is set.
	Milliseconds int `json:"milliseconds,omitempty" binding:"omitempty,min=0,max=30000"`

	// Code is the function evaluated by execute_js.
	Code string `json:"code,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *CaptureRequest) Defaults(maxScrolls, minArea int, timeoutSec int) {
	if r.MaxScrolls == 0 {
		r.MaxScrolls = maxScrolls
	}
	if r.MinArea == 0 {
		r.MinArea = minArea
	}
	if r.Timeout == 0 {
		r.Timeout = timeoutSec
	}
	if r.Screenshots == nil {
		t := true
		r.Screenshots = &t
	}
}
