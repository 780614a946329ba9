package capture

import (
	"math"
	"time"
)

// Pages are retired when any of these is reached.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// pageHealth tracks how well a pooled page has been behaving. A success
// lowers the error score by 0.5 (never below 0) and a failure raises it by 1.
type pageHealth struct {
	errScore float64
	uses     int
	created  time.Time
}

func newPageHealth(now time.Time) *pageHealth {
	return &pageHealth{created: now}
}

func (h *pageHealth) record(ok bool) {
	h.uses++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore++
	}
}

func (h *pageHealth) shouldRetire(now time.Time) bool {
	return h.errScore >= retireErrScore ||
		h.uses >= retireUses ||
		now.Sub(h.created) >= retireAge
}
