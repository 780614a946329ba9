package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/capture"
	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/segment"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of browser pages are busy or the
// segmentation queue is more than 80% full. browser may be nil.
func Health(browser *capture.Browser, queue *segment.Queue, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		pool := browser.Stats()
		seg := queue.Stats()

		status := "healthy"
		if pool.MaxPages > 0 && pool.ActivePages > int(float64(pool.MaxPages)*0.8) {
			status = "degraded"
		}
		if seg.Capacity > 0 && seg.Pending > int(float64(seg.Capacity)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			PoolStats:    pool,
			Segmentation: seg,
			Version:      Version,
		})
	}
}
