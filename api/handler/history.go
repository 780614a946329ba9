package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/ledger"
	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/snapshot"
)

// History returns a handler for GET /api/v1/history?site=&scroll_index=&limit=.
// l may be nil when history is disabled.
func History(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			respondError(c, models.NewIngestError(models.ErrCodeNotFound, "ingest history is disabled", nil))
			return
		}

		site := c.Query("site")
		if site == "" {
			badRequest(c, "site is required")
			return
		}
		q := ledger.Query{Site: snapshot.SanitizeSite(site)}

		if raw := c.Query("scroll_index"); raw != "" {
			idx, ok := models.ParseScrollIndex(raw)
			if !ok {
				badRequest(c, "invalid scroll_index: "+raw)
				return
			}
			q.ScrollIndex = &idx
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 1000 {
				badRequest(c, "limit must be between 1 and 1000")
				return
			}
			q.Limit = n
		}

		entries, err := l.List(c.Request.Context(), q)
		if err != nil {
			respondError(c, models.NewIngestError(models.ErrCodeStorage, "failed to read history", err))
			return
		}
		c.JSON(http.StatusOK, models.HistoryResponse{Success: true, Entries: entries})
	}
}
