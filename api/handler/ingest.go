package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/snapshot"
)

// Ingest returns a handler for POST /api/v1/ingest.
//
// The first batch for a (site, scroll index) becomes its baseline; later
// batches persist only the records that differ from it.
func Ingest(eng *snapshot.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondIngestError(c, models.InvalidInput("invalid request body: %v", err))
			return
		}

		batch, err := snapshot.BatchFromRequest(&req)
		if err != nil {
			respondIngestError(c, err)
			return
		}

		res, err := eng.Ingest(c.Request.Context(), batch)
		if err != nil {
			respondIngestError(c, err)
			return
		}
		c.JSON(http.StatusOK, res.Response())
	}
}

func respondIngestError(c *gin.Context, err error) {
	ie := asIngestError(err)
	if !ie.IsClientError() {
		slog.Error("ingest failed", "code", ie.Code, "error", err)
	}
	c.JSON(mapErrorToStatus(ie), models.IngestResponse{
		Success: false,
		Error:   ie.ToDetail(),
	})
}
