package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/capture"
	"github.com/use-agent/scrollsnap/models"
)

// PostCapture returns a handler for POST /api/v1/capture.
// It starts a background capture job and returns its id.
func PostCapture(agent *capture.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CaptureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		if !agent.Enabled() {
			c.JSON(http.StatusServiceUnavailable, models.CaptureResponse{
				Status: models.JobFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeCaptureFailed,
					Message: "browser capture is disabled",
				},
			})
			return
		}

		job, err := agent.Start(&req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.CaptureResponse{
			ID:     job.ID,
			Status: models.JobProcessing,
			Site:   job.Site,
		})
	}
}

// GetCapture returns a handler for GET /api/v1/capture/:id.
func GetCapture(agent *capture.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := agent.Job(c.Param("id"))
		if !ok {
			respondError(c, models.NewIngestError(models.ErrCodeNotFound, "capture job not found", nil))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}
