package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/models"
)

// asIngestError returns err as an IngestError, wrapping unknown errors as
// INTERNAL_ERROR.
func asIngestError(err error) *models.IngestError {
	var ie *models.IngestError
	if errors.As(err, &ie) {
		return ie
	}
	return models.NewIngestError(models.ErrCodeInternal, err.Error(), err)
}

// respondError writes err as a generic error response.
func respondError(c *gin.Context, err error) {
	ie := asIngestError(err)
	c.JSON(mapErrorToStatus(ie), models.ErrorResponse{
		Success: false,
		Error:   ie.ToDetail(),
	})
}

// badRequest reports a malformed request body or query.
func badRequest(c *gin.Context, msg string) {
	respondError(c, models.InvalidInput("%s", msg))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.IngestError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeFetchFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodeActionFailed:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
