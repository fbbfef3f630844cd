package server

import (
	"errors"
	"net/http"
	"postpilot/pkg/postpilot"
	"postpilot/scraper"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fetchErr *scraper.FetchError
	switch {
	case errors.Is(err, postpilot.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, postpilot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, postpilot.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, postpilot.ErrNoActiveTopics):
		return http.StatusUnprocessableEntity
	case postpilot.IsPublishError(err), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", "path", c.FullPath(), "status_code", status, "error", err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
