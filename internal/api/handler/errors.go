package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/topicmodel/internal/api/middleware"
	"github.com/timmy/topicmodel/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrJobExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrModelNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged and not exposed.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// queryThreshold parses ?threshold, defaulting to def.
func queryThreshold(c *gin.Context, def float64) (float64, bool) {
	raw := c.Query("threshold")
	if raw == "" {
		return def, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || t < 0 {
		badRequest(c, "threshold must be a non-negative number")
		return 0, false
	}
	return t, true
}

// queryLimit parses ?limit; zero means unlimited.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
