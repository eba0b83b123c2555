package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"matchengine/internal/model"
	"matchengine/internal/repository"
	"matchengine/internal/service"
)

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, model.ErrInvalidCriteria):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBuyerNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrRankingUnavailable), errors.Is(err, service.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "30")
	}
	c.JSON(status, gin.H{
		"error":     err.Error(),
		"retryable": service.IsRetryable(err),
	})
}
