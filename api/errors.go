package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/txn"
)

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, rvoc.ErrInvalidUsername),
		errors.Is(err, rvoc.ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, rvoc.ErrInvalidCredentials),
		errors.Is(err, rvoc.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, rvoc.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, rvoc.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, rvoc.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, txn.ErrConnectionFailure),
		errors.Is(err, txn.ErrRetryLimitReached):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail aborts the request. Server errors are logged and their details
// withheld from the client.
func (a *API) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("request_id", RequestIDFrom(c)),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, RequestID: RequestIDFrom(c)})
}
