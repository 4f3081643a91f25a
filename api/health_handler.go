package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// readyz reports 503 while the store cannot be reached.
func (a *API) readyz(c *gin.Context) {
	if err := a.pinger.Ping(c.Request.Context()); err != nil {
		a.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, StatusResponse{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}
