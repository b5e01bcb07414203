package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	// Registers the severity/channel/rotationtype/role binding tags the
	// request DTOs in this package rely on against gin's validator engine.
	_ "oncall-platform/pkg/validator"
)

// buildVersion is overridable at link time; defaults to "dev" otherwise.
var buildVersion = "dev"

type healthBody struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// RegisterHealth wires /health and /health/ready, shared verbatim across
// all four binaries. ready accepts an optional readiness probe (e.g. a
// database ping); when nil, readiness always reports ok.
func RegisterHealth(r gin.IRouter, service string, ready func(ctx context.Context) error) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthBody{
			Status: "ok", Service: service, Version: buildVersion, Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, healthBody{
					Status: "not_ready", Service: service, Version: buildVersion, Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
				return
			}
		}
		c.JSON(http.StatusOK, healthBody{
			Status: "ok", Service: service, Version: buildVersion, Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
}
