// Package middleware adapts the teacher's common middleware chain
// (recovery, request logging, CORS, request id) to zap-based structured
// logging and config-driven CORS, and adds an optional API-key check for
// the cases where a gateway isn't already enforcing one.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"oncall-platform/pkg/apierror"
	"oncall-platform/pkg/response"
)

// RecoveryMiddleware recovers from panics and returns a 500 in the
// error-handling design's shape rather than a bare status code.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
				response.Error(c, apierror.New(apierror.KindUnexpected, "internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// LoggerMiddleware logs each request's method, path, status, and latency
// as structured fields, tagged with the request id.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		requestID, _ := c.Get("request_id")
		logger.Info("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Any("request_id", requestID),
		)
	}
}

// CORSMiddleware allows the configured origin allowlist; "*" allows any.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware accepts X-Request-ID on inbound, generating one
// when absent, and always echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// APIKeyMiddleware is a deliberately thin, optional check: when apiKey is
// empty (the default), it is a no-op, since real auth is a gateway
// concern out of this system's scope. When configured, it requires a
// matching Authorization bearer token or X-API-Key header.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		supplied := c.GetHeader("X-API-Key")
		if supplied == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				supplied = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if supplied != apiKey {
			response.Error(c, apierror.New(apierror.KindBadRequest, "missing or invalid API key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
