package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/infrastructure/backpressure"
	"github.com/riftgate/llmgateway/internal/infrastructure/ratelimit"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// requestID stamps every request (and echoes it on the response) with an
// opaque id generated once at the HTTP boundary (or taken from an incoming
// X-Request-Id header) and stored in the gin context, where the access log
// and error bodies read it. It is not passed to the orchestrator.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// zapLogger logs every request: method, path, status, latency, request id.
func zapLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestIDFromCtx(c)),
		)
	}
}

func requestIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// sharedSecretAuth implements an optional Authorization: Bearer <secret>
// check — the gateway's only authentication mechanism. A blank secret
// disables the check entirely.
func sharedSecretAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != secret {
			writeHTTPError(c, gwerrors.NewAuth("invalid or missing credentials", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// backpressureGate rejects requests when the gate's admission checks fail,
// before a rate-limit check or an orchestrator call ever runs.
func backpressureGate(gate *backpressure.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Acquire(); err != nil {
			writeHTTPError(c, err)
			c.Abort()
			return
		}
		defer gate.Release()
		c.Next()
	}
}

// rateLimit applies the per-client token bucket keyed on the authenticated
// principal if present, else the client IP.
func rateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if err := limiter.Allow(key); err != nil {
			c.Header("X-RateLimit-Remaining", "0")
			writeHTTPError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if principal := c.GetString("principal"); principal != "" {
		return principal
	}
	return c.ClientIP()
}
