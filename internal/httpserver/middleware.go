package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/pkg/logger"
	"pennywise/pkg/metrics"
	"pennywise/pkg/trace"
	"pennywise/pkg/util"
)

const ownerKey = "owner_id"

// Authenticator resolves a bearer token to an owner id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

func AuthMiddleware(auth Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			respondError(c, log, apperr.Unauthorized("missing token"))
			return
		}

		ownerID, err := auth.Authenticate(token)
		if err != nil {
			respondError(c, log, err)
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// RequestMiddleware propagates X-Trace-ID, logs the request and records its
// latency.
func RequestMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(trace.HeaderName)
		if traceID == "" {
			traceID = trace.NewID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		took := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), took)

		logger.WithTrace(c.Request.Context(), log).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("took", took),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
