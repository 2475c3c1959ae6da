package api

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const ctxKeyLogger = "till.logger"

// logFor returns the request-scoped logger, falling back to the default logger.
func logFor(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// generateRequestID creates a random hex string for request tracing.
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// requestLogger tags each request with an id, stores a logger carrying it
// and logs method, path, status and duration once the handler returns.
func requestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := generateRequestID()
		c.Header("X-Request-ID", id)
		l := base.With("rid", id)
		c.Set(ctxKeyLogger, l)

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		l.Log(c.Request.Context(), level, "req",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"dur", time.Since(start).String(),
		)
	}
}

// recovery catches panics and returns a 500 in the API's error shape.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logFor(c).Error("panic recovered", "panic", rec, "path", c.Request.URL.Path)
		writeError(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	})
}
