package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// recovery turns a panic into the same JSON error shape every other failure uses.
func recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error("panic serving request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal Server Error",
			"timestamp": time.Now().UTC().Format(timestampLayout),
		})
	})
}
