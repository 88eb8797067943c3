// README: Request logging middleware; one structured line per request.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"tawsil/internal/logger"
)

func Logging(log logger.ILogger) gin.HandlerFunc {
	log = logger.Component(log, "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("route", c.FullPath()),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, logger.String("errors", errs.String()))
			log.Error("http request failed", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}
