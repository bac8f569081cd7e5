package proxy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tracegate/tracegate/internal/logger"
	"github.com/tracegate/tracegate/internal/telemetry/prometheus"
	"github.com/tracegate/tracegate/internal/telemetry/stats"
)

func getMiddleware(log logger.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(correlationId, uuid.NewString())
		c.Header("Access-Control-Allow-Origin", "*")

		start := time.Now()
		c.Next()
		dur := time.Since(start)

		tags := []string{
			fmt.Sprintf("path:%s", c.FullPath()),
			fmt.Sprintf("method:%s", c.Request.Method),
		}

		stats.Incr("tracegate.proxy.requests", tags, 1)
		stats.Timing("tracegate.proxy.latency", dur, tags, 1)

		prometheus.RequestCount.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
		prometheus.RequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(dur.Seconds())

		if prod {
			log.Infow("request completed",
				correlationId, c.GetString(correlationId),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"latency_ms", dur.Milliseconds(),
			)
			return
		}

		log.Debugf("correlationId:%s | %s %s | %d | %dms", c.GetString(correlationId), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), dur.Milliseconds())
	}
}

func logError(log logger.Logger, msg string, prod bool, id string, err error) {
	if prod {
		log.Debugw(msg, correlationId, id, "error", err)
		return
	}

	log.Debugf("correlationId:%s | %s | %v", id, msg, err)
}
