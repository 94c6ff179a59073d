package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures one syscall's duration for RecordSyscall.
type Timer struct {
	start   time.Time
	metrics *Metrics
	name    string
}

// NewTimer starts timing the named syscall.
func NewTimer(metrics *Metrics, name string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, name: name}
}

// Stop records the elapsed time under the given result label.
func (t *Timer) Stop(result string) {
	t.metrics.RecordSyscall(t.name, result, time.Since(t.start))
}
