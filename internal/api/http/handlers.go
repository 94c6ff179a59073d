package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jixiang52002/magenta/internal/infrastructure/monitoring"
	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/syscalls"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// Handlers contains all introspection HTTP handlers.
type Handlers struct {
	sys     *syscalls.System
	metrics *monitoring.Metrics
}

// NewHandlers creates a new handler set over the kernel facade.
func NewHandlers(sys *syscalls.System, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{sys: sys, metrics: metrics}
}

// Root handles the liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Magenta Object Layer (Go)",
		"version": "0.2.0",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"handles": gin.H{
			"live":     h.sys.Arena().Live(),
			"capacity": h.sys.Arena().Capacity(),
		},
		"processes": h.sys.Registry().Count(),
	})
}

func processJSON(p *task.Process) gin.H {
	return gin.H{
		"koid":         uint64(p.Koid()),
		"name":         p.Name(),
		"state":        p.State().String(),
		"return_code":  p.ReturnCode(),
		"thread_count": p.ThreadCount(),
		"handle_count": p.HandleTableSize(),
	}
}

// ListProcesses lists every live process.
func (h *Handlers) ListProcesses(c *gin.Context) {
	procs := h.sys.Registry().Processes()
	out := make([]gin.H, 0, len(procs))
	for _, p := range procs {
		out = append(out, processJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"processes": out,
		"count":     len(out),
	})
}

// GetProcess reports one process by koid.
func (h *Handlers) GetProcess(c *gin.Context) {
	koid, err := strconv.ParseUint(c.Param("koid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid koid"})
		return
	}
	p, ok := h.sys.Registry().LookupProcess(object.Koid(koid))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such process"})
		return
	}
	c.JSON(http.StatusOK, processJSON(p))
}

// ListProcessHandles lists the handle table of one process.
func (h *Handlers) ListProcessHandles(c *gin.Context) {
	koid, err := strconv.ParseUint(c.Param("koid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid koid"})
		return
	}
	p, ok := h.sys.Registry().LookupProcess(object.Koid(koid))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such process"})
		return
	}
	out := make([]gin.H, 0, p.HandleTableSize())
	p.ForEachHandle(func(v handle.Value, hd *handle.Handle) bool {
		out = append(out, gin.H{
			"value":  uint32(v),
			"koid":   uint64(hd.Dispatcher().Koid()),
			"type":   hd.Dispatcher().Type().String(),
			"rights": uint32(hd.Rights()),
		})
		return true
	})
	c.JSON(http.StatusOK, gin.H{
		"handles": out,
		"count":   len(out),
	})
}

// ObjectStats reports arena and object-population statistics.
func (h *Handlers) ObjectStats(c *gin.Context) {
	snap := h.metrics.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"handles": gin.H{
			"live":     h.sys.Arena().Live(),
			"capacity": h.sys.Arena().Capacity(),
		},
		"processes": gin.H{
			"live":  h.sys.Registry().Count(),
			"total": snap.TotalProcesses,
		},
		"syscalls": gin.H{
			"total":  snap.TotalSyscalls,
			"errors": snap.TotalErrors,
		},
		"messages": snap.TotalMessages,
	})
}

// TailLog reports the most recent kernel log records.
func (h *Handlers) TailLog(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
			return
		}
		n = parsed
	}
	records := h.sys.DebugLog().Tail(n)
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"seq":    r.Seq,
			"when":   r.When,
			"source": uint64(r.Source),
			"data":   r.Data,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"records": out,
		"count":   len(out),
	})
}
