package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the kernel host.
type Metrics struct {
	// HTTP metrics (introspection API)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Object metrics
	ObjectsCreated *prometheus.CounterVec

	// Handle metrics
	HandlesLive    prometheus.Gauge
	HandleCapacity prometheus.Gauge

	// Task metrics
	ProcessesLive  prometheus.Gauge
	ProcessesTotal prometheus.Counter

	// Wait metrics
	WaitersBlocked prometheus.Gauge
	WaitDuration   prometheus.Histogram

	// IPC metrics
	MessagesWritten  prometheus.Counter
	MessageBytes     prometheus.Counter
	HandlesTransited prometheus.Counter

	// WebSocket metrics (debuglog stream)
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON stats API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current counter values for the JSON stats API.
type Snapshot struct {
	TotalSyscalls  int64
	TotalErrors    int64
	TotalProcesses int64
	TotalMessages  int64
}

// NewMetrics creates a new metrics collector registered on the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_http_requests_total",
				Help: "Total number of introspection HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_http_request_duration_seconds",
				Help:    "Introspection HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		SyscallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscalls_total",
				Help: "Total number of syscalls by name and resulting status",
			},
			[]string{"syscall", "status"},
		),
		SyscallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_syscall_duration_seconds",
				Help:    "Syscall duration in seconds, including block time",
				Buckets: []float64{.00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"syscall"},
		),

		ObjectsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_objects_created_total",
				Help: "Total kernel objects created by type",
			},
			[]string{"type"},
		),

		HandlesLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_handles_live",
				Help: "Live handles in the global arena",
			},
		),
		HandleCapacity: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_handles_capacity",
				Help: "Fixed capacity of the handle arena",
			},
		),

		ProcessesLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_processes_live",
				Help: "Live (not yet dead) processes",
			},
		),
		ProcessesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_processes_total",
				Help: "Total processes ever created",
			},
		),

		WaitersBlocked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_waiters_blocked",
				Help: "Goroutines currently parked in a blocking wait",
			},
		),
		WaitDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kernel_wait_duration_seconds",
				Help:    "Duration of blocking waits in seconds",
				Buckets: []float64{.0001, .001, .01, .1, 1, 10, 60},
			},
		),

		MessagesWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_messages_written_total",
				Help: "Messages written into message pipes",
			},
		),
		MessageBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_message_bytes_total",
				Help: "Payload bytes written into message pipes",
			},
		),
		HandlesTransited: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_handles_transferred_total",
				Help: "Handles moved between processes through messages",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_ws_connections",
				Help: "Active debuglog WebSocket subscribers",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Host uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

// updateUptime refreshes the uptime gauge every 10 seconds.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records metrics for an introspection HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSyscall records one syscall invocation and its outcome.
func (m *Metrics) RecordSyscall(name, result string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(name, result).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalSyscalls++
	if result != "ok" {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordObjectCreated counts a new kernel object by type name.
func (m *Metrics) RecordObjectCreated(typeName string) {
	m.ObjectsCreated.WithLabelValues(typeName).Inc()
}

// RecordProcessCreated counts a new process.
func (m *Metrics) RecordProcessCreated() {
	m.ProcessesTotal.Inc()
	m.mu.Lock()
	m.snapshot.TotalProcesses++
	m.mu.Unlock()
}

// RecordMessage counts one message-pipe write.
func (m *Metrics) RecordMessage(bytes, handles int) {
	m.MessagesWritten.Inc()
	m.MessageBytes.Add(float64(bytes))
	m.HandlesTransited.Add(float64(handles))
	m.mu.Lock()
	m.snapshot.TotalMessages++
	m.mu.Unlock()
}

// GetSnapshot returns current counter values for the JSON stats API.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
