package syscalls

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jixiang52002/magenta/internal/infrastructure/monitoring"
	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
	"github.com/jixiang52002/magenta/internal/kernel/task"
)

// TimeInfinite as a timeout means wait forever.
const TimeInfinite int64 = math.MaxInt64

// Limits bounds the variable-size inputs a process can present.
type Limits struct {
	MaxMessageBytes   int
	MaxMessageHandles int
	MaxWaitHandles    int
}

// DefaultLimits mirrors the config defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes:   65536,
		MaxMessageHandles: 64,
		MaxWaitHandles:    256,
	}
}

// Config assembles a System.
type Config struct {
	Arena    *handle.Arena
	Registry *task.Registry
	DebugLog *object.DebugLog
	Limits   Limits
	Policy   task.BadHandlePolicy
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// System is the kernel facade: one instance owns the arena, the
// process registry, and the shared debuglog, and exposes every
// syscall as a method.
type System struct {
	arena    *handle.Arena
	registry *task.Registry
	dlog     *object.DebugLog
	limits   Limits
	policy   task.BadHandlePolicy
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a System from cfg, filling zero fields with defaults.
func New(cfg Config) *System {
	if cfg.Arena == nil {
		cfg.Arena = handle.NewArena(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = task.NewRegistry(cfg.Logger)
	}
	if cfg.DebugLog == nil {
		cfg.DebugLog = object.NewDebugLog(1024)
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	s := &System{
		arena:    cfg.Arena,
		registry: cfg.Registry,
		dlog:     cfg.DebugLog,
		limits:   cfg.Limits,
		policy:   cfg.Policy,
		logger:   cfg.Logger.Named("syscalls"),
		metrics:  cfg.Metrics,
	}
	if s.metrics != nil {
		s.metrics.HandleCapacity.Set(float64(s.arena.Capacity()))
	}
	return s
}

// NewDefault creates a System with default configuration and no
// metrics, for tests and embedding.
func NewDefault() *System {
	return New(Config{})
}

// Arena exposes the global handle arena.
func (s *System) Arena() *handle.Arena { return s.arena }

// Registry exposes the process registry.
func (s *System) Registry() *task.Registry { return s.registry }

// DebugLog exposes the shared kernel log ring.
func (s *System) DebugLog() *object.DebugLog { return s.dlog }

// record counts one syscall and classifies its outcome by status code.
func (s *System) record(name string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = status.Code(err).Error()
	}
	s.metrics.RecordSyscall(name, result, time.Since(start))
	s.metrics.HandlesLive.Set(float64(s.arena.Live()))
	s.metrics.ProcessesLive.Set(float64(s.registry.Count()))
}

// created counts one fresh kernel object.
func (s *System) created(t object.Type) {
	if s.metrics != nil {
		s.metrics.RecordObjectCreated(t.String())
	}
}

// timeoutDuration converts a nanosecond timeout to the millisecond
// tick granularity blocking primitives use. A nonzero timeout that
// rounds down to zero ticks still waits one tick rather than turning
// into a poll; TimeInfinite maps to a negative (forever) duration.
func timeoutDuration(ns int64) time.Duration {
	if ns == TimeInfinite {
		return -1
	}
	if ns <= 0 {
		return 0
	}
	d := time.Duration(ns/int64(time.Millisecond)) * time.Millisecond
	if d == 0 {
		d = time.Millisecond
	}
	return d
}

// install allocates an arena handle for d (consuming the caller's
// reference) and binds it into p's table. On arena exhaustion the
// reference is released and ErrNoMemory returned.
func (s *System) install(p *task.Process, d object.Dispatcher, rights object.Rights) (handle.Value, error) {
	h := s.arena.Alloc(d, rights)
	if h == nil {
		object.Release(d)
		return handle.Invalid, status.ErrNoMemory
	}
	return p.AddHandle(h), nil
}
