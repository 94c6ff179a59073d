package task

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jixiang52002/magenta/internal/kernel/object"
)

// Registry tracks every live process by koid. Dead processes remove
// themselves, so a lookup never yields a corpse.
type Registry struct {
	mu     sync.Mutex
	procs  map[object.Koid]*Process
	logger *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		procs:  make(map[object.Koid]*Process),
		logger: logger,
	}
}

func (r *Registry) add(p *Process) {
	r.mu.Lock()
	r.procs[p.Koid()] = p
	n := len(r.procs)
	r.mu.Unlock()
	r.logger.Info("process registered",
		zap.Uint64("koid", uint64(p.Koid())),
		zap.String("name", p.Name()),
		zap.Int("live_processes", n))
}

func (r *Registry) remove(p *Process) {
	r.mu.Lock()
	delete(r.procs, p.Koid())
	n := len(r.procs)
	r.mu.Unlock()
	r.logger.Info("process unregistered",
		zap.Uint64("koid", uint64(p.Koid())),
		zap.Int("live_processes", n))
}

// LookupProcess finds a live process by koid.
func (r *Registry) LookupProcess(koid object.Koid) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[koid]
	return p, ok
}

// Processes snapshots the live set, ordered by koid.
func (r *Registry) Processes() []*Process {
	r.mu.Lock()
	out := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Koid() < out[j].Koid() })
	return out
}

// Count reports the number of live processes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
