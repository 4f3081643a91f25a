package job

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/rvoc"
)

// Task is the work of one job kind. It runs outside any transaction.
type Task func(ctx context.Context) error

// Definition describes a job kind.
type Definition struct {
	Kind     Kind
	Schedule Schedule
	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
	Task    Task
}

// Option configures a Definition.
type Option func(*Definition)

// WithTimeout sets a per-run deadline.
func WithTimeout(d time.Duration) Option {
	return func(def *Definition) { def.Timeout = d }
}

// NewDefinition creates a job definition.
func NewDefinition(kind Kind, schedule Schedule, task Task, opts ...Option) *Definition {
	def := &Definition{
		Kind:     kind,
		Schedule: schedule,
		Task:     task,
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// Registry maps kinds to definitions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[Kind]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[Kind]*Definition)}
}

// Register adds a definition. Registering a kind twice fails with
// rvoc.ErrDuplicateJob.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Kind == "" {
		return fmt.Errorf("job: register: empty definition")
	}
	if def.Schedule == nil || def.Task == nil {
		return fmt.Errorf("job: register %s: schedule and task are required", def.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Kind]; ok {
		return fmt.Errorf("%w: %s", rvoc.ErrDuplicateJob, def.Kind)
	}
	r.defs[def.Kind] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for kind.
func (r *Registry) Get(kind Kind) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Known reports whether a queue row name parses into a registered kind.
func (r *Registry) Known(name string) bool {
	_, ok := r.Get(Kind(name))
	return ok
}

// Kinds returns all registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.defs))
	for k := range r.defs {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
