package workflow

import (
	"context"
	"fmt"
	"sync"
)

// StepExecutor is the single-method interface every domain collaborator
// implements. Executors must be safe to call concurrently across unrelated
// runs and across fan-out branches of the same run.
type StepExecutor interface {
	Execute(ctx context.Context, input Projection) (PartialUpdate, error)
}

// StepFunc adapts a plain function to StepExecutor.
type StepFunc func(ctx context.Context, input Projection) (PartialUpdate, error)

func (f StepFunc) Execute(ctx context.Context, input Projection) (PartialUpdate, error) {
	return f(ctx, input)
}

// Registry maps step names to executors. It is populated by explicit
// Register calls at startup; no runtime plugin loading, no reflection.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]StepExecutor
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]StepExecutor)}
}

// Register binds a step name to an executor. Registering the same name twice
// is a programming error and is rejected.
func (r *Registry) Register(name string, step StepExecutor) error {
	if name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	if step == nil {
		return fmt.Errorf("step %q: executor cannot be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step %q already registered", name)
	}
	r.steps[name] = step
	return nil
}

// MustRegister is Register that panics on error, for static startup wiring.
func (r *Registry) MustRegister(name string, step StepExecutor) {
	if err := r.Register(name, step); err != nil {
		panic(err)
	}
}

// Get resolves a step by name.
func (r *Registry) Get(name string) (StepExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.steps[name]
	return step, ok
}

// Names returns all registered step names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	return names
}
