package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Executor runs tools from a registry under a per-call deadline and
// owns the shared instance cache for expensive collaborators.
type Executor struct {
	registry *Registry
	timeout  time.Duration

	cacheMu sync.Mutex
	cache   map[string]interface{}
}

// NewExecutor creates an executor over the given registry. timeout
// bounds each individual tool call; zero means no deadline.
func NewExecutor(registry *Registry, timeout time.Duration) *Executor {
	return &Executor{
		registry: registry,
		timeout:  timeout,
		cache:    make(map[string]interface{}),
	}
}

// Execute looks up and runs the named tool. The result map always has
// the _status key set on return. Errors are classified into the
// package sentinels: ErrUnknownTool, ErrTimeout, ErrToolExecution.
func (e *Executor) Execute(ctx context.Context, name string, args Args) (Result, error) {
	tool, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrToolExecution, name, err)
	}
	if result == nil {
		result = Result{}
	}
	if _, ok := result[KeyStatus]; !ok {
		result[KeyStatus] = StatusOK
	}
	return result, nil
}

// GetOrCreate returns the cached collaborator instance for key,
// constructing it with build on first use. Lookup and create are
// serialized; cached instances must themselves be concurrency-safe.
func (e *Executor) GetOrCreate(key string, build func() (interface{}, error)) (interface{}, error) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if inst, ok := e.cache[key]; ok {
		return inst, nil
	}
	inst, err := build()
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", key, err)
	}
	e.cache[key] = inst
	return inst, nil
}
