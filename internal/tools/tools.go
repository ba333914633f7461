// Package tools provides the tool registry and executor used by the
// agent loop.
//
// Responsibilities:
//   - Register investigative tools by name
//   - Execute a tool with resolved arguments under a per-call deadline
//   - Cache expensive collaborator instances across investigations
//
// A tool is a named asynchronous operation from a string-keyed argument
// map to a string-keyed result map. Tools may return entities under an
// "entities" key, matches under "matches", articles under "articles",
// a result count under "result_count", or an error message under
// "error". The distinguished "_status" key carries "ok" or "error";
// when absent, success is inferred from a nil error.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for turn-level failure classification.
var (
	// ErrUnknownTool means the name is not in the registry. Fatal for
	// the turn, not the loop.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolExecution wraps a collaborator failure.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrTimeout means the per-call deadline was breached.
	ErrTimeout = errors.New("tool call timed out")
)

// Result keys with defined meaning across tools.
const (
	KeyStatus      = "_status"
	KeyEntities    = "entities"
	KeyMatches     = "matches"
	KeyArticles    = "articles"
	KeyResultCount = "result_count"
	KeyError       = "error"

	StatusOK    = "ok"
	StatusError = "error"
)

// Args is the unstructured argument map passed to a tool.
type Args map[string]interface{}

// Result is the unstructured map a tool returns.
type Result map[string]interface{}

// OK reports whether the result carries a success status. A missing
// _status key counts as success.
func (r Result) OK() bool {
	status, ok := r[KeyStatus]
	if !ok {
		return true
	}
	return status == StatusOK
}

// Tool is a named investigative operation.
type Tool interface {
	// Name returns the registry key for this tool.
	Name() string

	// Execute runs the tool. It must honor ctx cancellation.
	Execute(ctx context.Context, args Args) (Result, error)
}

// Registry maps tool names to implementations. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, args Args) (Result, error)
}

func (t ToolFunc) Name() string { return t.ToolName }

func (t ToolFunc) Execute(ctx context.Context, args Args) (Result, error) {
	return t.Fn(ctx, args)
}
