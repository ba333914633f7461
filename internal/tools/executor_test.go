package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryGetUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Expected ErrUnknownTool, got %v", err)
	}
}

func TestExecuteSetsStatus(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolFunc{ToolName: "echo", Fn: func(ctx context.Context, args Args) (Result, error) {
		return Result{"value": args["value"]}, nil
	}})
	ex := NewExecutor(r, time.Second)

	result, err := ex.Execute(context.Background(), "echo", Args{"value": "hi"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result[KeyStatus] != StatusOK {
		t.Errorf("Expected _status ok, got %v", result[KeyStatus])
	}
	if !result.OK() {
		t.Error("Expected result.OK()")
	}
}

func TestExecuteClassifiesErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolFunc{ToolName: "broken", Fn: func(ctx context.Context, args Args) (Result, error) {
		return nil, errors.New("collaborator blew up")
	}})
	r.Register(ToolFunc{ToolName: "slow", Fn: func(ctx context.Context, args Args) (Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})
	ex := NewExecutor(r, 20*time.Millisecond)

	if _, err := ex.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Expected ErrUnknownTool, got %v", err)
	}
	if _, err := ex.Execute(context.Background(), "broken", nil); !errors.Is(err, ErrToolExecution) {
		t.Errorf("Expected ErrToolExecution, got %v", err)
	}
	if _, err := ex.Execute(context.Background(), "slow", nil); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	ex := NewExecutor(NewRegistry(), 0)
	builds := 0
	build := func() (interface{}, error) {
		builds++
		return &struct{ n int }{n: builds}, nil
	}

	a, err := ex.GetOrCreate("graph_engine", build)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	b, err := ex.GetOrCreate("graph_engine", build)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if a != b {
		t.Error("Expected identical instance for same cache key")
	}
	if builds != 1 {
		t.Errorf("Expected single build, got %d", builds)
	}
}

func TestFixtureEntitySearch(t *testing.T) {
	r := NewRegistry()
	RegisterFixtureTools(r)
	ex := NewExecutor(r, time.Second)

	result, err := ex.Execute(context.Background(), "entity_search", Args{"query": "Acme Corp"})
	if err != nil {
		t.Fatalf("entity_search failed: %v", err)
	}
	entities, ok := result[KeyEntities].([]interface{})
	if !ok || len(entities) == 0 {
		t.Fatalf("Expected entities in result, got %v", result)
	}
	if result[KeyResultCount] != 2 {
		t.Errorf("Expected result_count 2, got %v", result[KeyResultCount])
	}
}

func TestFixtureSanctionsScreen(t *testing.T) {
	r := NewRegistry()
	RegisterFixtureTools(r)
	ex := NewExecutor(r, time.Second)

	clean, err := ex.Execute(context.Background(), "sanctions_screen", Args{"query": "Acme Corp"})
	if err != nil {
		t.Fatalf("sanctions_screen failed: %v", err)
	}
	if clean[KeyResultCount] != 0 {
		t.Errorf("Expected clean screen, got %v", clean)
	}

	hit, err := ex.Execute(context.Background(), "sanctions_screen", Args{"query": "Sanctioned Holdings"})
	if err != nil {
		t.Fatalf("sanctions_screen failed: %v", err)
	}
	if hit[KeyResultCount] != 1 {
		t.Errorf("Expected fixture match, got %v", hit)
	}
}

func TestFixtureToolsAreDeterministic(t *testing.T) {
	r := NewRegistry()
	RegisterFixtureTools(r)
	ex := NewExecutor(r, time.Second)

	a, _ := ex.Execute(context.Background(), "relationship_map", Args{"query": "Acme Corp"})
	b, _ := ex.Execute(context.Background(), "relationship_map", Args{"query": "Acme Corp"})
	ea := a[KeyEntities].([]interface{})[0].(map[string]interface{})
	eb := b[KeyEntities].([]interface{})[0].(map[string]interface{})
	if ea["id"] != eb["id"] {
		t.Errorf("Expected stable fixture ids, got %v vs %v", ea["id"], eb["id"])
	}
}
