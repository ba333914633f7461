package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingClient struct {
	calls int
	reply string
	err   error
}

func (c *countingClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	return c.reply, c.err
}

func TestCachedClientServesRepeats(t *testing.T) {
	inner := &countingClient{reply: "answer"}
	client := NewCachedClient(inner, time.Minute)

	for i := 0; i < 3; i++ {
		out, err := client.Complete(context.Background(), "sys", "user")
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if out != "answer" {
			t.Errorf("Unexpected reply %q", out)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected a single upstream call, got %d", inner.calls)
	}

	// A different prompt is a different key.
	if _, err := client.Complete(context.Background(), "sys", "other"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected second upstream call, got %d", inner.calls)
	}
}

func TestCachedClientDoesNotCacheErrors(t *testing.T) {
	inner := &countingClient{err: errors.New("boom")}
	client := NewCachedClient(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), "sys", "user"); err == nil {
			t.Fatal("Expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("Expected errors to bypass the cache, got %d calls", inner.calls)
	}
}
