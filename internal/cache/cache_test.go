package cache

import (
	"sync"
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := NewTTLCache(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss on empty cache")
	}

	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Errorf("Expected hit with 42, got %v %v", v, ok)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit 1 miss, got %d %d", hits, misses)
	}
}

func TestExpiry(t *testing.T) {
	c := NewTTLCache(10 * time.Millisecond)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Error("Expected expired entry evicted on access")
	}
}

func TestPurge(t *testing.T) {
	c := NewTTLCache(10 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	c.Purge()
	if c.Len() != 1 {
		t.Errorf("Expected only the fresh entry to survive, got %d", c.Len())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("Expected fresh entry to remain")
	}
}

// A reader that finds an expired entry must not evict a refresh that
// lands concurrently; eviction and the expiry check share one lock.
func TestConcurrentRefreshSurvivesExpiredRead(t *testing.T) {
	c := NewTTLCache(25 * time.Millisecond)
	for i := 0; i < 40; i++ {
		c.Set("k", "stale")
		time.Sleep(30 * time.Millisecond)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Get("k")
		}()
		go func() {
			defer wg.Done()
			c.Set("k", "fresh")
		}()
		wg.Wait()

		if v, ok := c.Get("k"); !ok || v.(string) != "fresh" {
			t.Fatalf("Iteration %d: refreshed entry lost (ok=%v, v=%v)", i, ok, v)
		}
	}
}

func TestOverwriteRefreshes(t *testing.T) {
	c := NewTTLCache(time.Minute)
	c.Set("k", "old")
	c.Set("k", "new")
	v, ok := c.Get("k")
	if !ok || v.(string) != "new" {
		t.Errorf("Expected overwritten value, got %v", v)
	}
	if c.Len() != 1 {
		t.Errorf("Expected single entry, got %d", c.Len())
	}
}
