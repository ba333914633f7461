package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/osinthq/inquest/internal/cache"
)

// cachedClient serves identical completions from a TTL cache. Useful
// for deterministic policies rerun over the same context, and for
// keeping repeated demo runs off the provider.
type cachedClient struct {
	inner Client
	cache *cache.TTLCache
}

// NewCachedClient wraps client with an exact-match completion cache.
func NewCachedClient(client Client, ttl time.Duration) Client {
	return &cachedClient{
		inner: client,
		cache: cache.NewTTLCache(ttl),
	}
}

func (c *cachedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := completionKey(systemPrompt, userPrompt)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	out, err := c.inner.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, out)
	return out, nil
}

// completionKey hashes both prompts so keys stay fixed-size.
func completionKey(systemPrompt, userPrompt string) string {
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}
