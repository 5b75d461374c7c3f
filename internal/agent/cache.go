package agent

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dotcommander/contentorc/internal/core"
)

// CachedClient memoizes completions per (system, user, json) prompt so
// identical requests within the TTL skip the provider and its rate limit.
type CachedClient struct {
	client AIClient
	cache  *core.MemoryCache[uint64, string]
	logger *slog.Logger
}

// WithCache wraps client with an in-memory response cache.
func WithCache(client AIClient, ttl time.Duration, maxEntries int) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  core.NewMemoryCache[uint64, string](ttl, maxEntries),
		logger: slog.Default().With("component", "response_cache"),
	}
}

func (c *CachedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, false)
}

func (c *CachedClient) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, true)
}

func (c *CachedClient) complete(ctx context.Context, systemPrompt, userPrompt string, forceJSON bool) (string, error) {
	key := hashPrompt(systemPrompt, userPrompt, forceJSON)
	if response, ok := c.cache.Get(key); ok {
		c.logger.Debug("cache hit", "key", key, "response_length", len(response))
		return response, nil
	}

	var (
		response string
		err      error
	)
	if forceJSON {
		response, err = c.client.CompleteJSONWithSystem(ctx, systemPrompt, userPrompt)
	} else {
		response, err = c.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return "", err
	}
	c.cache.Set(key, response)
	return response, nil
}

// Stats returns hit, miss and size counters.
func (c *CachedClient) Stats() (hits, misses uint64, size int) {
	return c.cache.Stats()
}

// Close stops the cache janitor.
func (c *CachedClient) Close() { c.cache.Close() }

func hashPrompt(systemPrompt, userPrompt string, forceJSON bool) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(systemPrompt)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(userPrompt)
	_, _ = d.WriteString("\x00" + strconv.FormatBool(forceJSON))
	return d.Sum64()
}
