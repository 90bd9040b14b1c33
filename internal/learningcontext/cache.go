package learningcontext

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

type cacheKey struct {
	pathway uuid.UUID
	draft   bool
}

// requestCache holds pathway data loaded while serving one request.
type requestCache struct {
	mu   sync.Mutex
	data map[cacheKey]api.Data
}

type requestCacheKey struct{}

// WithRequestCache returns a context carrying a fresh cache for pathway
// data. Contexts without one load pathway data on every lookup.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{data: make(map[cacheKey]api.Data)})
}

func cacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	return c
}

func (c *requestCache) get(k cacheKey) (api.Data, bool) {
	if c == nil {
		return api.Data{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[k]
	return d, ok
}

func (c *requestCache) put(k cacheKey, d api.Data) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[k] = d
}
