package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"pathwise/internal/modules/inference/domain"
	inferenceout "pathwise/internal/modules/inference/port/out"
)

const DefaultCacheSize = 256

// CachedClient memoizes completions by prompt and model. Concurrent calls
// for the same key share one backend call. Errors are never cached.
type CachedClient struct {
	next   inferenceout.Completer
	cache  *lru.Cache[string, domain.Completion]
	flight singleflight.Group
}

func NewCachedClient(next inferenceout.Completer, size int) (*CachedClient, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, domain.Completion](size)
	if err != nil {
		return nil, err
	}
	return &CachedClient{next: next, cache: cache}, nil
}

func (c *CachedClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	key := cacheKey(req)
	if hit, ok := c.cache.Get(key); ok {
		hit.Cached = true
		return hit, nil
	}
	result := c.flight.DoChan(key, func() (any, error) {
		completion, err := c.next.Complete(ctx, req)
		if err != nil {
			return domain.Completion{}, err
		}
		c.cache.Add(key, completion)
		return completion, nil
	})
	select {
	case res := <-result:
		if res.Err != nil {
			return domain.Completion{}, res.Err
		}
		return res.Val.(domain.Completion), nil
	case <-ctx.Done():
		return domain.Completion{}, ctx.Err()
	}
}

func (c *CachedClient) Len() int {
	return c.cache.Len()
}

func (c *CachedClient) Purge() {
	c.cache.Purge()
}

func cacheKey(req domain.CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
