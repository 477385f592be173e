package cache

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

var (
	pageCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shtetl_browse_page_cache_hits_total",
		Help: "The total number of listing pages served from cache",
	})
	pageCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shtetl_browse_page_cache_misses_total",
		Help: "The total number of listing pages fetched from the backend",
	})
)

// PageSource matches the browse session's fetch contract.
type PageSource interface {
	FetchPage(ctx context.Context, params url.Values) (*types.Page, error)
}

// CachedSource decorates a PageSource with the two-tier cache. The cache key
// is the encoded query string, which pkg/query guarantees is deterministic
// for identical filter state.
type CachedSource struct {
	next   PageSource
	cache  *Cache
	prefix string
	ttl    time.Duration
}

func NewCachedSource(next PageSource, cache *Cache, prefix string, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{next: next, cache: cache, prefix: prefix, ttl: ttl}
}

func (s *CachedSource) FetchPage(ctx context.Context, params url.Values) (*types.Page, error) {
	key := s.prefix + "?" + params.Encode()
	var page types.Page
	if err := s.cache.Get(ctx, key, &page); err == nil {
		pageCacheHits.Inc()
		return &page, nil
	}
	pageCacheMisses.Inc()

	fresh, err := s.next.FetchPage(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		log.Printf("page cache write failed: %v", err)
	}
	return fresh, nil
}
