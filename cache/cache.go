package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrRenderTimeout is returned when a caller's bounded wait for an
// in-flight render elapses. The render keeps running and its result is
// stored for the next request.
var ErrRenderTimeout = errors.New("cache: render wait timed out")

// Prometheus metrics
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comicfeed_cache_hits_total",
		Help: "The total number of feed documents served from cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comicfeed_cache_misses_total",
		Help: "The total number of feed requests that needed a render",
	})

	renderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comicfeed_render_failures_total",
		Help: "The total number of feed renders that returned an error",
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comicfeed_render_duration_seconds",
		Help:    "Duration of feed document renders",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // Start at 1ms, double each bucket, 12 buckets
	})
)

// RenderFunc produces a fresh document for a cache key.
type RenderFunc func(ctx context.Context) (Document, error)

// FeedCache serves rendered feed documents. Concurrent requests for the
// same key share one render, and entries older than the TTL are treated
// as absent.
type FeedCache struct {
	store Store
	ttl   time.Duration
	wait  time.Duration
	group singleflight.Group
}

// New builds a cache over store. Entries older than ttl trigger a fresh
// render. Callers waiting on a render give up after wait.
func New(store Store, ttl time.Duration, wait time.Duration) *FeedCache {
	return &FeedCache{store: store, ttl: ttl, wait: wait}
}

// GetOrRender returns the document for key, rendering it if the cache has
// no fresh entry. The second return reports whether the document came from
// the cache. A failed render is never stored and the previous entry, if
// any, stays in place.
func (c *FeedCache) GetOrRender(ctx context.Context, key string, render RenderFunc) (Document, bool, error) {
	if entry, ok := c.store.Get(key); ok && time.Since(entry.RenderedAt) < c.ttl {
		cacheHits.Inc()
		return entry.Document, true, nil
	}
	cacheMisses.Inc()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		doc, err := render(ctx)
		if err != nil {
			renderFailures.Inc()
			return Document{}, err
		}
		renderDuration.Observe(time.Since(start).Seconds())
		c.store.Set(key, Entry{Document: doc, RenderedAt: time.Now()})
		return doc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Document{}, false, fmt.Errorf("render %s: %w", key, res.Err)
		}
		return res.Val.(Document), false, nil
	case <-ctx.Done():
		return Document{}, false, ctx.Err()
	case <-time.After(c.wait):
		log.WithFields(log.Fields{
			"key":  key,
			"wait": c.wait,
		}).Warn("Gave up waiting for in-flight feed render")
		return Document{}, false, ErrRenderTimeout
	}
}

// Invalidate drops every cached document whose key starts with prefix and
// returns how many were dropped.
func (c *FeedCache) Invalidate(prefix string) int {
	dropped := 0
	for _, key := range c.store.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			dropped++
		}
	}
	return dropped
}
