package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comicfeed/comicfeed/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(body string) cache.Document {
	return cache.Document{Body: []byte(body), ContentType: "application/atom+xml"}
}

func fixedRender(body string, calls *atomic.Int32) cache.RenderFunc {
	return func(ctx context.Context) (cache.Document, error) {
		calls.Add(1)
		return doc(body), nil
	}
}

func TestGetOrRenderRendersOnceThenServesFromCache(t *testing.T) {
	feedCache := cache.New(cache.NewMemoryStore(), time.Hour, time.Second)
	var calls atomic.Int32

	first, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v1", &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "v1", string(first.Body))

	second, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v1", &calls))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "v1", string(second.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentCallersShareOneRender(t *testing.T) {
	feedCache := cache.New(cache.NewMemoryStore(), time.Hour, 5*time.Second)

	var calls atomic.Int32
	release := make(chan struct{})
	render := func(ctx context.Context) (cache.Document, error) {
		calls.Add(1)
		<-release
		return doc("shared"), nil
	}

	type result struct {
		body string
		err  error
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			document, _, err := feedCache.GetOrRender(context.Background(), "webtoon/1", render)
			results <- result{body: string(document.Body), err: err}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), calls.Load())
	for res := range results {
		require.NoError(t, res.err)
		assert.Equal(t, "shared", res.body)
	}
}

func TestStaleEntryTriggersRerender(t *testing.T) {
	feedCache := cache.New(cache.NewMemoryStore(), 15*time.Millisecond, time.Second)
	var calls atomic.Int32

	_, _, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v1", &calls))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	document, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v2", &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "v2", string(document.Body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFailedRenderPropagatesAndKeepsPreviousEntry(t *testing.T) {
	store := cache.NewMemoryStore()
	feedCache := cache.New(store, 10*time.Millisecond, time.Second)
	var calls atomic.Int32

	_, _, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v1", &calls))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	boom := errors.New("upstream gone")
	_, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", func(ctx context.Context) (cache.Document, error) {
		return cache.Document{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, cached)

	// The stale entry survives the failure.
	entry, ok := store.Get("webtoon/1")
	require.True(t, ok)
	assert.Equal(t, "v1", string(entry.Document.Body))

	// The slot is free again for the next attempt.
	document, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", fixedRender("v2", &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "v2", string(document.Body))
}

func TestRenderWaitIsBounded(t *testing.T) {
	store := cache.NewMemoryStore()
	feedCache := cache.New(store, time.Hour, 20*time.Millisecond)

	release := make(chan struct{})
	render := func(ctx context.Context) (cache.Document, error) {
		<-release
		return doc("slow"), nil
	}

	_, _, err := feedCache.GetOrRender(context.Background(), "webtoon/1", render)
	assert.ErrorIs(t, err, cache.ErrRenderTimeout)

	// The render finishes in the background and lands in the store.
	close(release)
	assert.Eventually(t, func() bool {
		_, ok := store.Get("webtoon/1")
		return ok
	}, time.Second, 5*time.Millisecond)

	document, cached, err := feedCache.GetOrRender(context.Background(), "webtoon/1", render)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "slow", string(document.Body))
}

func TestCanceledCallerStopsWaiting(t *testing.T) {
	feedCache := cache.New(cache.NewMemoryStore(), time.Hour, time.Minute)

	release := make(chan struct{})
	defer close(release)
	render := func(ctx context.Context) (cache.Document, error) {
		<-release
		return doc("never"), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(10*time.Millisecond, cancel)
	defer timer.Stop()

	_, _, err := feedCache.GetOrRender(ctx, "webtoon/1", render)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidateDropsMatchingKeys(t *testing.T) {
	store := cache.NewMemoryStore()
	feedCache := cache.New(store, time.Hour, time.Second)

	now := time.Now()
	store.Set("webtoon/1?limit=10", cache.Entry{Document: doc("a"), RenderedAt: now})
	store.Set("webtoon/1?limit=20", cache.Entry{Document: doc("b"), RenderedAt: now})
	store.Set("webtoon/2?limit=10", cache.Entry{Document: doc("c"), RenderedAt: now})

	dropped := feedCache.Invalidate("webtoon/1")
	assert.Equal(t, 2, dropped)

	_, ok := store.Get("webtoon/1?limit=10")
	assert.False(t, ok)
	_, ok = store.Get("webtoon/2?limit=10")
	assert.True(t, ok)
}
