package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxRetryElapsed     = 2 * time.Minute
)

// Prometheus metrics
var (
	fetchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comicfeed_upstream_fetches_total",
		Help: "The total number of upstream requests, retries included",
	})
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comicfeed_upstream_fetch_errors_total",
		Help: "The total number of failed upstream requests",
	})
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comicfeed_upstream_fetch_duration_seconds",
		Help:    "Duration of successful upstream requests",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 0.05s to ~25s
	})
)

type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(timeout time.Duration, userAgent string) *fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// fetch GETs a portal URL, retrying transport errors and 5xx answers
// with exponential backoff. Other status codes fail immediately.
func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		fetchesProcessed.Inc()
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		res, err := f.client.Do(req)
		if err != nil {
			fetchErrors.Inc()
			return err
		}
		defer res.Body.Close()

		if res.StatusCode >= http.StatusInternalServerError {
			fetchErrors.Inc()
			return fmt.Errorf("upstream status %d for %s", res.StatusCode, url)
		}
		if res.StatusCode != http.StatusOK {
			fetchErrors.Inc()
			return backoff.Permanent(fmt.Errorf("upstream status %d for %s", res.StatusCode, url))
		}

		body, err = io.ReadAll(res.Body)
		if err != nil {
			fetchErrors.Inc()
			return err
		}

		fetchDuration.Observe(time.Since(start).Seconds())
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.Multiplier = 1.5
	policy.MaxElapsedTime = maxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return body, nil
}
