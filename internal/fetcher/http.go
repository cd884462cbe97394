package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapwarper-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string

	// Timeout bounds each request attempt. Default: 25s.
	Timeout time.Duration

	// Retry controls attempts and backoff on transient failures.
	Retry resilience.RetryConfig

	// Delay suspends the caller after every successful fetch, to respect the
	// upstream's rate limits. Zero disables it.
	Delay time.Duration

	// RequestsPerSecond caps the request rate with an adaptive limiter.
	// Zero means unlimited.
	RequestsPerSecond float64

	// Breaker, when set, fails fetches fast after repeated failures.
	Breaker *resilience.Breaker

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mapwarper-cli/1.0"
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	f := &HTTPFetcher{
		client: client,
		opts:   opts,
		sleep:  sleepCtx,
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = NewAdaptiveLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// WithDelay returns a fetcher sharing this one's client, limiter and breaker
// but suspending for d after each successful fetch.
func (f *HTTPFetcher) WithDelay(d time.Duration) *HTTPFetcher {
	clone := *f
	clone.opts.Delay = d
	return &clone
}

// Delay returns the post-fetch delay.
func (f *HTTPFetcher) Delay() time.Duration { return f.opts.Delay }

// Fetch performs a GET with retries and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, attempts, err := f.fetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: attempts, Err: err}
	}

	if f.opts.Delay > 0 {
		zap.L().Debug("sleeping after fetch", zap.String("url", rawURL), zap.Duration("delay", f.opts.Delay))
		if err := f.sleep(ctx, f.opts.Delay); err != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempts, Err: err}
		}
	}
	return body, nil
}

// FetchJSON performs Fetch and decodes the body into v. A body that is not
// valid JSON is a permanent failure and is not retried.
func (f *HTTPFetcher) FetchJSON(ctx context.Context, rawURL string, v any) error {
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &FetchError{URL: rawURL, Attempts: 1, Err: eris.Wrap(err, "decode json")}
	}
	return nil
}

func (f *HTTPFetcher) fetchWithRetry(ctx context.Context, rawURL string) ([]byte, int, error) {
	retry := f.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("fetcher", rawURL)
	}

	attempts := 0
	run := func(ctx context.Context) ([]byte, error) {
		return resilience.Retry(ctx, retry, func(ctx context.Context) ([]byte, error) {
			attempts++
			return f.get(ctx, rawURL)
		})
	}

	var (
		body []byte
		err  error
	)
	if f.opts.Breaker != nil {
		body, err = resilience.Guard(ctx, f.opts.Breaker, run)
	} else {
		body, err = run(ctx)
	}
	return body, attempts, err
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests && f.limiter != nil {
		f.limiter.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &resilience.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.MarkRetryable(eris.Wrap(err, "read body"))
	}

	if f.limiter != nil {
		f.limiter.OnSuccess()
	}
	return body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
