package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/journey-search/internal/journey"
)

const (
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	// defaultMaxBody caps one feed response.
	defaultMaxBody = 64 << 20
)

// ErrUnavailable is returned once a feed has exhausted its retry budget.
var ErrUnavailable = errors.New("flight data unavailable")

// Fetcher downloads the flight catalog from one or more JSON feeds.
type Fetcher struct {
	urls     []string
	client   *http.Client
	attempts int
	delay    time.Duration
	maxBody  int64
	log      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithAttempts sets how many times each feed is tried before giving up.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithDelay sets the pause between two attempts on the same feed.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.delay = d }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client = &http.Client{Timeout: d} }
}

// WithMaxBodySize sets the largest feed response accepted, in bytes.
// Larger bodies fail the attempt.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// NewFetcher constructs a Fetcher over the given feed URLs. Defaults: three
// attempts, two seconds apart, five second request timeout.
func NewFetcher(urls []string, log *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		urls:     urls,
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		delay:    defaultDelay,
		maxBody:  defaultMaxBody,
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads every feed in parallel and returns their legs concatenated
// in feed order. If any feed stays unreachable the whole fetch fails with
// ErrUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) ([]journey.FlightLeg, error) {
	if len(f.urls) == 0 {
		return nil, fmt.Errorf("%w: no catalog feeds configured", ErrUnavailable)
	}

	results := make([][]journey.FlightLeg, len(f.urls))
	g, gCtx := errgroup.WithContext(ctx)

	for i, u := range f.urls {
		i, u := i, u
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					f.log.Error("catalog fetch panicked", "url", u, "recover", r)
					err = fmt.Errorf("%w: fetch of %s panicked: %v", ErrUnavailable, u, r)
				}
			}()
			legs, fetchErr := f.fetchWithRetry(gCtx, u)
			if fetchErr != nil {
				return fetchErr
			}
			results[i] = legs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, legs := range results {
		total += len(legs)
	}
	catalog := make([]journey.FlightLeg, 0, total)
	for _, legs := range results {
		catalog = append(catalog, legs...)
	}

	return catalog, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL string) ([]journey.FlightLeg, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		legs, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return legs, nil
		}
		lastErr = err
		f.log.Info("catalog fetch attempt failed", "url", rawURL, "attempt", attempt, "err", err)

		if attempt == f.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: fetching %s: %w", ErrUnavailable, rawURL, ctx.Err())
		case <-time.After(f.delay):
		}
	}

	f.log.Error("catalog feed unreachable", "url", rawURL, "attempts", f.attempts, "err", lastErr)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, rawURL, f.attempts, lastErr)
}

// fetchOnce performs a single GET. Malformed entries are dropped; only
// transport, status, size and top-level decoding failures are reported.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]journey.FlightLeg, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}

	// One extra byte tells an oversized body apart from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", rawURL, f.maxBody)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	legs := make([]journey.FlightLeg, 0, len(raw))
	var dropped int
	for _, entry := range raw {
		var l journey.FlightLeg
		if err := json.Unmarshal(entry, &l); err != nil {
			dropped++
			f.log.Debug("dropping catalog entry", "url", rawURL, "err", err)
			continue
		}
		legs = append(legs, l)
	}
	if dropped > 0 {
		f.log.Warn("catalog feed contained invalid legs", "url", rawURL, "dropped", dropped, "kept", len(legs))
	}

	return legs, nil
}
