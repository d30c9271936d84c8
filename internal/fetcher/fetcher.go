// Package fetcher pulls market data from the upstream provider under a
// shared request quota. It owns the token bucket, batches quote requests up
// to the provider's batch limit, and retries transient failures with
// exponential backoff. A quota rejection from the provider is handled
// specially: the fetcher sleeps out the remaining quota window and the
// attempt is not counted against the retry budget.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlens/quantlens/internal/domain"
)

// Provider is the upstream market-data surface the fetcher consumes.
type Provider interface {
	GlobalQuote(ctx context.Context, symbol string) (domain.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	DailySeries(ctx context.Context, symbol string, full bool) (domain.PriceSeries, error)
}

// quotaSignal is implemented by provider errors that indicate quota
// exhaustion. Detection is structural so this package never imports a
// specific provider.
type quotaSignal interface {
	QuotaExceeded() bool
}

func isQuotaExceeded(err error) bool {
	var q quotaSignal
	return errors.As(err, &q) && q.QuotaExceeded()
}

// FetchError wraps a per-symbol failure after the retry budget is spent.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config controls quota and retry behavior.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	MaxBatchSize      int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns conservative settings for the free provider tier.
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: 8,
		Window:            time.Minute,
		MaxBatchSize:      100,
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// Fetcher coordinates quota-limited access to the provider.
type Fetcher struct {
	provider Provider
	bucket   *TokenBucket
	cfg      Config
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error // injectable for tests
}

// New creates a fetcher with its own token bucket.
func New(provider Provider, cfg Config, log zerolog.Logger) *Fetcher {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultConfig().RequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = DefaultConfig().BackoffMultiplier
	}

	return &Fetcher{
		provider: provider,
		bucket:   NewTokenBucket(cfg.RequestsPerWindow, cfg.Window),
		cfg:      cfg,
		log:      log.With().Str("component", "fetcher").Logger(),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchQuotes fetches current quotes for the given symbols, batching up to
// the provider's limit per request. It returns the quotes it obtained plus a
// per-symbol error map for the rest; one failed batch never discards another
// batch's results.
func (f *Fetcher) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, map[string]error) {
	quotes := make(map[string]domain.Quote, len(symbols))
	failed := make(map[string]error)
	if len(symbols) == 0 {
		return quotes, failed
	}

	// Deduplicate while preserving a stable order for batching.
	seen := make(map[string]bool, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		unique = append(unique, s)
	}
	sort.Strings(unique)

	for start := 0; start < len(unique); start += f.cfg.MaxBatchSize {
		end := start + f.cfg.MaxBatchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		result, err := withRetry(ctx, f, "batch_quotes", func(ctx context.Context) (map[string]domain.Quote, error) {
			return f.provider.BatchQuotes(ctx, batch)
		})
		if err != nil {
			for _, s := range batch {
				failed[s] = &FetchError{Symbol: s, Err: err}
			}
			continue
		}

		for _, s := range batch {
			q, ok := result[s]
			if !ok {
				failed[s] = &FetchError{Symbol: s, Err: fmt.Errorf("provider returned no quote")}
				continue
			}
			quotes[s] = q
		}
	}

	if len(failed) > 0 {
		f.log.Warn().
			Int("fetched", len(quotes)).
			Int("failed", len(failed)).
			Msg("Quote fetch completed with failures")
	}
	return quotes, failed
}

// FetchQuote fetches the current quote for a single symbol through the
// single-quote endpoint, under the shared quota and retry policy.
func (f *Fetcher) FetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	quote, err := withRetry(ctx, f, "global_quote", func(ctx context.Context) (domain.Quote, error) {
		return f.provider.GlobalQuote(ctx, symbol)
	})
	if err != nil {
		return domain.Quote{}, &FetchError{Symbol: symbol, Err: err}
	}
	return quote, nil
}

// FetchSeries fetches the daily price series for one symbol. full requests
// the provider's complete history rather than the recent window.
func (f *Fetcher) FetchSeries(ctx context.Context, symbol string, full bool) (domain.PriceSeries, error) {
	series, err := withRetry(ctx, f, "daily_series", func(ctx context.Context) (domain.PriceSeries, error) {
		return f.provider.DailySeries(ctx, symbol, full)
	})
	if err != nil {
		return domain.PriceSeries{}, &FetchError{Symbol: symbol, Err: err}
	}
	return series, nil
}

// withRetry runs one provider call under the token bucket with the retry
// policy: quota rejections sleep out a full window and do not consume an
// attempt; other errors back off exponentially until the budget is spent.
func withRetry[T any](ctx context.Context, f *Fetcher, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := f.cfg.BackoffBase
	attempts := 0

	for {
		if err := f.bucket.Acquire(ctx); err != nil {
			return zero, err
		}

		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		if isQuotaExceeded(err) {
			// The provider window is exhausted; waiting less than a full
			// window just burns the next token on the same rejection.
			f.log.Warn().
				Str("op", op).
				Dur("wait", f.cfg.Window).
				Msg("Provider quota exhausted, waiting out window")
			if serr := f.sleep(ctx, f.cfg.Window); serr != nil {
				return zero, serr
			}
			continue
		}

		attempts++
		if attempts >= f.cfg.MaxAttempts {
			return zero, err
		}

		f.log.Debug().
			Str("op", op).
			Int("attempt", attempts).
			Dur("backoff", backoff).
			Err(err).
			Msg("Provider call failed, retrying")
		if serr := f.sleep(ctx, backoff); serr != nil {
			return zero, serr
		}
		backoff = time.Duration(float64(backoff) * f.cfg.BackoffMultiplier)
	}
}
