// Package alphavantage implements the upstream market-data provider adapter.
//
// The provider enforces a strict per-minute request quota and reports quota
// exhaustion inside HTTP 200 bodies ("Note"/"Information" messages), so this
// client inspects every response body for those signals and converts them to
// ErrQuotaExceeded. Rate limiting itself is not done here: the fetcher owns
// the shared token bucket and this client only issues requests it is handed.
//
// Provider-specific response shapes (single object vs map of objects for
// batch calls) stay inside this package; callers only ever see domain types.
package alphavantage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlens/quantlens/internal/domain"
)

const (
	defaultBaseURL = "https://www.alphavantage.co"

	// MaxBatchSize is the provider's maximum symbols per bulk-quote call.
	MaxBatchSize = 100
)

// ClientInterface is the provider contract consumed by the fetcher.
type ClientInterface interface {
	GlobalQuote(ctx context.Context, symbol string) (domain.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	DailySeries(ctx context.Context, symbol string, full bool) (domain.PriceSeries, error)
}

// Client is the AlphaVantage HTTP client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new AlphaVantage client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "alphavantage").Logger(),
	}
}

// GlobalQuote fetches the current quote for a single symbol.
func (c *Client) GlobalQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	body, err := c.doRequest(ctx, "GLOBAL_QUOTE", map[string]string{"symbol": symbol})
	if err != nil {
		return domain.Quote{}, err
	}

	quote, err := parseGlobalQuote(body)
	if err != nil {
		if _, notFound := err.(ErrSymbolNotFound); notFound {
			return domain.Quote{}, ErrSymbolNotFound{Symbol: symbol}
		}
		return domain.Quote{}, err
	}
	return quote, nil
}

// BatchQuotes fetches quotes for up to MaxBatchSize symbols in one call.
// Symbols the provider returned no data for are absent from the result map;
// the caller decides how to treat them.
func (c *Client) BatchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}
	if len(symbols) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds provider maximum of %d", len(symbols), MaxBatchSize)
	}

	body, err := c.doRequest(ctx, "REALTIME_BULK_QUOTES", map[string]string{
		"symbol": strings.Join(symbols, ","),
	})
	if err != nil {
		return nil, err
	}
	return parseBulkQuotes(body)
}

// DailySeries fetches the daily OHLCV series for one symbol, in ascending
// date order. full selects the provider's full history output; otherwise the
// compact window (most recent 100 days) is requested.
func (c *Client) DailySeries(ctx context.Context, symbol string, full bool) (domain.PriceSeries, error) {
	outputSize := "compact"
	if full {
		outputSize = "full"
	}

	body, err := c.doRequest(ctx, "TIME_SERIES_DAILY", map[string]string{
		"symbol":     symbol,
		"outputsize": outputSize,
	})
	if err != nil {
		return domain.PriceSeries{}, err
	}
	return parseDailyTimeSeries(body, symbol)
}

// doRequest issues a GET to the provider's query endpoint and screens the
// response body for the provider's in-band error signals.
func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey{}
	}

	q := url.Values{}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}
	requestURL := fmt.Sprintf("%s/query?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuotaExceeded{Message: resp.Status}
	}
	if resp.StatusCode != http.StatusOK {
		bodyStr := string(body)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("function", function).
			Str("response_body", bodyStr).
			Msg("API returned non-200 status")
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status)
	}

	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkAPIError detects provider error signals delivered inside 200 bodies.
func (c *Client) checkAPIError(body []byte) error {
	// Quota messages arrive under "Note" or "Information", and hard-throttled
	// keys get a plain-text thank-you page.
	if bytes.Contains(body, []byte(`"Note"`)) ||
		bytes.Contains(body, []byte(`"Information"`)) ||
		bytes.Contains(body, []byte("Thank you for using Alpha Vantage")) {
		c.log.Warn().Msg("Provider reported quota exhaustion")
		return ErrQuotaExceeded{}
	}

	if bytes.Contains(body, []byte(`"Error Message"`)) {
		bodyStr := string(body)
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200]
		}
		return fmt.Errorf("API error: %s", bodyStr)
	}
	return nil
}
