package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, defaultBaseURL, client.baseURL)
}

// TestParseFloat64 tests float parsing.
func TestParseFloat64(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"123.45", 123.45},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"null", 0},
		{"-", 0},
		{"50.5%", 50.5},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseFloat64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestParseInt64 tests integer parsing.
func TestParseInt64(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"12345", 12345},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"1.5E10", 15000000000},
		{"123.45", 123},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestParseGlobalQuote tests global quote parsing.
func TestParseGlobalQuote(t *testing.T) {
	jsonData := `{
		"Global Quote": {
			"01. symbol": "IBM",
			"02. open": "185.00",
			"03. high": "186.50",
			"04. low": "184.50",
			"05. price": "186.20",
			"06. volume": "3456789",
			"07. latest trading day": "2024-01-15",
			"08. previous close": "185.00",
			"09. change": "1.20",
			"10. change percent": "0.65%"
		}
	}`

	quote, err := parseGlobalQuote([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, 185.0, quote.Open)
	assert.Equal(t, 186.5, quote.High)
	assert.Equal(t, 184.5, quote.Low)
	assert.Equal(t, 186.2, quote.Price)
	assert.Equal(t, int64(3456789), quote.Volume)
	assert.Equal(t, "2024-01-15", quote.LatestTradingDay)
	assert.Equal(t, 185.0, quote.PreviousClose)
	assert.Equal(t, 1.2, quote.Change)
	assert.Equal(t, 0.65, quote.ChangePercent)
}

// TestParseGlobalQuoteEmpty tests empty quote handling.
func TestParseGlobalQuoteEmpty(t *testing.T) {
	_, err := parseGlobalQuote([]byte(`{"Global Quote": {}}`))
	assert.Error(t, err)
	assert.IsType(t, ErrSymbolNotFound{}, err)
}

// TestParseBulkQuotes tests batch quote parsing.
func TestParseBulkQuotes(t *testing.T) {
	jsonData := `{
		"endpoint": "Realtime Bulk Quotes",
		"data": [
			{
				"symbol": "AAPL",
				"open": "184.50",
				"high": "186.00",
				"low": "183.80",
				"close": "185.50",
				"volume": "50000000",
				"previous_close": "184.00",
				"change": "1.50",
				"change_percent": "0.82",
				"timestamp": "2024-01-15"
			},
			{
				"symbol": "MSFT",
				"open": "388.00",
				"high": "390.00",
				"low": "379.00",
				"close": "380.00",
				"volume": "30000000",
				"previous_close": "390.00",
				"change": "-10.00",
				"change_percent": "-2.56",
				"timestamp": "2024-01-15"
			}
		]
	}`

	quotes, err := parseBulkQuotes([]byte(jsonData))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	aapl, ok := quotes["AAPL"]
	require.True(t, ok)
	assert.Equal(t, 185.5, aapl.Price)
	assert.Equal(t, int64(50000000), aapl.Volume)

	msft, ok := quotes["MSFT"]
	require.True(t, ok)
	assert.Equal(t, -10.0, msft.Change)

	// Symbols the provider skipped are simply absent.
	_, ok = quotes["GOOG"]
	assert.False(t, ok)
}

// TestParseDailyTimeSeries tests daily time series parsing.
func TestParseDailyTimeSeries(t *testing.T) {
	jsonData := `{
		"Meta Data": {
			"1. Information": "Daily Prices",
			"2. Symbol": "IBM"
		},
		"Time Series (Daily)": {
			"2024-01-15": {
				"1. open": "185.00",
				"2. high": "186.50",
				"3. low": "184.50",
				"4. close": "186.20",
				"5. volume": "3456789"
			},
			"2024-01-14": {
				"1. open": "184.50",
				"2. high": "185.50",
				"3. low": "184.00",
				"4. close": "185.00",
				"5. volume": "3214567"
			}
		}
	}`

	series, err := parseDailyTimeSeries([]byte(jsonData), "IBM")
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())

	// Ascending date order regardless of wire order.
	assert.Equal(t, "2024-01-14", series.Points[0].Date)
	assert.Equal(t, "2024-01-15", series.Points[1].Date)
	assert.Equal(t, 185.0, series.Points[1].Open)
	assert.Equal(t, 186.5, series.Points[1].High)
	assert.Equal(t, 184.5, series.Points[1].Low)
	assert.Equal(t, 186.2, series.Points[1].Close)
	assert.Equal(t, int64(3456789), series.Points[1].Volume)
	assert.Equal(t, "IBM", series.Symbol)

	require.NoError(t, series.Validate())
}

// TestParseDailyTimeSeriesEmpty tests empty series handling.
func TestParseDailyTimeSeriesEmpty(t *testing.T) {
	_, err := parseDailyTimeSeries([]byte(`{"Time Series (Daily)": {}}`), "XYZ")
	assert.Error(t, err)

	var notFound ErrSymbolNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "XYZ", notFound.Symbol)
}

// TestErrorTypes tests error type implementations.
func TestErrorTypes(t *testing.T) {
	t.Run("ErrQuotaExceeded", func(t *testing.T) {
		err := ErrQuotaExceeded{}
		assert.Contains(t, err.Error(), "rate limit")
		assert.True(t, err.QuotaExceeded())
	})

	t.Run("ErrInvalidAPIKey", func(t *testing.T) {
		err := ErrInvalidAPIKey{}
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("ErrSymbolNotFound", func(t *testing.T) {
		err := ErrSymbolNotFound{Symbol: "XYZ"}
		assert.Contains(t, err.Error(), "XYZ")
	})
}

// TestAPIErrorDetection tests detection of API error responses.
func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	tests := []struct {
		name        string
		body        string
		expectError bool
		quota       bool
	}{
		{
			name:        "Rate limit note",
			body:        `{"Note": "API call frequency is limited"}`,
			expectError: true,
			quota:       true,
		},
		{
			name:        "Rate limit information",
			body:        `{"Information": "25 requests per day"}`,
			expectError: true,
			quota:       true,
		},
		{
			name:        "Thank you message",
			body:        `Thank you for using Alpha Vantage!`,
			expectError: true,
			quota:       true,
		},
		{
			name:        "Error message",
			body:        `{"Error Message": "Invalid symbol"}`,
			expectError: true,
		},
		{
			name:        "Valid response",
			body:        `{"data": "valid"}`,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body))
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.quota {
				assert.IsType(t, ErrQuotaExceeded{}, err)
			}
		})
	}
}

// TestGlobalQuoteRequest exercises the full request path against a stub server.
func TestGlobalQuoteRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "IBM",
				"05. price": "186.20",
				"08. previous close": "185.00"
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.baseURL = srv.URL

	quote, err := client.GlobalQuote(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, 186.2, quote.Price)
}

// TestBatchQuotesRequest tests the bulk quote endpoint wiring.
func TestBatchQuotesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "REALTIME_BULK_QUOTES", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbol"))

		w.Write([]byte(`{"data": [{"symbol": "AAPL", "close": "185.50"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.baseURL = srv.URL

	quotes, err := client.BatchQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 185.5, quotes["AAPL"].Price)
}

// TestBatchQuotesLimit rejects oversized batches without a request.
func TestBatchQuotesLimit(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	symbols := make([]string, MaxBatchSize+1)
	for i := range symbols {
		symbols[i] = "SYM"
	}

	_, err := client.BatchQuotes(context.Background(), symbols)
	assert.Error(t, err)
}

// TestQuotaResponseSurfacesTypedError tests that an in-band quota message
// turns into ErrQuotaExceeded at the call site.
func TestQuotaResponseSurfacesTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "API call frequency is limited to 25 per day"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.baseURL = srv.URL

	_, err := client.DailySeries(context.Background(), "IBM", false)
	require.Error(t, err)

	var quota interface{ QuotaExceeded() bool }
	assert.True(t, errors.As(err, &quota))
}

// TestMissingAPIKey tests that requests fail fast without a key.
func TestMissingAPIKey(t *testing.T) {
	client := NewClient("", zerolog.Nop())

	_, err := client.GlobalQuote(context.Background(), "IBM")
	assert.IsType(t, ErrInvalidAPIKey{}, err)
}

// BenchmarkParseFloat64 benchmarks float parsing.
func BenchmarkParseFloat64(b *testing.B) {
	for i := 0; i < b.N; i++ {
		parseFloat64("123.456789")
	}
}

// TestInterfaceImplementation verifies Client implements ClientInterface.
func TestInterfaceImplementation(t *testing.T) {
	var _ ClientInterface = (*Client)(nil)
}
