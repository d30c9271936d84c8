package alphavantage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quantlens/quantlens/internal/domain"
)

// The provider returns numbers as strings, sometimes with trailing "%" or
// placeholder values ("None", "null", "-", ""). These helpers normalize that.

// parseFloat64 parses a provider numeric string, returning 0 for placeholders
// and unparseable values.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseInt64 parses a provider integer string, truncating decimals and
// accepting scientific notation.
func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// globalQuoteResponse mirrors the GLOBAL_QUOTE wire shape.
type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
}

// parseGlobalQuote parses a single-symbol quote response.
func parseGlobalQuote(body []byte) (domain.Quote, error) {
	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse global quote: %w", err)
	}
	q := resp.GlobalQuote
	if len(q) == 0 {
		return domain.Quote{}, ErrSymbolNotFound{}
	}

	return domain.Quote{
		Symbol:           q["01. symbol"],
		Open:             parseFloat64(q["02. open"]),
		High:             parseFloat64(q["03. high"]),
		Low:              parseFloat64(q["04. low"]),
		Price:            parseFloat64(q["05. price"]),
		Volume:           parseInt64(q["06. volume"]),
		LatestTradingDay: q["07. latest trading day"],
		PreviousClose:    parseFloat64(q["08. previous close"]),
		Change:           parseFloat64(q["09. change"]),
		ChangePercent:    parseFloat64(q["10. change percent"]),
	}, nil
}

// bulkQuotesResponse mirrors the REALTIME_BULK_QUOTES wire shape: the batch
// endpoint returns an array of objects while the single endpoint returns one
// object. Both normalize to domain.Quote here.
type bulkQuotesResponse struct {
	Data []map[string]string `json:"data"`
}

// parseBulkQuotes parses a batch quote response into a map keyed by symbol.
// Symbols absent from the response are simply absent from the map.
func parseBulkQuotes(body []byte) (map[string]domain.Quote, error) {
	var resp bulkQuotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bulk quotes: %w", err)
	}

	quotes := make(map[string]domain.Quote, len(resp.Data))
	for _, row := range resp.Data {
		symbol := row["symbol"]
		if symbol == "" {
			continue
		}
		quotes[symbol] = domain.Quote{
			Symbol:           symbol,
			Open:             parseFloat64(row["open"]),
			High:             parseFloat64(row["high"]),
			Low:              parseFloat64(row["low"]),
			Price:            parseFloat64(row["close"]),
			Volume:           parseInt64(row["volume"]),
			LatestTradingDay: row["timestamp"],
			PreviousClose:    parseFloat64(row["previous_close"]),
			Change:           parseFloat64(row["change"]),
			ChangePercent:    parseFloat64(row["change_percent"]),
		}
	}
	return quotes, nil
}

// dailySeriesResponse mirrors the TIME_SERIES_DAILY wire shape.
type dailySeriesResponse struct {
	MetaData   map[string]string            `json:"Meta Data"`
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
}

// parseDailyTimeSeries parses a daily series response into a PriceSeries in
// ascending date order (the provider keys by date, newest first).
func parseDailyTimeSeries(body []byte, symbol string) (domain.PriceSeries, error) {
	var resp dailySeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to parse daily series: %w", err)
	}
	if len(resp.TimeSeries) == 0 {
		return domain.PriceSeries{}, ErrSymbolNotFound{Symbol: symbol}
	}

	dates := make([]string, 0, len(resp.TimeSeries))
	for date := range resp.TimeSeries {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	series := domain.PriceSeries{
		Symbol: symbol,
		Points: make([]domain.PricePoint, 0, len(dates)),
	}
	for _, date := range dates {
		bar := resp.TimeSeries[date]
		series.Points = append(series.Points, domain.PricePoint{
			Symbol: symbol,
			Date:   date,
			Open:   parseFloat64(bar["1. open"]),
			High:   parseFloat64(bar["2. high"]),
			Low:    parseFloat64(bar["3. low"]),
			Close:  parseFloat64(bar["4. close"]),
			Volume: parseInt64(bar["5. volume"]),
		})
	}
	return series, nil
}
