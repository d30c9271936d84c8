// Package metrics computes portfolio analytics: return/risk bundles,
// technical indicators, and correlation matrices. All computations run
// through the coalescing cache keyed by an operation fingerprint that
// includes the underlying data version, so results stay correct across
// price refreshes without manual invalidation.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantlens/quantlens/internal/cache"
	"github.com/quantlens/quantlens/internal/domain"
	"github.com/quantlens/quantlens/pkg/formulas"
)

// minSeriesPoints is the minimum bars a symbol needs to contribute returns.
const minSeriesPoints = 2

// AllocationLister resolves a portfolio id to its allocations.
type AllocationLister interface {
	ListAllocations(ctx context.Context, portfolioID string) ([]domain.Allocation, error)
}

// PriceReader is the persisted price history surface the service reads.
type PriceReader interface {
	Read(ctx context.Context, symbol, start, end string) (domain.PriceSeries, error)
	Write(ctx context.Context, series domain.PriceSeries) error
	LatestVersion(ctx context.Context, symbol string) (string, error)
}

// SeriesFetcher pulls history from the upstream provider when the local
// store has none.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, symbol string, full bool) (domain.PriceSeries, error)
}

// QuoteFetcher pulls current quotes from the upstream provider.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// ErrNoProvider indicates an operation needing live provider data was
// requested while no provider is configured.
var ErrNoProvider = errors.New("no market-data provider configured")

// Service computes analytics over portfolios and symbols.
type Service struct {
	portfolios   AllocationLister
	prices       PriceReader
	fetcher      SeriesFetcher
	quotes       QuoteFetcher
	cache        *cache.Cache
	riskFreeRate float64
	log          zerolog.Logger
}

// NewService creates a metrics service. fetcher and quotes may be nil when
// no provider is configured; analytics then serve from stored history only.
func NewService(
	portfolios AllocationLister,
	prices PriceReader,
	fetcher SeriesFetcher,
	quotes QuoteFetcher,
	c *cache.Cache,
	riskFreeRate float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios:   portfolios,
		prices:       prices,
		fetcher:      fetcher,
		quotes:       quotes,
		cache:        c,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "metrics").Logger(),
	}
}

// Quote returns the current quote for a symbol, cached for the intraday
// quote TTL. Requires a configured provider.
func (s *Service) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if s.quotes == nil {
		return domain.Quote{}, ErrNoProvider
	}

	key := cache.Fingerprint("quote", map[string]string{"symbol": symbol}, "")
	return cache.GetOrCompute(ctx, s.cache, key, cache.TTLQuotes, func(ctx context.Context) (domain.Quote, error) {
		return s.quotes.FetchQuote(ctx, symbol)
	})
}

// seriesForSymbol returns a symbol's price series for the window, reading
// the local store first and falling back to the provider for symbols with
// no stored history. Fetched history is persisted before slicing.
func (s *Service) seriesForSymbol(ctx context.Context, symbol, start, end string) (domain.PriceSeries, error) {
	version, err := s.prices.LatestVersion(ctx, symbol)
	if err != nil {
		return domain.PriceSeries{}, err
	}

	key := cache.Fingerprint("price_series", map[string]string{
		"symbol": symbol,
		"start":  start,
		"end":    end,
	}, version)

	return cache.GetOrCompute(ctx, s.cache, key, cache.TTLSeries, func(ctx context.Context) (domain.PriceSeries, error) {
		series, err := s.prices.Read(ctx, symbol, start, end)
		if err != nil {
			return domain.PriceSeries{}, err
		}
		if series.Len() >= minSeriesPoints {
			return series, nil
		}

		if s.fetcher == nil {
			return series, nil
		}

		s.log.Debug().Str("symbol", symbol).Msg("No stored history, fetching from provider")
		fetched, err := s.fetcher.FetchSeries(ctx, symbol, true)
		if err != nil {
			return domain.PriceSeries{}, err
		}
		if err := s.prices.Write(ctx, fetched); err != nil {
			// The fetched data still serves this request.
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist fetched history")
		}
		return fetched.Slice(start, end), nil
	})
}

// PortfolioMetrics computes the full analytics bundle for a portfolio over
// [start, end]. Symbols with no usable data are reported in MissingSymbols
// and the remaining weights renormalized; only when every symbol is missing
// does the computation fail.
func (s *Service) PortfolioMetrics(ctx context.Context, portfolioID, start, end string) (MetricsBundle, error) {
	allocations, err := s.portfolios.ListAllocations(ctx, portfolioID)
	if err != nil {
		return MetricsBundle{}, err
	}
	if len(allocations) == 0 {
		return MetricsBundle{}, fmt.Errorf("portfolio %s has no allocations", portfolioID)
	}

	version, err := s.combinedVersion(ctx, allocations)
	if err != nil {
		return MetricsBundle{}, err
	}

	key := cache.Fingerprint("portfolio_metrics", map[string]string{
		"portfolio": portfolioID,
		"start":     start,
		"end":       end,
	}, version)

	return cache.GetOrCompute(ctx, s.cache, key, cache.TTLMetrics, func(ctx context.Context) (MetricsBundle, error) {
		return s.computePortfolioMetrics(ctx, portfolioID, allocations, start, end)
	})
}

// combinedVersion joins the per-symbol data versions so any symbol's price
// refresh changes the bundle key.
func (s *Service) combinedVersion(ctx context.Context, allocations []domain.Allocation) (string, error) {
	parts := make([]string, 0, len(allocations))
	for _, a := range allocations {
		v, err := s.prices.LatestVersion(ctx, a.Symbol)
		if err != nil {
			return "", err
		}
		parts = append(parts, a.Symbol+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";"), nil
}

func (s *Service) computePortfolioMetrics(ctx context.Context, portfolioID string, allocations []domain.Allocation, start, end string) (MetricsBundle, error) {
	var (
		mu      sync.Mutex
		series  = make(map[string]domain.PriceSeries, len(allocations))
		missing []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range allocations {
		a := a
		g.Go(func() error {
			sr, err := s.seriesForSymbol(gctx, a.Symbol, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || sr.Len() < minSeriesPoints {
				if err != nil {
					s.log.Warn().Err(err).Str("symbol", a.Symbol).Msg("Symbol data unavailable")
				}
				missing = append(missing, a.Symbol)
				return nil
			}
			series[a.Symbol] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MetricsBundle{}, err
	}

	if len(series) == 0 {
		return MetricsBundle{}, fmt.Errorf("no price data available for portfolio %s in [%s, %s]", portfolioID, start, end)
	}
	sort.Strings(missing)

	// Inner-join on dates: only days where every available symbol traded
	// contribute, so per-day returns always align.
	available := make([]string, 0, len(series))
	for sym := range series {
		available = append(available, sym)
	}
	sort.Strings(available)
	dates := joinDates(series, available)
	if len(dates) < minSeriesPoints {
		return MetricsBundle{}, fmt.Errorf("fewer than %d common trading days for portfolio %s in [%s, %s]", minSeriesPoints, portfolioID, start, end)
	}

	// Renormalize surviving weights so they sum to 1.
	weightBySymbol := make(map[string]float64, len(allocations))
	var weightSum float64
	for _, a := range allocations {
		if _, ok := series[a.Symbol]; ok {
			weightBySymbol[a.Symbol] = a.Weight
			weightSum += a.Weight
		}
	}
	if weightSum <= 0 {
		return MetricsBundle{}, fmt.Errorf("portfolio %s has no positive weight on available symbols", portfolioID)
	}

	returnsBySymbol := make(map[string][]float64, len(available))
	closesBySymbol := make(map[string][]float64, len(available))
	for _, sym := range available {
		closes := closesOnDates(series[sym], dates)
		closesBySymbol[sym] = closes
		returnsBySymbol[sym] = formulas.DailyReturns(closes)
	}

	weights := make([]float64, len(available))
	for i, sym := range available {
		weights[i] = weightBySymbol[sym] / weightSum
	}

	// Portfolio daily returns are the weighted sum of per-symbol returns.
	n := len(dates) - 1
	portfolioReturns := make([]float64, n)
	for i := 0; i < n; i++ {
		var r float64
		for j, sym := range available {
			r += weights[j] * returnsBySymbol[sym][i]
		}
		portfolioReturns[i] = r
	}

	dailyReturns := make([]DatedValue, n)
	for i := 0; i < n; i++ {
		dailyReturns[i] = DatedValue{Date: dates[i+1], Value: portfolioReturns[i]}
	}

	cumulative := formulas.CumulativeValues(portfolioReturns)
	totalReturn := cumulative[len(cumulative)-1] - 1
	annualized := annualizeFromTotal(totalReturn, len(cumulative))

	perAsset := make([]AssetMetrics, 0, len(available))
	for i, sym := range available {
		closes := closesBySymbol[sym]
		perAsset = append(perAsset, AssetMetrics{
			Symbol:           sym,
			Weight:           weights[i],
			TotalReturn:      formulas.TotalReturn(closes),
			AnnualizedReturn: formulas.AnnualizedReturn(closes),
			Volatility:       formulas.AnnualizedVolatility(returnsBySymbol[sym]),
			SharpeRatio:      formulas.SharpeRatio(returnsBySymbol[sym], s.riskFreeRate),
			MaxDrawdown:      formulas.Drawdown(closes).MaxDrawdown,
		})
	}

	portfolioVol := formulas.AnnualizedVolatility(portfolioReturns)
	if len(available) > 1 {
		// Cross-asset volatility uses the full covariance so correlation
		// effects are not lost; for one asset the two forms coincide.
		variance := formulas.PortfolioVariance(returnsBySymbol, available, weights)
		portfolioVol = sqrtAnnualizedPct(variance)
	}

	bundle := MetricsBundle{
		ID:               uuid.New().String(),
		PortfolioID:      portfolioID,
		StartDate:        dates[0],
		EndDate:          dates[len(dates)-1],
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		Volatility:       portfolioVol,
		SharpeRatio:      formulas.SharpeRatio(portfolioReturns, s.riskFreeRate),
		Drawdown:         formulas.Drawdown(cumulative),
		DailyReturns:     dailyReturns,
		PerAsset:         perAsset,
		Partial:          len(missing) > 0,
		MissingSymbols:   missing,
		ComputedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	s.log.Info().
		Str("portfolio", portfolioID).
		Int("symbols", len(available)).
		Int("missing", len(missing)).
		Int("trading_days", len(dates)).
		Msg("Portfolio metrics computed")
	return bundle, nil
}

// TechnicalIndicators computes the requested indicator series for a symbol.
// indicators is a subset of {sma, bbands, rsi, macd}; zero window/period
// values take the conventional defaults.
func (s *Service) TechnicalIndicators(ctx context.Context, symbol string, indicators []string, window, period int) (IndicatorBundle, error) {
	if window <= 0 {
		window = formulas.DefaultSMAWindow
	}
	if period <= 0 {
		period = formulas.DefaultRSIPeriod
	}
	if len(indicators) == 0 {
		indicators = []string{"sma", "bbands", "rsi", "macd"}
	}
	requested := make(map[string]bool, len(indicators))
	for _, name := range indicators {
		switch name {
		case "sma", "bbands", "rsi", "macd":
			requested[name] = true
		default:
			return IndicatorBundle{}, fmt.Errorf("unknown indicator %q", name)
		}
	}

	version, err := s.prices.LatestVersion(ctx, symbol)
	if err != nil {
		return IndicatorBundle{}, err
	}

	key := cache.Fingerprint("indicators", map[string]string{
		"symbol":     symbol,
		"indicators": strings.Join(sortedKeys(requested), ","),
		"window":     fmt.Sprintf("%d", window),
		"period":     fmt.Sprintf("%d", period),
	}, version)

	return cache.GetOrCompute(ctx, s.cache, key, cache.TTLIndicators, func(ctx context.Context) (IndicatorBundle, error) {
		series, err := s.seriesForSymbol(ctx, symbol, "", "")
		if err != nil {
			return IndicatorBundle{}, err
		}
		if series.Len() == 0 {
			return IndicatorBundle{}, fmt.Errorf("no price data for %s", symbol)
		}

		closes := series.Closes()
		bundle := IndicatorBundle{Symbol: symbol, Dates: series.Dates()}

		if requested["sma"] {
			bundle.SMA = formulas.SMA(closes, window)
		}
		if requested["bbands"] {
			bundle.UpperBand, bundle.MiddleBand, bundle.LowerBand =
				formulas.BollingerBands(closes, window, formulas.DefaultBollingerK)
		}
		if requested["rsi"] {
			bundle.RSI = formulas.RSI(closes, period)
		}
		if requested["macd"] {
			bundle.MACD, bundle.MACDSignal, bundle.MACDHist = formulas.MACD(
				closes, formulas.DefaultMACDFast, formulas.DefaultMACDSlow, formulas.DefaultMACDSignal)
		}
		return bundle, nil
	})
}

// CorrelationMatrix computes pairwise return correlations over the most
// recent periodDays trading days. Dates are inner-joined per pair, so two
// symbols that never traded on the same day correlate at 0 without
// disturbing the rest of the matrix. Symbols with no usable data at all are
// excluded and reported in MissingSymbols.
func (s *Service) CorrelationMatrix(ctx context.Context, symbols []string, periodDays int) (Matrix, error) {
	if len(symbols) < 2 {
		return Matrix{}, fmt.Errorf("correlation needs at least 2 symbols, got %d", len(symbols))
	}
	if periodDays <= 0 {
		periodDays = 90
	}

	seen := make(map[string]bool, len(symbols))
	sorted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		sorted = append(sorted, sym)
	}
	sort.Strings(sorted)
	if len(sorted) < 2 {
		return Matrix{}, fmt.Errorf("correlation needs at least 2 distinct symbols")
	}

	versions := make([]string, 0, len(sorted))
	for _, sym := range sorted {
		v, err := s.prices.LatestVersion(ctx, sym)
		if err != nil {
			return Matrix{}, err
		}
		versions = append(versions, sym+"="+v)
	}

	key := cache.Fingerprint("correlation", map[string]string{
		"symbols": strings.Join(sorted, ","),
		"days":    fmt.Sprintf("%d", periodDays),
	}, strings.Join(versions, ";"))

	return cache.GetOrCompute(ctx, s.cache, key, cache.TTLCorrelation, func(ctx context.Context) (Matrix, error) {
		series := make(map[string]domain.PriceSeries, len(sorted))
		var kept, missing []string
		for _, sym := range sorted {
			sr, err := s.seriesForSymbol(ctx, sym, "", "")
			if err != nil || sr.Len() < minSeriesPoints {
				if err != nil {
					s.log.Warn().Err(err).Str("symbol", sym).Msg("Dropping symbol from correlation")
				}
				missing = append(missing, sym)
				continue
			}
			series[sym] = sr
			kept = append(kept, sym)
		}
		if len(kept) < 2 {
			return Matrix{}, fmt.Errorf("fewer than 2 symbols with data for correlation")
		}

		n := len(kept)
		values := make([][]float64, n)
		for i := range values {
			values[i] = make([]float64, n)
			values[i][i] = 1.0
		}

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				corr := s.pairCorrelation(series[kept[i]], series[kept[j]], periodDays)
				values[i][j] = corr
				values[j][i] = corr
			}
		}

		return Matrix{
			Symbols:        kept,
			Values:         values,
			MissingSymbols: missing,
		}, nil
	})
}

// pairCorrelation inner-joins one pair's dates, trims to the most recent
// periodDays returns, and correlates. A pair with fewer than 2 common
// trading days correlates at 0 via the formulas-layer guard.
func (s *Service) pairCorrelation(a, b domain.PriceSeries, periodDays int) float64 {
	pair := map[string]domain.PriceSeries{a.Symbol: a, b.Symbol: b}
	dates := joinDates(pair, []string{a.Symbol, b.Symbol})
	// periodDays returns need periodDays+1 closes.
	if len(dates) > periodDays+1 {
		dates = dates[len(dates)-periodDays-1:]
	}
	return formulas.Correlation(
		formulas.DailyReturns(closesOnDates(a, dates)),
		formulas.DailyReturns(closesOnDates(b, dates)),
	)
}

// Invalidate removes cached results under a key prefix.
func (s *Service) Invalidate(ctx context.Context, prefix string) (int64, error) {
	return s.cache.Invalidate(ctx, prefix)
}

// joinDates returns the dates present in every listed symbol's series, in
// ascending order.
func joinDates(series map[string]domain.PriceSeries, symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, sym := range symbols {
		for _, p := range series[sym].Points {
			counts[p.Date]++
		}
	}

	var dates []string
	for _, p := range series[symbols[0]].Points {
		if counts[p.Date] == len(symbols) {
			dates = append(dates, p.Date)
		}
	}
	return dates
}

// closesOnDates extracts the close prices for exactly the given dates.
func closesOnDates(series domain.PriceSeries, dates []string) []float64 {
	bySymDate := make(map[string]float64, series.Len())
	for _, p := range series.Points {
		bySymDate[p.Date] = p.Close
	}
	closes := make([]float64, len(dates))
	for i, d := range dates {
		closes[i] = bySymDate[d]
	}
	return closes
}

// annualizeFromTotal compounds a total return over n daily observations to
// an annual rate.
func annualizeFromTotal(total float64, n int) float64 {
	if n < minSeriesPoints {
		return 0
	}
	return formulas.AnnualizedReturnFromTotal(total, n)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqrtAnnualizedPct converts a daily return variance to annualized percent
// volatility.
func sqrtAnnualizedPct(dailyVariance float64) float64 {
	return formulas.AnnualizedVolatilityFromVariance(dailyVariance)
}
