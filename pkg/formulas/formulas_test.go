package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDailyReturns tests daily return calculation including the zero-price guard.
func TestDailyReturns(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected []float64
	}{
		{
			name:     "Simple series",
			prices:   []float64{100, 110, 99},
			expected: []float64{0.10, -0.10},
		},
		{
			name:     "Zero previous price yields zero return",
			prices:   []float64{0, 100, 110},
			expected: []float64{0, 0.10},
		},
		{
			name:     "Single point",
			prices:   []float64{100},
			expected: []float64{},
		},
		{
			name:     "Empty",
			prices:   []float64{},
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			returns := DailyReturns(tt.prices)
			require.Len(t, returns, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], returns[i], 1e-12)
			}
		})
	}
}

// TestTotalReturnWorkedExample verifies the canonical example series.
func TestTotalReturnWorkedExample(t *testing.T) {
	prices := []float64{100, 102, 98, 105, 110, 108, 115}

	assert.InDelta(t, 0.15, TotalReturn(prices), 1e-12)

	dd := Drawdown(prices)
	assert.InDelta(t, (102.0-98.0)/102.0, dd.MaxDrawdown, 1e-12)
}

// TestShortSeriesPolicy verifies that series with fewer than 2 points yield
// exactly zero for every scalar metric, never NaN or an error.
func TestShortSeriesPolicy(t *testing.T) {
	for _, prices := range [][]float64{nil, {}, {100}} {
		returns := DailyReturns(prices)

		assert.Zero(t, TotalReturn(prices))
		assert.Zero(t, AnnualizedReturn(prices))
		assert.Zero(t, AnnualizedVolatility(returns))
		assert.Zero(t, SharpeRatio(returns, 0.02))
		assert.Zero(t, Drawdown(prices).MaxDrawdown)
		assert.Zero(t, Drawdown(prices).CurrentDrawdown)
	}
}

// TestAnnualizedReturn tests the compounding formula (1+total)^(252/n) - 1.
func TestAnnualizedReturn(t *testing.T) {
	// 252 elapsed trading days: annualized equals total.
	prices := make([]float64, 253)
	for i := range prices {
		prices[i] = 100 * (1 + float64(i)*0.001)
	}
	total := TotalReturn(prices)
	assert.InDelta(t, total, AnnualizedReturn(prices), 1e-9)

	// Half a year doubles the compounding exponent.
	half := []float64{100, 110}
	expected := 0.10
	got := AnnualizedReturn(half)
	// (1.1)^252 - 1 is enormous but finite; just check it is finite and positive.
	assert.Greater(t, got, expected)
	assert.False(t, got != got, "annualized return must not be NaN")
}

// TestSharpeRatioZeroStdDev verifies the explicit flat-series policy:
// Sharpe is 0 (not infinite) whenever the return standard deviation is 0.
func TestSharpeRatioZeroStdDev(t *testing.T) {
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	assert.Zero(t, SharpeRatio(flat, 0.02))

	flatPrices := []float64{100, 100, 100, 100}
	assert.Zero(t, SharpeFromPrices(flatPrices, 0.02))
}

// TestSharpeRatioSign tests that positive excess returns produce a positive ratio.
func TestSharpeRatioSign(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.005, 0.015, 0.01}
	sharpe := SharpeRatio(returns, 0.0)
	assert.Greater(t, sharpe, 0.0)
}

// TestDrawdownMetrics tests running-peak drawdown tracking.
func TestDrawdownMetrics(t *testing.T) {
	values := []float64{100, 120, 90, 110, 95}
	dd := Drawdown(values)

	assert.InDelta(t, (120.0-90.0)/120.0, dd.MaxDrawdown, 1e-12)
	assert.InDelta(t, (120.0-95.0)/120.0, dd.CurrentDrawdown, 1e-12)
	assert.Equal(t, 120.0, dd.PeakValue)
	assert.Equal(t, 95.0, dd.CurrentValue)
	assert.Equal(t, 3, dd.DaysInDrawdown)
}

// TestSMAWarmup verifies the SMA warm-up policy: exactly w-1 leading nil
// entries, never zero-substituted values.
func TestSMAWarmup(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	sma := SMA(closes, 3)

	require.Len(t, sma, 5)
	assert.Nil(t, sma[0])
	assert.Nil(t, sma[1])
	require.NotNil(t, sma[2])
	assert.InDelta(t, 2.0, *sma[2], 1e-12)
	require.NotNil(t, sma[4])
	assert.InDelta(t, 4.0, *sma[4], 1e-12)
}

// TestSMAInsufficientData tests an all-nil result when the window exceeds the series.
func TestSMAInsufficientData(t *testing.T) {
	sma := SMA([]float64{1, 2}, 5)
	require.Len(t, sma, 2)
	assert.Nil(t, sma[0])
	assert.Nil(t, sma[1])
}

// TestBollingerBands tests band ordering and warm-up length.
func TestBollingerBands(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 12, 13, 12, 11, 13}
	upper, middle, lower := BollingerBands(closes, 5, 2.0)

	require.Len(t, upper, len(closes))
	for i := 0; i < 4; i++ {
		assert.Nil(t, upper[i], "index %d should be warm-up", i)
		assert.Nil(t, middle[i])
		assert.Nil(t, lower[i])
	}
	for i := 4; i < len(closes); i++ {
		require.NotNil(t, upper[i])
		require.NotNil(t, middle[i])
		require.NotNil(t, lower[i])
		assert.GreaterOrEqual(t, *upper[i], *middle[i])
		assert.LessOrEqual(t, *lower[i], *middle[i])
	}
}

// TestRSIWarmup verifies the RSI lookback policy: first `period` entries nil,
// remaining values within [0, 100].
func TestRSIWarmup(t *testing.T) {
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
		46.03, 46.41, 46.22, 45.64,
	}
	rsi := RSI(closes, 14)

	require.Len(t, rsi, len(closes))
	for i := 0; i < 14; i++ {
		assert.Nil(t, rsi[i], "index %d should be warm-up", i)
	}
	for i := 14; i < len(closes); i++ {
		require.NotNil(t, rsi[i])
		assert.GreaterOrEqual(t, *rsi[i], 0.0)
		assert.LessOrEqual(t, *rsi[i], 100.0)
	}
}

// TestRSIInsufficientData tests an all-nil result below period+1 points.
func TestRSIInsufficientData(t *testing.T) {
	rsi := RSI([]float64{1, 2, 3}, 14)
	for i := range rsi {
		assert.Nil(t, rsi[i])
	}
}

// TestMACDWarmup tests the MACD/signal/histogram warm-up boundaries.
func TestMACDWarmup(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%7) - float64(i%3)
	}

	macd, signal, hist := MACD(closes, 12, 26, 9)
	require.Len(t, macd, 60)

	macdStart := 26 - 1
	signalStart := macdStart + 9 - 1

	for i := 0; i < macdStart; i++ {
		assert.Nil(t, macd[i], "macd index %d should be warm-up", i)
	}
	for i := macdStart; i < 60; i++ {
		assert.NotNil(t, macd[i])
	}
	for i := 0; i < signalStart; i++ {
		assert.Nil(t, signal[i], "signal index %d should be warm-up", i)
		assert.Nil(t, hist[i])
	}
	for i := signalStart; i < 60; i++ {
		require.NotNil(t, signal[i])
		require.NotNil(t, hist[i])
		assert.InDelta(t, *macd[i]-*signal[i], *hist[i], 1e-9)
	}
}

// TestCorrelation tests perfect positive/negative correlation and the
// insufficient-data policy.
func TestCorrelation(t *testing.T) {
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Correlation([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-9)

	// Fewer than 2 observations: 0, not NaN.
	assert.Zero(t, Correlation([]float64{1}, []float64{2}))
	assert.Zero(t, Correlation(nil, nil))
	// Mismatched lengths.
	assert.Zero(t, Correlation([]float64{1, 2}, []float64{1, 2, 3}))
	// Zero variance never yields NaN.
	assert.Zero(t, Correlation([]float64{5, 5, 5}, []float64{1, 2, 3}))
}

// TestCorrelationMatrix tests diagonal, symmetry and ordering.
func TestCorrelationMatrix(t *testing.T) {
	returns := map[string][]float64{
		"AAA": {0.01, 0.02, -0.01, 0.03},
		"BBB": {0.02, 0.04, -0.02, 0.06},
		"CCC": {-0.01, -0.02, 0.01, -0.03},
	}
	symbols := []string{"AAA", "BBB", "CCC"}

	matrix := CorrelationMatrix(returns, symbols)
	require.Len(t, matrix, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, matrix[i][i], "diagonal must be exactly 1.0")
		for j := 0; j < 3; j++ {
			assert.InDelta(t, matrix[j][i], matrix[i][j], 1e-12, "matrix must be symmetric")
		}
	}

	assert.InDelta(t, 1.0, matrix[0][1], 1e-9)  // BBB is 2x AAA
	assert.InDelta(t, -1.0, matrix[0][2], 1e-9) // CCC is -AAA
}

// TestPortfolioVariance tests the quadratic form against the single-asset case.
func TestPortfolioVariance(t *testing.T) {
	returns := map[string][]float64{
		"AAA": {0.01, -0.02, 0.03, 0.01},
	}
	v := PortfolioVariance(returns, []string{"AAA"}, []float64{1.0})
	assert.InDelta(t, Variance(returns["AAA"]), v, 1e-12)

	// Two perfectly correlated assets: variance of the 50/50 mix equals the
	// variance of either one scaled by the squared weights sum.
	returns["BBB"] = returns["AAA"]
	v2 := PortfolioVariance(returns, []string{"AAA", "BBB"}, []float64{0.5, 0.5})
	assert.InDelta(t, Variance(returns["AAA"]), v2, 1e-12)
}

// TestCumulativeValues tests growth-of-one-unit construction.
func TestCumulativeValues(t *testing.T) {
	values := CumulativeValues([]float64{0.10, -0.10})
	require.Len(t, values, 3)
	assert.InDelta(t, 1.0, values[0], 1e-12)
	assert.InDelta(t, 1.1, values[1], 1e-12)
	assert.InDelta(t, 0.99, values[2], 1e-12)
}

// TestAnnualizedVolatility tests the percentage annualization.
func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.02, -0.02}
	vol := AnnualizedVolatility(returns)
	assert.InDelta(t, StdDev(returns)*15.8745078664, vol/100, 1e-6)
	assert.Zero(t, AnnualizedVolatility([]float64{0.01}))
}
