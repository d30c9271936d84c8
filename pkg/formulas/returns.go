package formulas

import "math"

// DailyReturns converts prices to daily percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i], with a zero guard when the
// previous price is 0. Fewer than 2 prices yield an empty slice.
func DailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// TotalReturn calculates the total return over a price series:
// (last - first) / first. Fewer than 2 prices, or a zero first price, yield 0.
func TotalReturn(prices []float64) float64 {
	if len(prices) < 2 || prices[0] == 0 {
		return 0
	}
	return (prices[len(prices)-1] - prices[0]) / prices[0]
}

// AnnualizedReturn compounds the total return over the elapsed trading days:
// (1 + total)^(252/n) - 1 where n is the number of elapsed trading days
// (len(prices) - 1). Fewer than 2 prices yield 0.
func AnnualizedReturn(prices []float64) float64 {
	n := len(prices) - 1
	if n < 1 {
		return 0
	}
	total := TotalReturn(prices)
	return sanitize(math.Pow(1+total, TradingDaysPerYear/float64(n)) - 1)
}

// AnnualizedReturnFromTotal compounds an already-computed total return over
// n daily value observations (n-1 elapsed trading days).
func AnnualizedReturnFromTotal(total float64, n int) float64 {
	if n < 2 {
		return 0
	}
	return sanitize(math.Pow(1+total, TradingDaysPerYear/float64(n-1)) - 1)
}

// CumulativeValues builds the growth-of-one-unit value series from daily
// returns: v[0] = 1, v[t] = v[t-1] * (1 + r[t-1]).
func CumulativeValues(dailyReturns []float64) []float64 {
	values := make([]float64, len(dailyReturns)+1)
	values[0] = 1
	for i, r := range dailyReturns {
		values[i+1] = values[i] * (1 + r)
	}
	return values
}
