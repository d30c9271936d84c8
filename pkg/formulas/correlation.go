package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// Correlation calculates the Pearson correlation coefficient between two
// equal-length return series. Fewer than 2 observations, mismatched lengths
// or a degenerate (zero-variance) input yield 0, never NaN.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return sanitize(stat.Correlation(x, y, nil))
}

// CorrelationMatrix builds the pairwise Pearson correlation matrix over a set
// of date-aligned return series, in the order given by symbols. The matrix is
// symmetric and its diagonal is exactly 1.0. Pairs with insufficient data
// correlate at 0.
func CorrelationMatrix(returnsBySymbol map[string][]float64, symbols []string) [][]float64 {
	n := len(symbols)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			corr := Correlation(returnsBySymbol[symbols[i]], returnsBySymbol[symbols[j]])
			matrix[i][j] = corr
			matrix[j][i] = corr
		}
	}
	return matrix
}

// PortfolioVariance calculates w'Σw over date-aligned return series: the
// weighted covariance of portfolio returns, not a weighted average of
// individual variances.
func PortfolioVariance(returnsBySymbol map[string][]float64, symbols []string, weights []float64) float64 {
	n := len(symbols)
	if n == 0 || len(weights) != n {
		return 0
	}

	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov := Covariance(returnsBySymbol[symbols[i]], returnsBySymbol[symbols[j]])
			variance += weights[i] * weights[j] * cov
		}
	}
	if variance < 0 {
		// Floating-point noise on a near-zero quadratic form.
		variance = 0
	}
	return variance
}
