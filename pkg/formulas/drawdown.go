package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Maximum drawdown (positive fraction, 0.25 = 25% below peak)
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown at the last point
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Points since the peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// Drawdown calculates running-peak drawdown metrics from a value series.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Both results are positive fractions in [0, 1]. Fewer than 2 points yield
// all-zero metrics.
func Drawdown(values []float64) DrawdownMetrics {
	if len(values) < 2 {
		return DrawdownMetrics{}
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	current := values[len(values)-1]
	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - current) / peak
	}

	return DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    current,
	}
}
