package cache

import "time"

// Per-operation TTLs. Quotes move intraday; daily series and derived
// analytics only change when new bars land, so they live longer and are
// invalidated explicitly after refreshes.
const (
	TTLQuotes      = 10 * time.Minute
	TTLSeries      = time.Hour
	TTLMetrics     = 24 * time.Hour
	TTLIndicators  = 24 * time.Hour
	TTLCorrelation = 24 * time.Hour
)
