package refresher

import "log"

const (
	defaultPeriod   = "1d"
	defaultInterval = "5m"
)

// historicalCombos lists the supported (period, interval) pairings: short
// periods pair with fine-grained intervals, long periods with coarse ones.
var historicalCombos = map[string][]string{
	"1d":  {"1m", "2m", "5m", "15m"},
	"5d":  {"5m", "15m", "30m", "60m"},
	"1mo": {"30m", "60m", "1d"},
	"3mo": {"1d"},
	"6mo": {"1d"},
	"1y":  {"1d", "1wk"},
}

// NormalizeHistoricalRange coerces an unsupported (period, interval) pair to
// a valid one rather than propagating it to the data source. An unknown
// period falls back to the default pair; a known period with an unsupported
// interval takes the period's first allowed interval.
func NormalizeHistoricalRange(period, interval string) (string, string) {
	allowed, ok := historicalCombos[period]
	if !ok {
		if period != "" {
			log.Printf("[WARN] unsupported historical period %q, using %s/%s", period, defaultPeriod, defaultInterval)
		}
		return defaultPeriod, defaultInterval
	}
	for _, iv := range allowed {
		if iv == interval {
			return period, interval
		}
	}
	if interval != "" {
		log.Printf("[WARN] interval %q not valid for period %q, using %s", interval, period, allowed[0])
	}
	return period, allowed[0]
}
