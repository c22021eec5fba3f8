package model

import (
	"math"
	"strings"
	"time"
)

// Observation is a single timestamped price sample for a symbol.
type Observation struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Volume     int64     `json:"volume"`
	Historical bool      `json:"historical"`
}

// NewObservation builds an observation with ingestion normalization applied:
// timestamps are collapsed to UTC and prices rounded to 2 decimal places.
func NewObservation(symbol string, ts time.Time, price float64, volume int64, historical bool) Observation {
	if volume < 0 {
		volume = 0
	}
	return Observation{
		Symbol:     strings.ToUpper(symbol),
		Timestamp:  ts.UTC(),
		Price:      RoundPrice(price),
		Volume:     volume,
		Historical: historical,
	}
}

// RoundPrice rounds to 2 decimal places.
func RoundPrice(p float64) float64 {
	return math.Round(p*100) / 100
}

// Bar is one historical data point as returned by a data source.
type Bar struct {
	Time   time.Time
	Close  float64
	Volume int64
}

// Quote is a live price as of fetch time.
type Quote struct {
	Price  float64
	Volume int64
}

// NormalizeSymbols uppercases, trims, and dedupes a symbol list while
// preserving first-seen order. Empty entries are dropped.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
