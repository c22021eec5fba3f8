package collector

import (
	"fmt"
	"time"

	"streamdash/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// When no fixture is set for a symbol it generates a deterministic synthetic
// series around a per-symbol base price.
type MockFetcher struct {
	History      map[string][]model.Bar
	Quotes       map[string]model.Quote
	FailHistory  map[string]bool
	FailQuotes   map[string]bool
	HistoryCalls map[string]int
	QuoteCalls   int
}

// NewMockFetcher creates an empty mock fetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		History:      make(map[string][]model.Bar),
		Quotes:       make(map[string]model.Quote),
		FailHistory:  make(map[string]bool),
		FailQuotes:   make(map[string]bool),
		HistoryCalls: make(map[string]int),
	}
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHistory(symbol, _, _ string) ([]model.Bar, error) {
	m.HistoryCalls[symbol]++
	if m.FailHistory[symbol] {
		return nil, fmt.Errorf("mock: history fetch failed for %s", symbol)
	}
	if bars, ok := m.History[symbol]; ok {
		return bars, nil
	}
	return GenerateMockBars(basePrice(symbol), 30), nil
}

func (m *MockFetcher) FetchQuotes(symbols []string) (map[string]model.Quote, error) {
	m.QuoteCalls++
	quotes := make(map[string]model.Quote, len(symbols))
	for _, sym := range symbols {
		if m.FailQuotes[sym] {
			continue
		}
		if q, ok := m.Quotes[sym]; ok {
			quotes[sym] = q
			continue
		}
		quotes[sym] = model.Quote{Price: basePrice(sym), Volume: 1000}
	}
	return quotes, nil
}

func basePrice(symbol string) float64 {
	switch symbol {
	case "AAPL":
		return 150
	case "SPY":
		return 400
	case "MSFT":
		return 300
	default:
		return 100
	}
}

// GenerateMockBars produces count minute-spaced bars ending now, following a
// simple trend plus alternating noise.
func GenerateMockBars(base float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	start := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		noise := 2.0
		if i%2 == 1 {
			noise = -2.0
		}
		bars[i] = model.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Close:  base + float64(i)*0.5 + noise,
			Volume: 1000000,
		}
	}
	return bars
}
