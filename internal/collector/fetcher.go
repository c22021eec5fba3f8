package collector

import "streamdash/internal/model"

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchHistory returns the historical closes for one symbol over the
	// given (period, interval) pair, oldest first.
	FetchHistory(symbol, period, interval string) ([]model.Bar, error)
	// FetchQuotes returns live quotes for a batch of symbols. Symbols that
	// could not be quoted are simply absent from the result.
	FetchQuotes(symbols []string) (map[string]model.Quote, error)
	Name() string
}
