package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"streamdash/internal/model"
)

// ProviderFetcher implements Fetcher against a generic quote-provider REST
// API authenticated with a bearer key.
type ProviderFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewProviderFetcher creates a new fetcher with optional proxy support.
func NewProviderFetcher(baseURL, apiKey, proxyURL string) *ProviderFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &ProviderFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

func (f *ProviderFetcher) Name() string { return "provider" }

// providerBar is the expected JSON shape of one history point.
type providerBar struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// providerQuote is the expected JSON shape of one live quote.
type providerQuote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

func (f *ProviderFetcher) get(endpoint string, out interface{}) error {
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("provider fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider decode: %w", err)
	}
	return nil
}

func (f *ProviderFetcher) FetchHistory(symbol, period, interval string) ([]model.Bar, error) {
	endpoint := fmt.Sprintf("%s/api/v1/history?symbol=%s&period=%s&interval=%s",
		f.BaseURL, url.QueryEscape(symbol), period, interval)

	var pbars []providerBar
	if err := f.get(endpoint, &pbars); err != nil {
		return nil, err
	}
	bars := make([]model.Bar, 0, len(pbars))
	for _, pb := range pbars {
		if pb.Close == 0 {
			continue
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(pb.Timestamp, 0),
			Close:  pb.Close,
			Volume: pb.Volume,
		})
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func (f *ProviderFetcher) FetchQuotes(symbols []string) (map[string]model.Quote, error) {
	if len(symbols) == 0 {
		return map[string]model.Quote{}, nil
	}
	endpoint := fmt.Sprintf("%s/api/v1/quotes?symbols=%s",
		f.BaseURL, url.QueryEscape(strings.Join(symbols, ",")))

	var pquotes []providerQuote
	if err := f.get(endpoint, &pquotes); err != nil {
		return nil, err
	}
	quotes := make(map[string]model.Quote, len(pquotes))
	for _, pq := range pquotes {
		if pq.Price <= 0 {
			continue
		}
		quotes[strings.ToUpper(pq.Symbol)] = model.Quote{Price: pq.Price, Volume: pq.Volume}
	}
	return quotes, nil
}
