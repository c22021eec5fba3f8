package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"streamdash/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy
// support.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		BaseURL: defaultYahooBaseURL,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooQuote is the response structure from Yahoo Finance quote API.
type yahooQuote struct {
	QuoteResponse struct {
		Result []struct {
			Symbol              string   `json:"symbol"`
			CurrentPrice        *float64 `json:"currentPrice"`
			RegularMarketPrice  *float64 `json:"regularMarketPrice"`
			RegularMarketVolume int64    `json:"regularMarketVolume"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (f *YahooFetcher) get(u string, out interface{}) error {
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("yahoo decode: %w", err)
	}
	return nil
}

func (f *YahooFetcher) fetchChart(symbol, interval, rng string) ([]model.Bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(symbol), interval, rng)

	var chart yahooChart
	if err := f.get(u, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote series for %s", symbol)
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		var vol int64
		if i < len(quote.Volume) {
			vol = int64(toFloat(quote.Volume[i]))
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(ts, 0),
			Close:  c,
			Volume: vol,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// FetchHistory returns historical closes for one symbol. Yahoo's chart range
// parameter matches the configured period directly.
func (f *YahooFetcher) FetchHistory(symbol, period, interval string) ([]model.Bar, error) {
	return f.fetchChart(symbol, interval, period)
}

// FetchQuotes returns live quotes for a batch of symbols. The price is taken
// from the first populated field of currentPrice, then regularMarketPrice,
// then the last close of an intraday 1d/1m chart. The priority order matches
// the provider's field semantics and must not be reordered.
func (f *YahooFetcher) FetchQuotes(symbols []string) (map[string]model.Quote, error) {
	if len(symbols) == 0 {
		return map[string]model.Quote{}, nil
	}
	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s",
		f.BaseURL, url.QueryEscape(strings.Join(symbols, ",")))

	var q yahooQuote
	if err := f.get(u, &q); err != nil {
		return nil, err
	}
	if q.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", q.QuoteResponse.Error.Description)
	}

	quotes := make(map[string]model.Quote, len(symbols))
	for _, r := range q.QuoteResponse.Result {
		switch {
		case r.CurrentPrice != nil && *r.CurrentPrice > 0:
			quotes[r.Symbol] = model.Quote{Price: *r.CurrentPrice, Volume: r.RegularMarketVolume}
		case r.RegularMarketPrice != nil && *r.RegularMarketPrice > 0:
			quotes[r.Symbol] = model.Quote{Price: *r.RegularMarketPrice, Volume: r.RegularMarketVolume}
		}
	}

	// Intraday fallback for symbols the quote endpoint could not price.
	for _, sym := range symbols {
		if _, ok := quotes[sym]; ok {
			continue
		}
		bars, err := f.fetchChart(sym, "1m", "1d")
		if err != nil || len(bars) == 0 {
			log.Printf("[WARN] yahoo: no live quote for %s, intraday fallback failed: %v", sym, err)
			continue
		}
		last := bars[len(bars)-1]
		quotes[sym] = model.Quote{Price: last.Close, Volume: last.Volume}
	}
	return quotes, nil
}
