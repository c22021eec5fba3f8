package collector

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestYahoo(handler http.Handler) (*YahooFetcher, *httptest.Server) {
	srv := httptest.NewServer(handler)
	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	return f, srv
}

func TestYahooFetchHistory_ParsesAndSkipsNullBars(t *testing.T) {
	f, srv := newTestYahoo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/AAPL"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1700000000,1700000300,1700000600],
			"indicators":{"quote":[{"close":[150.123,null,151.5],"volume":[1000,null,2000]}]}}],"error":null}}`)
	}))
	defer srv.Close()

	bars, err := f.FetchHistory("AAPL", "1d", "5m")
	require.NoError(t, err)
	require.Len(t, bars, 2, "null bar should be skipped")
	assert.Equal(t, 150.123, bars[0].Close)
	assert.Equal(t, int64(2000), bars[1].Volume)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestYahooFetchHistory_APIError(t *testing.T) {
	f, srv := newTestYahoo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	_, err := f.FetchHistory("BAD", "1d", "5m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestYahooFetchQuotes_FallbackChain(t *testing.T) {
	// HAS_CUR carries currentPrice, HAS_REG only regularMarketPrice, and
	// NEEDS_CHART has neither, forcing the intraday chart fallback.
	f, srv := newTestYahoo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v7/finance/quote"):
			fmt.Fprint(w, `{"quoteResponse":{"result":[
				{"symbol":"HAS_CUR","currentPrice":101.5,"regularMarketPrice":99.0,"regularMarketVolume":10},
				{"symbol":"HAS_REG","regularMarketPrice":55.25,"regularMarketVolume":20},
				{"symbol":"NEEDS_CHART"}],"error":null}}`)
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/NEEDS_CHART"):
			fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1700000000,1700000060],
				"indicators":{"quote":[{"close":[70.0,71.75],"volume":[5,6]}]}}],"error":null}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	quotes, err := f.FetchQuotes([]string{"HAS_CUR", "HAS_REG", "NEEDS_CHART"})
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, 101.5, quotes["HAS_CUR"].Price, "currentPrice wins over regularMarketPrice")
	assert.Equal(t, 55.25, quotes["HAS_REG"].Price)
	assert.Equal(t, 71.75, quotes["NEEDS_CHART"].Price, "last intraday close used as final fallback")
}

func TestYahooFetchQuotes_OmitsUnpriceableSymbols(t *testing.T) {
	f, srv := newTestYahoo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v7/finance/quote"):
			fmt.Fprint(w, `{"quoteResponse":{"result":[{"symbol":"GOOD","regularMarketPrice":12.0}],"error":null}}`)
		default:
			// Intraday fallback for BAD fails too.
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	quotes, err := f.FetchQuotes([]string{"GOOD", "BAD"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	_, ok := quotes["BAD"]
	assert.False(t, ok)
}
