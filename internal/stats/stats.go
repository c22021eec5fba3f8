package stats

import (
	"errors"
	"math"

	"streamdash/internal/model"
)

// Summary condenses one symbol's buffered observations for display.
type Summary struct {
	Symbol     string  `json:"symbol"`
	Last       float64 `json:"last"`
	Change     float64 `json:"change"`
	ChangePct  float64 `json:"change_pct"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Average    float64 `json:"average"`
	Points     int     `json:"points"`
	Historical int     `json:"historical_points"`
}

// Summarize scans one symbol's observations (arrival order) and returns
// last price, change against the first buffered point, high/low, and mean.
func Summarize(symbol string, obs []model.Observation) (*Summary, error) {
	if len(obs) == 0 {
		return nil, errors.New("no observations provided")
	}

	high := math.Inf(-1)
	low := math.Inf(1)
	sum := 0.0
	historical := 0
	for _, o := range obs {
		if o.Price > high {
			high = o.Price
		}
		if o.Price < low {
			low = o.Price
		}
		sum += o.Price
		if o.Historical {
			historical++
		}
	}

	first := obs[0].Price
	last := obs[len(obs)-1].Price
	change := model.RoundPrice(last - first)
	changePct := 0.0
	if first != 0 {
		changePct = math.Round(change/first*10000) / 100
	}

	return &Summary{
		Symbol:     symbol,
		Last:       last,
		Change:     change,
		ChangePct:  changePct,
		High:       high,
		Low:        low,
		Average:    model.RoundPrice(sum / float64(len(obs))),
		Points:     len(obs),
		Historical: historical,
	}, nil
}
