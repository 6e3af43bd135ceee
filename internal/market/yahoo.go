package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooClient reads closes and volumes from the Yahoo chart API.
type YahooClient struct {
	fetch Fetcher
	nyTZ  *time.Location
}

// NewYahooClient wraps a fetcher. Chart timestamps are interpreted in
// New York time to derive the US trading date.
func NewYahooClient(fetch Fetcher) *YahooClient {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	return &YahooClient{fetch: fetch, nyTZ: loc}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (c *YahooClient) chart(ctx context.Context, symbol, rng, interval string) (*yahooChart, error) {
	params := url.Values{}
	params.Set("range", rng)
	params.Set("interval", interval)

	body, err := c.fetch.GetJSON(ctx, yahooChartURL+url.PathEscape(symbol), params, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch yahoo chart for %s: %w", symbol, err)
	}

	var out yahooChart
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode yahoo chart for %s: %w", symbol, err)
	}
	if len(out.Chart.Result) == 0 || len(out.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty yahoo chart for %s", symbol)
	}
	return &out, nil
}

// LatestCloseAndDate returns the newest daily close and its NY trading
// date from a five day window.
func (c *YahooClient) LatestCloseAndDate(ctx context.Context, symbol string) (time.Time, *float64, error) {
	js, err := c.chart(ctx, symbol, "5d", "1d")
	if err != nil {
		return time.Time{}, nil, err
	}

	result := js.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	if len(result.Timestamp) == 0 || len(quote.Close) == 0 {
		return time.Time{}, nil, fmt.Errorf("no daily bars for %s", symbol)
	}

	ts := result.Timestamp[len(result.Timestamp)-1]
	day := time.Unix(ts, 0).In(c.nyTZ)
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return date, quote.Close[len(quote.Close)-1], nil
}

// LatestVolume returns the last non-nil minute volume of the current
// session, or nil when the session has no prints yet.
func (c *YahooClient) LatestVolume(ctx context.Context, symbol string) (*int64, error) {
	js, err := c.chart(ctx, symbol, "1d", "1m")
	if err != nil {
		return nil, err
	}

	vols := js.Chart.Result[0].Indicators.Quote[0].Volume
	for i := len(vols) - 1; i >= 0; i-- {
		if vols[i] != nil {
			return vols[i], nil
		}
	}
	return nil, nil
}
