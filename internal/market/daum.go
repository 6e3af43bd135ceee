package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

const daumBase = "https://finance.daum.net"

// DaumRow is one row of a Daum finance trend API response. Extra fields
// are kept to store as the ranking payload.
type DaumRow map[string]any

// Symbol returns the row's symbol under any of the known keys.
func (r DaumRow) Symbol() string {
	for _, key := range []string{"symbolCode", "symbol", "code"} {
		if v, ok := r[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Name returns the row's display name.
func (r DaumRow) Name() string {
	for _, key := range []string{"name", "stockName"} {
		if v, ok := r[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Float reads a numeric field, tolerating string-typed numbers.
func (r DaumRow) Float(key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

// SetFloat stores a numeric field.
func (r DaumRow) SetFloat(key string, v float64) {
	r[key] = v
}

// DaumClient reads the KR daily ranking boards from the Daum finance
// trend API.
type DaumClient struct {
	fetch Fetcher
}

// NewDaumClient wraps a fetcher.
func NewDaumClient(fetch Fetcher) *DaumClient {
	return &DaumClient{fetch: fetch}
}

type daumResponse struct {
	Data []DaumRow `json:"data"`
}

func (c *DaumClient) getRows(ctx context.Context, path string, params url.Values, referer string) ([]DaumRow, error) {
	body, err := c.fetch.GetJSON(ctx, daumBase+path, params, referer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daum trend data: %w", err)
	}

	var resp daumResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode daum trend data: %w", err)
	}
	return resp.Data, nil
}

// MarketCapBoard returns the market cap ranking for a KR exchange.
func (c *DaumClient) MarketCapBoard(ctx context.Context, exchange string, perPage int) ([]DaumRow, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("perPage", strconv.Itoa(perPage))
	params.Set("fieldName", "marketCap")
	params.Set("order", "desc")
	params.Set("market", exchange)
	params.Set("pagination", "true")

	referer := fmt.Sprintf("%s/domestic/market_cap?market=%s", daumBase, exchange)
	return c.getRows(ctx, "/api/trend/market_capitalization", params, referer)
}

// PriceBoard returns the rise or fall ranking for a KR exchange.
// FALL is requested ascending so the steepest decline ranks first, and
// its change rates are forced negative because the API sometimes
// reports them unsigned. RISE rates are forced positive.
func (c *DaumClient) PriceBoard(ctx context.Context, exchange string, typ RankDirection, perPage int) ([]DaumRow, error) {
	order := "desc"
	screen := "rise_stocks"
	if typ == RankFall {
		order = "asc"
		screen = "fall_stocks"
	}

	params := url.Values{}
	params.Set("page", "1")
	params.Set("perPage", strconv.Itoa(perPage))
	params.Set("intervalType", "TODAY")
	params.Set("market", exchange)
	params.Set("changeType", string(typ))
	params.Set("pagination", "true")
	params.Set("order", order)

	referer := fmt.Sprintf("%s/domestic/%s?market=%s", daumBase, screen, exchange)
	rows, err := c.getRows(ctx, "/api/trend/price_performance", params, referer)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		cr := r.Float("changeRate")
		if cr == nil {
			continue
		}
		if typ == RankFall {
			r.SetFloat("changeRate", -math.Abs(*cr))
		} else {
			r.SetFloat("changeRate", math.Abs(*cr))
		}
	}
	return rows, nil
}

// RankDirection selects the rise or fall side of a price board.
type RankDirection string

const (
	RankRise RankDirection = "RISE"
	RankFall RankDirection = "FALL"
)
