package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	slickBase        = "https://www.slickcharts.com"
	slickCompanies   = slickBase + "/nasdaq100"
	slickAnalysis    = slickBase + "/nasdaq100/analysis"
	slickCacheKey    = "slickcharts:nasdaq100:merged"
	slickMinUniverse = 80
)

// ErrTemporary marks a scrape failure that is worth retrying later,
// such as a truncated SlickCharts table.
var ErrTemporary = errors.New("temporary source error")

// SlickChartsClient builds the merged NASDAQ-100 universe from the
// SlickCharts components and analysis pages.
type SlickChartsClient struct {
	fetch Fetcher
	cache *PageCache
}

// NewSlickChartsClient wraps a fetcher with an optional page cache.
func NewSlickChartsClient(fetch Fetcher, cache *PageCache) *SlickChartsClient {
	return &SlickChartsClient{fetch: fetch, cache: cache}
}

// FetchMerged returns the NASDAQ-100 rows with price, percent change
// and market cap merged by symbol. Results are cached between calls;
// force bypasses the cache.
func (c *SlickChartsClient) FetchMerged(ctx context.Context, force bool) ([]*Quote, error) {
	if !force {
		if body, err := c.cache.Get(ctx, slickCacheKey); err == nil && body != nil {
			var cached []*Quote
			if json.Unmarshal(body, &cached) == nil && len(cached) >= slickMinUniverse {
				return cached, nil
			}
		}
	}

	comps, err := c.fetchComponents(ctx)
	if err != nil {
		return nil, err
	}
	caps, err := c.fetchMarketCaps(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Quote, 0, len(comps))
	for _, q := range comps {
		if capRow, ok := caps[q.Symbol]; ok {
			q.MarketCap = capRow.MarketCap
			q.MarketCapText = capRow.MarketCapText
			if q.Name == "" {
				q.Name = capRow.Name
			}
		}
		out = append(out, q)
	}

	if body, err := json.Marshal(out); err == nil {
		_ = c.cache.Put(ctx, slickCacheKey, body)
	}
	return out, nil
}

// fetchComponents scrapes /nasdaq100 for symbol, company, weight, price
// and change. When the percent column is missing the percent is derived
// from price and absolute change.
func (c *SlickChartsClient) fetchComponents(ctx context.Context) ([]*Quote, error) {
	page, err := c.fetch.GetText(ctx, slickCompanies, slickBase+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nasdaq100 components: %w", err)
	}

	table, err := bestTable(page, "Symbol", "Weight")
	if err != nil {
		return nil, err
	}

	symbolIdx := table.columnIndex("Symbol")
	companyIdx := table.columnIndex("Company")
	weightIdx := table.columnIndex("Weight")
	priceIdx := table.columnIndex("Price", "Last Price", "Last")
	chgIdx := table.columnIndex("Chg")
	pctIdx := table.columnIndex("% Chg", "%Chg", "Pct Chg", "Change %", "% Change", "Chg %")
	if symbolIdx < 0 {
		return nil, fmt.Errorf("%w: nasdaq100 components table has no symbol column", ErrTemporary)
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	seen := make(map[string]bool)
	var out []*Quote
	for _, row := range table.rows[1:] {
		symbol := strings.ToUpper(strings.TrimSpace(cell(row, symbolIdx)))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		q := &Quote{Symbol: symbol, Name: strings.TrimSpace(cell(row, companyIdx))}
		if q.Name == "" {
			q.Name = symbol
		}
		if v, ok := ParseNumber(cell(row, weightIdx)); ok {
			q.Weight = &v
		}
		if v, ok := ParseNumber(cell(row, priceIdx)); ok {
			q.Price = &v
		}

		chg, pct := ParseChangeCell(cell(row, chgIdx))
		q.Change = chg
		if v, ok := ParseNumber(cell(row, pctIdx)); ok {
			pct = &v
		}
		if pct == nil && chg != nil && q.Price != nil {
			prev := *q.Price - *chg
			if prev != 0 {
				v := *chg / prev * 100
				pct = &v
			}
		}
		q.ChangePct = pct

		out = append(out, q)
	}

	if len(out) < slickMinUniverse {
		return nil, fmt.Errorf("%w: only %d rows parsed from nasdaq100 components", ErrTemporary, len(out))
	}
	return out, nil
}

// fetchMarketCaps scrapes /nasdaq100/analysis for market caps by symbol.
func (c *SlickChartsClient) fetchMarketCaps(ctx context.Context) (map[string]*Quote, error) {
	page, err := c.fetch.GetText(ctx, slickAnalysis, slickCompanies)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nasdaq100 analysis: %w", err)
	}

	table, err := bestTable(page, "Symbol", "Market Cap")
	if err != nil {
		return nil, err
	}

	symbolIdx := table.columnIndex("Symbol")
	companyIdx := table.columnIndex("Company")
	mcapIdx := table.columnIndex("Market Cap", "MarketCap")
	if symbolIdx < 0 || mcapIdx < 0 {
		return nil, fmt.Errorf("%w: nasdaq100 analysis table missing columns", ErrTemporary)
	}

	out := make(map[string]*Quote)
	for _, row := range table.rows[1:] {
		if symbolIdx >= len(row) || mcapIdx >= len(row) {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(row[symbolIdx]))
		if symbol == "" {
			continue
		}

		q := &Quote{Symbol: symbol, MarketCapText: strings.TrimSpace(row[mcapIdx])}
		if companyIdx >= 0 && companyIdx < len(row) {
			q.Name = strings.TrimSpace(row[companyIdx])
		}
		if v, ok := ParseMarketCap(q.MarketCapText); ok {
			q.MarketCap = &v
		}
		out[symbol] = q
	}

	if len(out) < slickMinUniverse {
		return nil, fmt.Errorf("%w: only %d rows parsed from nasdaq100 analysis", ErrTemporary, len(out))
	}
	return out, nil
}

// bestTable picks the table whose header matches the most wanted columns.
func bestTable(page string, wantCols ...string) (*htmlTable, error) {
	tables, err := parseTables(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemporary, err)
	}

	var best *htmlTable
	bestScore := -1
	for _, t := range tables {
		if len(t.rows) < 2 {
			continue
		}
		score := 0
		for _, col := range wantCols {
			if t.columnIndex(col) >= 0 {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no table found", ErrTemporary)
	}
	return best, nil
}
