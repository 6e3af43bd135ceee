package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	naverBase = "https://finance.naver.com"

	// Universe size for both KR exchanges and the NASDAQ-100.
	UniverseN = 100
)

// Exchange names. KOSPI and KOSDAQ are the KR market, NASDAQ is the US one.
const (
	ExchangeKOSPI  = "KOSPI"
	ExchangeKOSDAQ = "KOSDAQ"
	ExchangeNASDAQ = "NASDAQ"
)

// Quote is one scraped universe row.
type Quote struct {
	Symbol        string
	Name          string
	Price         *float64
	Change        *float64
	ChangePct     *float64
	Volume        *int64
	MarketCap     *int64
	TradedValue   *int64
	Weight        *float64
	MarketCapText string
}

// NaverClient scrapes the Naver finance market cap pages for the KR
// top-100 universe.
type NaverClient struct {
	fetch Fetcher
}

// NewNaverClient wraps a fetcher.
func NewNaverClient(fetch Fetcher) *NaverClient {
	return &NaverClient{fetch: fetch}
}

func naverMarketSumURL(sosok int, page int) string {
	return fmt.Sprintf("%s/sise/sise_market_sum.naver?sosok=%d&sort=market_sum&asc=0&page=%d", naverBase, sosok, page)
}

// FetchTop100 scrapes the top-100 by market cap for one KR exchange.
// Market caps come in units of 100M KRW and traded value in 1M KRW;
// both are converted to absolute KRW.
func (c *NaverClient) FetchTop100(ctx context.Context, exchange string) ([]*Quote, error) {
	sosok := 0
	if exchange == ExchangeKOSDAQ {
		sosok = 1
	}

	page, err := c.fetch.GetTextEUCKR(ctx, naverMarketSumURL(sosok, 1), naverBase)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s universe: %w", exchange, err)
	}

	tables, err := parseTables(page)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s universe page: %w", exchange, err)
	}

	var table *htmlTable
	for _, t := range tables {
		header := strings.Join(t.header(), " ")
		if strings.Contains(header, "종목") && strings.Contains(header, "시가총액") {
			table = t
			break
		}
	}
	if table == nil || len(table.rows) < 2 {
		return nil, nil
	}

	nameIdx := table.columnIndex("종목명", "종목")
	closeIdx := table.columnIndex("현재가")
	chgIdx := table.columnIndex("등락률", "등락율")
	volIdx := table.columnIndex("거래량")
	amountIdx := table.columnIndex("거래대금")
	mcapIdx := table.columnIndex("시가총액")
	if nameIdx < 0 || mcapIdx < 0 {
		return nil, nil
	}

	codeMap := extractCodeMap(page)

	const (
		mcapMul   = 100_000_000 // 억원 to KRW
		amountMul = 1_000_000   // 백만 to KRW
	)

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var out []*Quote
	for _, row := range table.rows[1:] {
		name := strings.TrimSpace(cell(row, nameIdx))
		if name == "" {
			continue
		}
		code, ok := codeMap[name]
		if !ok {
			continue
		}

		q := &Quote{Symbol: code, Name: name}
		if v, ok := ParseNumber(cell(row, closeIdx)); ok {
			q.Price = &v
		}
		if v, ok := ParseNumber(cell(row, chgIdx)); ok {
			q.ChangePct = &v
		}
		if v, ok := ParseInt(cell(row, volIdx)); ok {
			q.Volume = &v
		}
		if v, ok := ParseInt(cell(row, mcapIdx)); ok {
			mc := v * mcapMul
			q.MarketCap = &mc
		}
		if v, ok := ParseInt(cell(row, amountIdx)); ok {
			tv := v * amountMul
			q.TradedValue = &tv
		}

		out = append(out, q)
		if len(out) >= UniverseN {
			break
		}
	}
	return out, nil
}

// LatestTradingDate reads the newest date on a stock's daily price page.
// Used to pin the as-of date of an end-of-day sync.
func (c *NaverClient) LatestTradingDate(ctx context.Context, code string) (time.Time, error) {
	url := fmt.Sprintf("%s/item/sise_day.nhn?code=%s&page=1", naverBase, code)
	page, err := c.fetch.GetTextEUCKR(ctx, url, naverBase)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch daily prices: %w", err)
	}

	tables, err := parseTables(page)
	if err != nil || len(tables) == 0 {
		return time.Time{}, fmt.Errorf("no daily price table for %s", code)
	}

	table := tables[0]
	dateIdx := table.columnIndex("날짜")
	if dateIdx < 0 {
		return time.Time{}, fmt.Errorf("no date column for %s", code)
	}

	for _, row := range table.rows[1:] {
		if dateIdx >= len(row) {
			continue
		}
		if d, err := time.Parse("2006.01.02", strings.TrimSpace(row[dateIdx])); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("no parseable date for %s", code)
}
