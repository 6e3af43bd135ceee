package market

import (
	"testing"

	"github.com/marketlens/marketlens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChangeRate(t *testing.T) {
	tests := []struct {
		exchange string
		raw      float64
		want     float64
	}{
		{ExchangeKOSPI, 0.1419, 14.19},
		{ExchangeKOSDAQ, -0.0312, -3.12},
		{ExchangeKOSPI, 14.19, 14.19},
		{ExchangeKOSPI, 1.5, 150},
		{ExchangeNASDAQ, 0.85, 0.85},
		{ExchangeNASDAQ, -2.4, -2.4},
	}
	for _, tt := range tests {
		got := NormalizeChangeRate(tt.exchange, tt.raw)
		assert.InDelta(t, tt.want, got, 1e-9, "%s raw=%v", tt.exchange, tt.raw)
	}
}

func TestFilterBoard_NasdaqDirection(t *testing.T) {
	rows := []*boardRow{
		{symbol: "AAPL", normCR: f(1.2)},
		{symbol: "MSFT", normCR: f(-0.4)},
		{symbol: "NVDA", normCR: nil},
		{symbol: "AMZN", normCR: f(3.1)},
	}

	rise := filterBoard(ExchangeNASDAQ, store.RankingRise, rows)
	require.Len(t, rise, 2)
	assert.Equal(t, "AAPL", rise[0].symbol)
	assert.Equal(t, "AMZN", rise[1].symbol)

	fall := filterBoard(ExchangeNASDAQ, store.RankingFall, rows)
	require.Len(t, fall, 1)
	assert.Equal(t, "MSFT", fall[0].symbol)

	// KR boards arrive pre-split and pass through untouched.
	assert.Len(t, filterBoard(ExchangeKOSPI, store.RankingRise, rows), 4)
}

func TestSortBoard(t *testing.T) {
	mc := func(v int64) *int64 { return &v }

	rows := []*boardRow{
		{symbol: "B", marketCap: mc(200), normCR: f(-1)},
		{symbol: "A", marketCap: mc(500), normCR: f(3)},
		{symbol: "C", marketCap: nil, normCR: nil},
		{symbol: "D", marketCap: mc(350), normCR: f(-5)},
	}

	sortBoard(store.RankingMarketCap, rows)
	assert.Equal(t, []string{"A", "D", "B", "C"}, symbols(rows))

	sortBoard(store.RankingRise, rows)
	assert.Equal(t, []string{"A", "B", "D", "C"}, symbols(rows))

	sortBoard(store.RankingFall, rows)
	assert.Equal(t, []string{"D", "B", "A", "C"}, symbols(rows))
}

func TestDaumBoardRows(t *testing.T) {
	rows := daumBoardRows(ExchangeKOSPI, []DaumRow{
		{"symbolCode": "A005930", "name": "삼성전자", "tradePrice": 71000.0, "changeRate": 0.0125, "marketCap": 4.2e14},
		{"symbolCode": "A000660", "name": "SK하이닉스", "tradePrice": 132000.0, "changeRate": -0.021},
	})
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].normCR)
	assert.InDelta(t, 1.25, *rows[0].normCR, 1e-9)
	require.NotNil(t, rows[0].marketCap)
	assert.Equal(t, int64(4.2e14), *rows[0].marketCap)
	assert.NotEmpty(t, rows[0].payload)

	require.NotNil(t, rows[1].normCR)
	assert.InDelta(t, -2.1, *rows[1].normCR, 1e-9)
	assert.Nil(t, rows[1].marketCap)
}

func symbols(rows []*boardRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.symbol
	}
	return out
}
