package market

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/store"
)

// rawConverter forwards argument values unconverted, so the []string
// argument of the deactivation update reaches the expectations.
type rawConverter struct{}

func (rawConverter) ConvertValue(v any) (driver.Value, error) {
	return driver.Value(v), nil
}

func kosdaqFixture() string {
	var b strings.Builder
	b.WriteString(`<html><body><table>`)
	b.WriteString(`<tr><th>N</th><th>종목명</th><th>현재가</th><th>등락률</th><th>거래량</th><th>거래대금</th><th>시가총액</th></tr>`)
	b.WriteString(`<tr><td>1</td><td><a href="/item/main.naver?code=247540">에코프로비엠</a></td><td>245,000</td><td>+0.80%</td><td>512,000</td><td>125,400</td><td>239,600</td></tr>`)
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func expectSnapshotBatch(mock sqlmock.Sqlmock, exchange string, symbols ...string) {
	mock.ExpectBegin()
	for i, sym := range symbols {
		mock.ExpectQuery("INSERT INTO stocks").
			WithArgs(store.MarketKR, sym, sqlmock.AnyArg(), "KRW", exchange).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
		mock.ExpectExec("INSERT INTO daily_stock_snapshots").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestSyncEOD_KRWritesEachExchangeInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(rawConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fetch := &fakeFetcher{pages: map[string]string{
		naverMarketSumURL(0, 1): naverFixture(),
		naverMarketSumURL(1, 1): kosdaqFixture(),
	}}
	syncer := NewSyncer(store.New(db, nil), NewNaverClient(fetch), nil, nil, nil)

	expectSnapshotBatch(mock, ExchangeKOSPI, "005930", "000660")
	expectSnapshotBatch(mock, ExchangeKOSDAQ, "247540")
	// The full KR universe was covered, so dropped constituents retire.
	mock.ExpectExec("UPDATE stocks SET is_active = FALSE").
		WithArgs(store.MarketKR, []string{"005930", "000660", "247540"}).
		WillReturnResult(sqlmock.NewResult(0, 2))

	target := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	res, err := syncer.SyncEOD(context.Background(), "KR", target)
	require.NoError(t, err)
	assert.Equal(t, "KR", res.Market)
	assert.Equal(t, 3, res.StocksUpserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncEOD_SingleExchangeSkipsDeactivation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(rawConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fetch := &fakeFetcher{pages: map[string]string{
		naverMarketSumURL(0, 1): naverFixture(),
	}}
	syncer := NewSyncer(store.New(db, nil), NewNaverClient(fetch), nil, nil, nil)

	// KOSPI alone is half the KR universe; no deactivation statement.
	expectSnapshotBatch(mock, ExchangeKOSPI, "005930", "000660")

	target := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	res, err := syncer.SyncEOD(context.Background(), "KOSPI", target)
	require.NoError(t, err)
	assert.Equal(t, 2, res.StocksUpserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFullUniverseMarket(t *testing.T) {
	assert.Equal(t, store.MarketKR, fullUniverseMarket("KR"))
	assert.Equal(t, store.MarketUS, fullUniverseMarket("US"))
	assert.Equal(t, store.MarketUS, fullUniverseMarket(ExchangeNASDAQ))
	assert.Empty(t, fullUniverseMarket(ExchangeKOSPI))
	assert.Empty(t, fullUniverseMarket(ExchangeKOSDAQ))
}
