package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned bodies by URL, ignoring query params on
// JSON endpoints so tests key on the path alone.
type fakeFetcher struct {
	pages map[string]string
	json  map[string]string
}

func (f *fakeFetcher) GetText(_ context.Context, rawURL, _ string) (string, error) {
	if body, ok := f.pages[rawURL]; ok {
		return body, nil
	}
	return "", fmt.Errorf("no fixture for %s", rawURL)
}

func (f *fakeFetcher) GetTextEUCKR(ctx context.Context, rawURL, referer string) (string, error) {
	return f.GetText(ctx, rawURL, referer)
}

func (f *fakeFetcher) GetJSON(_ context.Context, rawURL string, _ url.Values, _ string) ([]byte, error) {
	for prefix, body := range f.json {
		if strings.HasPrefix(rawURL, prefix) {
			return []byte(body), nil
		}
	}
	return nil, fmt.Errorf("no fixture for %s", rawURL)
}

func naverFixture() string {
	var b strings.Builder
	b.WriteString(`<html><body><table>`)
	b.WriteString(`<tr><th>N</th><th>종목명</th><th>현재가</th><th>등락률</th><th>거래량</th><th>거래대금</th><th>시가총액</th></tr>`)
	b.WriteString(`<tr><td>1</td><td><a href="/item/main.naver?code=005930">삼성전자</a></td><td>71,000</td><td>+1.25%</td><td>12,345,678</td><td>874,512</td><td>4,238,000</td></tr>`)
	b.WriteString(`<tr><td>2</td><td><a href="/item/main.naver?code=000660">SK하이닉스</a></td><td>132,500</td><td>-2.10%</td><td>3,210,000</td><td>421,900</td><td>964,500</td></tr>`)
	b.WriteString(`<tr><td>3</td><td>코드없는종목</td><td>9,990</td><td>0.00%</td><td>1</td><td>1</td><td>100</td></tr>`)
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func TestNaverFetchTop100(t *testing.T) {
	fetch := &fakeFetcher{pages: map[string]string{
		naverMarketSumURL(0, 1): naverFixture(),
	}}

	quotes, err := NewNaverClient(fetch).FetchTop100(context.Background(), ExchangeKOSPI)
	require.NoError(t, err)
	require.Len(t, quotes, 2, "rows without a stock code link are dropped")

	q := quotes[0]
	assert.Equal(t, "005930", q.Symbol)
	assert.Equal(t, "삼성전자", q.Name)
	require.NotNil(t, q.Price)
	assert.InDelta(t, 71000, *q.Price, 1e-9)
	require.NotNil(t, q.ChangePct)
	assert.InDelta(t, 1.25, *q.ChangePct, 1e-9)
	require.NotNil(t, q.Volume)
	assert.Equal(t, int64(12_345_678), *q.Volume)
	require.NotNil(t, q.MarketCap)
	assert.Equal(t, int64(4_238_000)*100_000_000, *q.MarketCap)
	require.NotNil(t, q.TradedValue)
	assert.Equal(t, int64(874_512)*1_000_000, *q.TradedValue)

	require.NotNil(t, quotes[1].ChangePct)
	assert.InDelta(t, -2.10, *quotes[1].ChangePct, 1e-9)
}

func TestNaverLatestTradingDate(t *testing.T) {
	page := `<html><body><table>
<tr><th>날짜</th><th>종가</th></tr>
<tr><td>2026.08.28</td><td>71,000</td></tr>
<tr><td>2026.08.27</td><td>70,100</td></tr>
</table></body></html>`
	fetch := &fakeFetcher{pages: map[string]string{
		naverBase + "/item/sise_day.nhn?code=005930&page=1": page,
	}}

	d, err := NewNaverClient(fetch).LatestTradingDate(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", d.Format("2006-01-02"))
}

func slickFixtures(rows int) (components, analysis string) {
	var comp, anal strings.Builder
	comp.WriteString(`<table><tr><th>#</th><th>Company</th><th>Symbol</th><th>Weight</th><th>Price</th><th>Chg</th></tr>`)
	anal.WriteString(`<table><tr><th>#</th><th>Company</th><th>Symbol</th><th>Market Cap</th></tr>`)
	for i := 1; i <= rows; i++ {
		sym := fmt.Sprintf("SYM%02d", i)
		comp.WriteString(fmt.Sprintf(
			`<tr><td>%d</td><td>Company %d</td><td>%s</td><td>%.2f</td><td>100.00</td><td>-0.50(-0.50%%)</td></tr>`,
			i, i, sym, 10.0/float64(i)))
		anal.WriteString(fmt.Sprintf(
			`<tr><td>%d</td><td>Company %d</td><td>%s</td><td>%.2fB</td></tr>`, i, i, sym, float64(1000-i)))
	}
	comp.WriteString(`</table>`)
	anal.WriteString(`</table>`)
	return comp.String(), anal.String()
}

func TestSlickChartsFetchMerged(t *testing.T) {
	comp, anal := slickFixtures(85)
	fetch := &fakeFetcher{pages: map[string]string{
		slickCompanies: comp,
		slickAnalysis:  anal,
	}}

	quotes, err := NewSlickChartsClient(fetch, nil).FetchMerged(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, quotes, 85)

	q := quotes[0]
	assert.Equal(t, "SYM01", q.Symbol)
	assert.Equal(t, "Company 1", q.Name)
	require.NotNil(t, q.Price)
	assert.InDelta(t, 100.0, *q.Price, 1e-9)
	require.NotNil(t, q.Change)
	assert.InDelta(t, -0.50, *q.Change, 1e-9)
	require.NotNil(t, q.ChangePct)
	assert.InDelta(t, -0.50, *q.ChangePct, 1e-9)
	require.NotNil(t, q.MarketCap)
	assert.Equal(t, int64(999_000_000_000), *q.MarketCap)
	assert.Equal(t, "999.00B", q.MarketCapText)
}

func TestSlickChartsFetchMerged_TruncatedIsTemporary(t *testing.T) {
	comp, anal := slickFixtures(40)
	fetch := &fakeFetcher{pages: map[string]string{
		slickCompanies: comp,
		slickAnalysis:  anal,
	}}

	_, err := NewSlickChartsClient(fetch, nil).FetchMerged(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemporary)
}

func TestDaumPriceBoard_SignCoercion(t *testing.T) {
	fetch := &fakeFetcher{json: map[string]string{
		daumBase: `{"data":[
			{"symbolCode":"A005930","name":"삼성전자","tradePrice":71000,"changeRate":0.0125},
			{"symbolCode":"A000660","name":"SK하이닉스","tradePrice":132500,"changeRate":-0.021}
		]}`,
	}}
	client := NewDaumClient(fetch)

	rows, err := client.PriceBoard(context.Background(), ExchangeKOSPI, RankFall, 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		cr := r.Float("changeRate")
		require.NotNil(t, cr)
		assert.LessOrEqual(t, *cr, 0.0, "fall board rates are forced negative")
	}

	rows, err = client.PriceBoard(context.Background(), ExchangeKOSPI, RankRise, 200)
	require.NoError(t, err)
	for _, r := range rows {
		cr := r.Float("changeRate")
		require.NotNil(t, cr)
		assert.GreaterOrEqual(t, *cr, 0.0, "rise board rates are forced positive")
	}
}

func TestYahooLatestCloseAndDate(t *testing.T) {
	// 2026-08-28 16:00 America/New_York is 1787947200 UTC.
	fetch := &fakeFetcher{json: map[string]string{
		yahooChartURL: `{"chart":{"result":[{"timestamp":[1787860800,1787947200],
			"indicators":{"quote":[{"close":[23100.5,23250.75],"volume":[1000,2000]}]}}]}}`,
	}}
	client := NewYahooClient(fetch)

	date, closePx, err := client.LatestCloseAndDate(context.Background(), "^IXIC")
	require.NoError(t, err)
	require.NotNil(t, closePx)
	assert.InDelta(t, 23250.75, *closePx, 1e-9)
	assert.Equal(t, "2026-08-28", date.Format("2006-01-02"))
}

func TestYahooLatestVolume_SkipsTrailingNil(t *testing.T) {
	fetch := &fakeFetcher{json: map[string]string{
		yahooChartURL: `{"chart":{"result":[{"timestamp":[1,2,3],
			"indicators":{"quote":[{"close":[1.0,2.0,null],"volume":[100,250,null]}]}}]}}`,
	}}
	client := NewYahooClient(fetch)

	vol, err := client.LatestVolume(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, vol)
	assert.Equal(t, int64(250), *vol)
}
