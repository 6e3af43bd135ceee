package market

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/marketlens/marketlens/internal/store"
)

// rankingPerPage is how many rows each source board is asked for.
const rankingPerPage = 200

// boardRow is a source row normalized for ranking.
type boardRow struct {
	symbol    string
	name      string
	price     *float64
	normCR    *float64
	marketCap *int64
	payload   json.RawMessage
}

// NormalizeChangeRate converts a source change rate into percent points.
// The Daum API mixes ratio (0.1419) and percent (14.19) encodings, so
// small KR magnitudes are scaled up. SlickCharts rates are already
// percent and keep their sign.
func NormalizeChangeRate(exchange string, raw float64) float64 {
	if exchange == ExchangeKOSPI || exchange == ExchangeKOSDAQ {
		if math.Abs(raw) <= 1.5 {
			return raw * 100
		}
	}
	return raw
}

// RankSyncer rebuilds the daily ranking boards.
type RankSyncer struct {
	store  *store.Store
	daum   *DaumClient
	slick  *SlickChartsClient
	logger *slog.Logger
}

// NewRankSyncer wires the board sources to the store.
func NewRankSyncer(st *store.Store, daum *DaumClient, slick *SlickChartsClient, logger *slog.Logger) *RankSyncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RankSyncer{store: st, daum: daum, slick: slick, logger: logger}
}

// SyncDaily replaces every ranking board for asof. KR boards come from
// Daum per exchange; the NASDAQ boards come from the merged SlickCharts
// universe. A NASDAQ source failure skips those boards instead of
// failing the whole run.
func (rs *RankSyncer) SyncDaily(ctx context.Context, asof time.Time) (map[string]int, error) {
	results := make(map[string]int)

	for _, exchange := range []string{ExchangeKOSPI, ExchangeKOSDAQ} {
		capRows, err := rs.daum.MarketCapBoard(ctx, exchange, rankingPerPage)
		if err != nil {
			return results, err
		}
		n, err := rs.replace(ctx, asof, exchange, store.RankingMarketCap, daumBoardRows(exchange, capRows))
		if err != nil {
			return results, err
		}
		results[exchange+".MARKET_CAP"] = n

		riseRows, err := rs.daum.PriceBoard(ctx, exchange, RankRise, rankingPerPage)
		if err != nil {
			return results, err
		}
		n, err = rs.replace(ctx, asof, exchange, store.RankingRise, daumBoardRows(exchange, riseRows))
		if err != nil {
			return results, err
		}
		results[exchange+".RISE"] = n

		fallRows, err := rs.daum.PriceBoard(ctx, exchange, RankFall, rankingPerPage)
		if err != nil {
			return results, err
		}
		n, err = rs.replace(ctx, asof, exchange, store.RankingFall, daumBoardRows(exchange, fallRows))
		if err != nil {
			return results, err
		}
		results[exchange+".FALL"] = n
	}

	quotes, err := rs.slick.FetchMerged(ctx, false)
	if err != nil {
		rs.logger.Warn("nasdaq ranking sync skipped", slog.String("error", err.Error()))
		results[ExchangeNASDAQ+".ERROR"] = 0
		return results, nil
	}

	rows := quoteBoardRows(quotes)
	for _, typ := range []store.RankingType{store.RankingMarketCap, store.RankingRise, store.RankingFall} {
		n, err := rs.replace(ctx, asof, ExchangeNASDAQ, typ, rows)
		if err != nil {
			return results, err
		}
		results[ExchangeNASDAQ+"."+string(typ)] = n
	}
	return results, nil
}

// replace filters, sorts and writes one board.
func (rs *RankSyncer) replace(ctx context.Context, asof time.Time, exchange string, typ store.RankingType, rows []*boardRow) (int, error) {
	rows = filterBoard(exchange, typ, rows)
	sortBoard(typ, rows)

	entries := make([]*store.RankingEntry, 0, len(rows))
	for _, r := range rows {
		if r.symbol == "" || r.name == "" {
			continue
		}
		entries = append(entries, &store.RankingEntry{
			Symbol:     r.symbol,
			Name:       r.name,
			Price:      r.price,
			ChangeRate: r.normCR,
			MarketCap:  r.marketCap,
			Payload:    r.payload,
		})
	}

	if err := rs.store.ReplaceRanking(ctx, asof, exchange, typ, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// filterBoard drops NASDAQ rows on the wrong side of zero for rise and
// fall boards. The Daum boards are already split by direction upstream.
func filterBoard(exchange string, typ store.RankingType, rows []*boardRow) []*boardRow {
	if exchange != ExchangeNASDAQ {
		return rows
	}

	switch typ {
	case store.RankingRise:
		out := make([]*boardRow, 0, len(rows))
		for _, r := range rows {
			if r.normCR != nil && *r.normCR > 0 {
				out = append(out, r)
			}
		}
		return out
	case store.RankingFall:
		out := make([]*boardRow, 0, len(rows))
		for _, r := range rows {
			if r.normCR != nil && *r.normCR < 0 {
				out = append(out, r)
			}
		}
		return out
	}
	return rows
}

// sortBoard orders rows for ranking, missing values last.
func sortBoard(typ store.RankingType, rows []*boardRow) {
	switch typ {
	case store.RankingMarketCap:
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].marketCap, rows[j].marketCap
			if (a == nil) != (b == nil) {
				return b == nil
			}
			if a == nil {
				return false
			}
			return *a > *b
		})
	case store.RankingRise:
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].normCR, rows[j].normCR
			if (a == nil) != (b == nil) {
				return b == nil
			}
			if a == nil {
				return false
			}
			return *a > *b
		})
	case store.RankingFall:
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].normCR, rows[j].normCR
			if (a == nil) != (b == nil) {
				return b == nil
			}
			if a == nil {
				return false
			}
			return *a < *b
		})
	}
}

// daumBoardRows converts Daum API rows, normalizing change rates to
// percent points.
func daumBoardRows(exchange string, rows []DaumRow) []*boardRow {
	out := make([]*boardRow, 0, len(rows))
	for _, r := range rows {
		br := &boardRow{
			symbol: r.Symbol(),
			name:   r.Name(),
			price:  r.Float("tradePrice"),
		}
		if cr := r.Float("changeRate"); cr != nil {
			v := NormalizeChangeRate(exchange, *cr)
			br.normCR = &v
		}
		if mc := r.Float("marketCap"); mc != nil {
			v := int64(*mc)
			br.marketCap = &v
		}
		if payload, err := json.Marshal(r); err == nil {
			br.payload = payload
		}
		out = append(out, br)
	}
	return out
}

// quoteBoardRows converts merged SlickCharts quotes into board rows.
func quoteBoardRows(quotes []*Quote) []*boardRow {
	out := make([]*boardRow, 0, len(quotes))
	for _, q := range quotes {
		br := &boardRow{
			symbol:    q.Symbol,
			name:      q.Name,
			price:     q.Price,
			normCR:    q.ChangePct,
			marketCap: q.MarketCap,
		}

		display := q.MarketCapText
		if display == "" && q.MarketCap != nil {
			display = FormatMarketCap(*q.MarketCap)
		}
		payload := map[string]any{
			"symbolCode":       q.Symbol,
			"name":             q.Name,
			"tradePrice":       q.Price,
			"change":           q.Change,
			"changeRate":       q.ChangePct,
			"weight":           q.Weight,
			"marketCap":        q.MarketCap,
			"marketCapDisplay": display,
			"source":           "slickcharts",
		}
		if b, err := json.Marshal(payload); err == nil {
			br.payload = b
		}
		out = append(out, br)
	}
	return out
}
