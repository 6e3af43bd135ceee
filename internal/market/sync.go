package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketlens/marketlens/internal/store"
)

// volumeFetchConcurrency bounds parallel Yahoo volume lookups.
const volumeFetchConcurrency = 4

// SyncResult summarizes one universe sync.
type SyncResult struct {
	Market         string
	AsOf           time.Time
	StocksUpserted int

	// symbols written by the end-of-day pass, used to retire
	// constituents that fell out of the universe.
	symbols []string
}

// Syncer pulls the KR and US universes into daily snapshots.
type Syncer struct {
	store  *store.Store
	naver  *NaverClient
	slick  *SlickChartsClient
	yahoo  *YahooClient
	logger *slog.Logger
}

// NewSyncer wires the scrapers to the store.
func NewSyncer(st *store.Store, naver *NaverClient, slick *SlickChartsClient, yahoo *YahooClient, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{store: st, naver: naver, slick: slick, yahoo: yahoo, logger: logger}
}

// resolveExchanges expands a market argument into concrete exchanges.
func resolveExchanges(market string) ([]string, error) {
	switch strings.ToUpper(strings.TrimSpace(market)) {
	case ExchangeKOSPI:
		return []string{ExchangeKOSPI}, nil
	case ExchangeKOSDAQ, "":
		return []string{ExchangeKOSDAQ}, nil
	case ExchangeNASDAQ:
		return []string{ExchangeNASDAQ}, nil
	case "KR":
		return []string{ExchangeKOSPI, ExchangeKOSDAQ}, nil
	case "US":
		return []string{ExchangeNASDAQ}, nil
	default:
		return nil, fmt.Errorf("market must be KOSPI, KOSDAQ, NASDAQ, KR, US")
	}
}

// fullUniverseMarket maps a market argument that covers every exchange
// of a universe to that universe. Single-exchange arguments return "".
func fullUniverseMarket(arg string) store.Market {
	switch arg {
	case "KR":
		return store.MarketKR
	case "US", ExchangeNASDAQ:
		return store.MarketUS
	}
	return ""
}

// SyncEOD runs an end-of-day universe sync for a market argument
// (KOSPI, KOSDAQ, NASDAQ, KR, US). When the argument covers a whole
// universe, stocks that dropped out of it are marked inactive.
func (s *Syncer) SyncEOD(ctx context.Context, market string, target time.Time) (*SyncResult, error) {
	exchanges, err := resolveExchanges(market)
	if err != nil {
		return nil, err
	}

	arg := strings.ToUpper(strings.TrimSpace(market))
	total := &SyncResult{Market: arg}
	var seen []string
	for _, exchange := range exchanges {
		var res *SyncResult
		if exchange == ExchangeNASDAQ {
			res, err = s.syncNasdaqEOD(ctx, target)
		} else {
			res, err = s.syncKREOD(ctx, exchange, target)
		}
		if err != nil {
			return nil, err
		}
		total.StocksUpserted += res.StocksUpserted
		seen = append(seen, res.symbols...)
		if res.AsOf.After(total.AsOf) {
			total.AsOf = res.AsOf
		}
	}

	if universe := fullUniverseMarket(arg); universe != "" {
		dropped, err := s.store.DeactivateExcept(ctx, universe, seen)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			s.logger.Info("retired dropped constituents",
				slog.String("market", string(universe)),
				slog.Int64("count", dropped))
		}
	}
	return total, nil
}

// SyncIntraday refreshes the latest snapshots with live prices.
func (s *Syncer) SyncIntraday(ctx context.Context, market string, target time.Time) (*SyncResult, error) {
	exchanges, err := resolveExchanges(market)
	if err != nil {
		return nil, err
	}

	total := &SyncResult{Market: strings.ToUpper(strings.TrimSpace(market))}
	for _, exchange := range exchanges {
		var res *SyncResult
		if exchange == ExchangeNASDAQ {
			res, err = s.syncNasdaqIntraday(ctx, target)
		} else {
			res, err = s.syncKRIntraday(ctx, exchange, target)
		}
		if err != nil {
			return nil, err
		}
		total.StocksUpserted += res.StocksUpserted
		if res.AsOf.After(total.AsOf) {
			total.AsOf = res.AsOf
		}
	}
	return total, nil
}

func (s *Syncer) syncKREOD(ctx context.Context, exchange string, target time.Time) (*SyncResult, error) {
	rows, err := s.naver.FetchTop100(ctx, exchange)
	if err != nil {
		return nil, err
	}

	// Pin the as-of date from a representative symbol's daily page. The
	// scrape can run after midnight for the prior session.
	asof := target
	if len(rows) > 0 {
		if d, err := s.naver.LatestTradingDate(ctx, rows[0].Symbol); err == nil {
			asof = d
		}
	}

	n, syms, err := s.persistEOD(ctx, store.MarketKR, exchange, "KRW", asof, rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("eod sync done",
		slog.String("exchange", exchange),
		slog.Time("asof", asof),
		slog.Int("upserted", n))
	return &SyncResult{Market: exchange, AsOf: asof, StocksUpserted: n, symbols: syms}, nil
}

func (s *Syncer) syncKRIntraday(ctx context.Context, exchange string, target time.Time) (*SyncResult, error) {
	asof, err := s.store.LatestSnapshotDate(ctx, exchange, target)
	if err != nil {
		return nil, err
	}

	rows, err := s.naver.FetchTop100(ctx, exchange)
	if err != nil {
		return nil, err
	}

	n, err := s.persistIntraday(ctx, store.MarketKR, exchange, "KRW", asof, rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("intraday sync done",
		slog.String("exchange", exchange),
		slog.Time("asof", asof),
		slog.Int("upserted", n))
	return &SyncResult{Market: exchange, AsOf: asof, StocksUpserted: n}, nil
}

func (s *Syncer) syncNasdaqEOD(ctx context.Context, target time.Time) (*SyncResult, error) {
	asof := s.nasdaqAsOf(ctx, target)

	rows, err := s.slick.FetchMerged(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := s.fillVolumes(ctx, rows); err != nil {
		return nil, err
	}

	n, syms, err := s.persistEOD(ctx, store.MarketUS, ExchangeNASDAQ, "USD", asof, rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("eod sync done",
		slog.String("exchange", ExchangeNASDAQ),
		slog.Time("asof", asof),
		slog.Int("upserted", n))
	return &SyncResult{Market: ExchangeNASDAQ, AsOf: asof, StocksUpserted: n, symbols: syms}, nil
}

func (s *Syncer) syncNasdaqIntraday(ctx context.Context, target time.Time) (*SyncResult, error) {
	asof := s.nasdaqAsOf(ctx, target)

	rows, err := s.slick.FetchMerged(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := s.fillVolumes(ctx, rows); err != nil {
		return nil, err
	}

	n, err := s.persistIntraday(ctx, store.MarketUS, ExchangeNASDAQ, "USD", asof, rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("intraday sync done",
		slog.String("exchange", ExchangeNASDAQ),
		slog.Time("asof", asof),
		slog.Int("upserted", n))
	return &SyncResult{Market: ExchangeNASDAQ, AsOf: asof, StocksUpserted: n}, nil
}

// nasdaqAsOf derives the US trading date from the composite index.
func (s *Syncer) nasdaqAsOf(ctx context.Context, target time.Time) time.Time {
	if d, _, err := s.yahoo.LatestCloseAndDate(ctx, "^IXIC"); err == nil {
		return d
	}
	return target
}

// fillVolumes looks up the latest session volume for each symbol.
// Failures leave the volume empty rather than failing the sync.
func (s *Syncer) fillVolumes(ctx context.Context, rows []*Quote) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(volumeFetchConcurrency)

	for _, q := range rows {
		q := q
		g.Go(func() error {
			vol, err := s.yahoo.LatestVolume(gctx, q.Symbol)
			if err != nil {
				s.logger.Debug("volume lookup failed", slog.String("symbol", q.Symbol))
				return nil
			}
			q.Volume = vol
			return nil
		})
	}
	return g.Wait()
}

// persistEOD writes one exchange's end-of-day rows in one transaction,
// so readers never see a half-written universe.
func (s *Syncer) persistEOD(ctx context.Context, market store.Market, exchange, currency string, asof time.Time, rows []*Quote) (int, []string, error) {
	batch := make([]*store.SnapshotRow, 0, len(rows))
	symbols := make([]string, 0, len(rows))
	for _, q := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
		if symbol == "" {
			continue
		}
		symbols = append(symbols, symbol)
		batch = append(batch, &store.SnapshotRow{
			Stock: newStock(market, exchange, currency, symbol, q.Name),
			Snapshot: &store.DailySnapshot{
				Date:      asof,
				Close:     q.Price,
				ChangePct: q.ChangePct,
				MarketCap: q.MarketCap,
				Volume:    q.Volume,
			},
		})
	}

	n, err := s.store.UpsertSnapshotBatch(ctx, batch)
	if err != nil {
		s.logger.Warn("eod persist failed", slog.String("exchange", exchange))
		return 0, nil, err
	}
	return n, symbols, nil
}

// persistIntraday writes one exchange's live rows in one transaction.
func (s *Syncer) persistIntraday(ctx context.Context, market store.Market, exchange, currency string, asof time.Time, rows []*Quote) (int, error) {
	prevMap, err := s.store.PrevCloseMap(ctx, exchange, asof)
	if err != nil {
		return 0, err
	}

	batch := make([]*store.SnapshotRow, 0, len(rows))
	for _, q := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
		if symbol == "" {
			continue
		}

		var prevClose *float64
		if v, ok := prevMap[symbol]; ok {
			prevClose = &v
		}

		intradayPct := PctFromPrev(prevClose, q.Price)
		if intradayPct == nil {
			intradayPct = q.ChangePct
		}

		batch = append(batch, &store.SnapshotRow{
			Stock: newStock(market, exchange, currency, symbol, q.Name),
			Snapshot: &store.DailySnapshot{
				Date:        asof,
				Close:       q.Price,
				PrevClose:   prevClose,
				IntradayPct: intradayPct,
				ChangePct:   intradayPct,
				MarketCap:   q.MarketCap,
				Volume:      q.Volume,
			},
		})
	}

	n, err := s.store.UpsertSnapshotBatch(ctx, batch)
	if err != nil {
		s.logger.Warn("intraday persist failed", slog.String("exchange", exchange))
		return 0, err
	}
	return n, nil
}

func newStock(market store.Market, exchange, currency, symbol, name string) *store.Stock {
	if name == "" {
		name = symbol
	}
	return &store.Stock{
		Market:   market,
		Symbol:   symbol,
		Name:     name,
		Currency: currency,
		Exchange: exchange,
	}
}
