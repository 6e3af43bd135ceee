package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/store"
)

// syncGraceMin are the session grace windows used to gate scheduled
// syncs when --force is not given.
const (
	syncPreGraceMin  = 5
	syncPostGraceMin = 10
)

// NewSyncCommand creates the sync command group.
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync market snapshots and ranking boards",
		Long: `Sync market data from the scraping sources into Postgres.

eod and intraday are gated on the market calendar: outside the trading
session (plus a small grace window) holidays and weekends are skipped
unless --force is given.`,
	}

	cmd.AddCommand(newSyncSnapshotCommand("eod",
		"Sync end-of-day snapshots",
		func(ctx context.Context, s *market.Syncer, mkt string, target time.Time) (*market.SyncResult, error) {
			return s.SyncEOD(ctx, mkt, target)
		}))
	cmd.AddCommand(newSyncSnapshotCommand("intraday",
		"Refresh snapshots with live prices",
		func(ctx context.Context, s *market.Syncer, mkt string, target time.Time) (*market.SyncResult, error) {
			return s.SyncIntraday(ctx, mkt, target)
		}))
	cmd.AddCommand(newSyncRankingsCommand())

	return cmd
}

func newSyncSnapshotCommand(use, short string, run func(context.Context, *market.Syncer, string, time.Time) (*market.SyncResult, error)) *cobra.Command {
	var (
		marketFlag string
		dateFlag   string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Example: fmt.Sprintf(`  # Korean exchanges, today
  marketlens sync %[1]s --market KR

  # NASDAQ for a specific date, ignoring the calendar gate
  marketlens sync %[1]s --market US --date 2026-08-28 --force`, use),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			target, err := parseDateFlag(dateFlag)
			if err != nil {
				return err
			}

			ok, reason, err := shouldSync(marketFlag, force)
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sync skipped: %s\n", reason)
				return nil
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			syncer, closeCache, err := newSyncer(st, cfg, logger)
			if err != nil {
				return err
			}
			defer closeCache()

			res, err := run(ctx, syncer, marketFlag, target)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Market", "AsOf", "Stocks"})
			t.AppendRow(table.Row{res.Market, res.AsOf.Format("2006-01-02"), res.StocksUpserted})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&marketFlag, "market", "KR", "Market to sync (KR|US|KOSPI|KOSDAQ|NASDAQ)")
	cmd.Flags().StringVar(&dateFlag, "date", "", "Snapshot date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&force, "force", false, "Run even outside the trading session")
	return cmd
}

func newSyncRankingsCommand() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Rebuild the daily ranking boards",
		Long: `Rebuild the market cap, gainer and drawdown boards for KOSPI,
KOSDAQ and NASDAQ from the scraping sources.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			asof, err := parseDateFlag(dateFlag)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			fetch := newFetcher(cfg)
			cache, err := market.OpenPageCache(cfg.Crawler.CachePath, cfg.Crawler.CacheTTL)
			if err != nil {
				return err
			}
			defer func() {
				if cache != nil {
					_ = cache.Close()
				}
			}()

			rs := market.NewRankSyncer(st,
				market.NewDaumClient(fetch),
				market.NewSlickChartsClient(fetch, cache),
				logger)
			counts, err := rs.SyncDaily(ctx, asof)
			if err != nil {
				return err
			}

			boards := make([]string, 0, len(counts))
			for board := range counts {
				boards = append(boards, board)
			}
			sort.Strings(boards)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Board", "Rows"})
			for _, board := range boards {
				t.AppendRow(table.Row{board, counts[board]})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Board date YYYY-MM-DD (default today)")
	return cmd
}

// shouldSync gates scheduled syncs on one representative exchange per
// market argument.
func shouldSync(marketArg string, force bool) (bool, string, error) {
	gate := "KOSPI"
	switch strings.ToUpper(strings.TrimSpace(marketArg)) {
	case "US", "NASDAQ":
		gate = "NASDAQ"
	}
	return market.NewCalendar().ShouldRunSync(gate, time.Now(), force, syncPreGraceMin, syncPostGraceMin)
}

// parseDateFlag returns the UTC midnight for a YYYY-MM-DD flag, or
// today when empty.
func parseDateFlag(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// newSyncer wires the snapshot syncer and its page cache. The returned
// close func releases the cache.
func newSyncer(st *store.Store, cfg *config.Config, logger *slog.Logger) (*market.Syncer, func(), error) {
	fetch := newFetcher(cfg)
	cache, err := market.OpenPageCache(cfg.Crawler.CachePath, cfg.Crawler.CacheTTL)
	if err != nil {
		return nil, nil, err
	}

	syncer := market.NewSyncer(st,
		market.NewNaverClient(fetch),
		market.NewSlickChartsClient(fetch, cache),
		market.NewYahooClient(fetch),
		logger)
	return syncer, func() {
		if cache != nil {
			_ = cache.Close()
		}
	}, nil
}
