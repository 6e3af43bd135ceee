package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const upsertStockSQL = `
	INSERT INTO stocks (market, symbol, name, currency, exchange, is_active, updated_at)
	VALUES ($1, $2, $3, $4, $5, TRUE, now())
	ON CONFLICT (market, symbol) DO UPDATE SET
		name = EXCLUDED.name,
		currency = EXCLUDED.currency,
		exchange = EXCLUDED.exchange,
		is_active = TRUE,
		updated_at = now()
	RETURNING id`

const upsertSnapshotSQL = `
	INSERT INTO daily_stock_snapshots
		(stock_id, date, open, close, prev_close, change_pct, intraday_pct,
		 market_cap, volume, volatility_20d, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	ON CONFLICT (stock_id, date) DO UPDATE SET
		open = COALESCE(EXCLUDED.open, daily_stock_snapshots.open),
		close = COALESCE(EXCLUDED.close, daily_stock_snapshots.close),
		prev_close = COALESCE(EXCLUDED.prev_close, daily_stock_snapshots.prev_close),
		change_pct = COALESCE(EXCLUDED.change_pct, daily_stock_snapshots.change_pct),
		intraday_pct = COALESCE(EXCLUDED.intraday_pct, daily_stock_snapshots.intraday_pct),
		market_cap = COALESCE(EXCLUDED.market_cap, daily_stock_snapshots.market_cap),
		volume = COALESCE(EXCLUDED.volume, daily_stock_snapshots.volume),
		volatility_20d = COALESCE(EXCLUDED.volatility_20d, daily_stock_snapshots.volatility_20d),
		updated_at = now()`

// DeactivateExcept marks stocks of a market inactive when their symbol
// is not in keep. Runs after a full-universe sync so constituents that
// fell out of the top lists stop counting as active.
func (s *Store) DeactivateExcept(ctx context.Context, market Market, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE stocks SET is_active = FALSE, updated_at = now()
		WHERE market = $1 AND is_active AND NOT (symbol = ANY($2))`,
		market, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stocks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SnapshotRow pairs a stock identity with its snapshot for a batch write.
// Snapshot.StockID is filled from the stock upsert.
type SnapshotRow struct {
	Stock    *Stock
	Snapshot *DailySnapshot
}

// UpsertSnapshotBatch upserts every stock and snapshot inside one
// transaction so readers never see a partially refreshed exchange.
// Nil snapshot fields leave any previously stored value untouched, so
// the end-of-day pass and the intraday pass each write their own columns.
func (s *Store) UpsertSnapshotBatch(ctx context.Context, rows []*SnapshotRow) (int, error) {
	n := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			var id int64
			if err := tx.QueryRowContext(ctx, upsertStockSQL,
				r.Stock.Market, r.Stock.Symbol, r.Stock.Name, r.Stock.Currency, r.Stock.Exchange,
			).Scan(&id); err != nil {
				return fmt.Errorf("failed to upsert stock %s/%s: %w", r.Stock.Market, r.Stock.Symbol, err)
			}
			r.Snapshot.StockID = id
			if _, err := tx.ExecContext(ctx, upsertSnapshotSQL,
				id, r.Snapshot.Date, r.Snapshot.Open, r.Snapshot.Close, r.Snapshot.PrevClose,
				r.Snapshot.ChangePct, r.Snapshot.IntradayPct, r.Snapshot.MarketCap,
				r.Snapshot.Volume, r.Snapshot.Volatility20d,
			); err != nil {
				return fmt.Errorf("failed to upsert snapshot for %s: %w", r.Stock.Symbol, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PrevCloseMap returns symbol to close for the most recent snapshot date
// strictly before asof on an exchange. Empty when no earlier date exists.
func (s *Store) PrevCloseMap(ctx context.Context, exchange string, asof time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.symbol, ds.close
		FROM daily_stock_snapshots ds
		JOIN stocks st ON st.id = ds.stock_id
		WHERE st.exchange = $1 AND ds.close IS NOT NULL AND ds.date = (
			SELECT MAX(d.date) FROM daily_stock_snapshots d
			JOIN stocks s2 ON s2.id = d.stock_id
			WHERE s2.exchange = $1 AND d.date < $2
		)`, exchange, asof)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous closes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var sym string
		var close float64
		if err := rows.Scan(&sym, &close); err != nil {
			return nil, fmt.Errorf("failed to scan previous close: %w", err)
		}
		out[sym] = close
	}
	return out, rows.Err()
}

// LatestSnapshotDate returns the newest snapshot date at or before target
// for an exchange, falling back to the newest date overall, then target.
func (s *Store) LatestSnapshotDate(ctx context.Context, exchange string, target time.Time) (time.Time, error) {
	var d sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			(SELECT MAX(ds.date) FROM daily_stock_snapshots ds
			 JOIN stocks st ON st.id = ds.stock_id
			 WHERE st.exchange = $1 AND ds.date <= $2),
			(SELECT MAX(ds.date) FROM daily_stock_snapshots ds
			 JOIN stocks st ON st.id = ds.stock_id
			 WHERE st.exchange = $1))`,
		exchange, target,
	).Scan(&d)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find snapshot date: %w", err)
	}
	if !d.Valid {
		return target, nil
	}
	return d.Time, nil
}
