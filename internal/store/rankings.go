package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplaceRanking atomically replaces the (asof, market, type) board with
// the given entries. Rank is assigned from slice order starting at 1.
func (s *Store) ReplaceRanking(ctx context.Context, asof time.Time, market string, typ RankingType, entries []*RankingEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM market_rankings
			WHERE asof = $1 AND market = $2 AND ranking_type = $3`,
			asof, market, typ); err != nil {
			return fmt.Errorf("failed to clear ranking: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO market_rankings
				(asof, market, ranking_type, rank, symbol, name, price,
				 change_rate, volume, market_cap, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
		if err != nil {
			return fmt.Errorf("failed to prepare ranking insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, asof, market, typ, i+1,
				e.Symbol, e.Name, e.Price, e.ChangeRate, e.Volume,
				e.MarketCap, nullableJSON(e.Payload)); err != nil {
				return fmt.Errorf("failed to insert ranking row %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// LatestAsOf returns the most recent ranking date at or before target
// for a market, or a zero time when no data exists. An empty market
// searches every board.
func (s *Store) LatestAsOf(ctx context.Context, market string, target time.Time) (time.Time, error) {
	query := `SELECT MAX(asof) FROM market_rankings WHERE asof <= $1`
	args := []any{target}
	if market != "" {
		query += ` AND market = $2`
		args = append(args, market)
	}

	var asof sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&asof); err != nil {
		return time.Time{}, fmt.Errorf("failed to find ranking date: %w", err)
	}
	if !asof.Valid {
		return time.Time{}, nil
	}
	return asof.Time, nil
}

// SuggestRanked searches the asof day's ranking rows for symbols or
// names containing q, deduplicated by symbol in (symbol, rank) order.
// An empty market searches every board.
func (s *Store) SuggestRanked(ctx context.Context, asof time.Time, market, q string, limit int) ([]*RankingEntry, error) {
	query := `
		SELECT market, symbol, name, rank FROM market_rankings
		WHERE asof = $1 AND (symbol ILIKE '%' || $2 || '%' OR name ILIKE '%' || $2 || '%')`
	args := []any{asof, q}
	if market != "" {
		query += ` AND market = $3`
		args = append(args, market)
	}
	query += ` ORDER BY symbol, rank LIMIT 500`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search rankings: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []*RankingEntry
	for rows.Next() {
		var e RankingEntry
		if err := rows.Scan(&e.Market, &e.Symbol, &e.Name, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if e.Symbol == "" || seen[e.Symbol] {
			continue
		}
		seen[e.Symbol] = true
		out = append(out, &e)
		if len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}

// ListRanking returns the board rows for one (asof, market, type), in
// rank order, up to limit. includePayload controls whether the raw
// scraped payload is loaded.
func (s *Store) ListRanking(ctx context.Context, asof time.Time, market string, typ RankingType, limit int, includePayload bool) ([]*RankingEntry, error) {
	payloadCol := "NULL"
	if includePayload {
		payloadCol = "payload"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, asof, market, ranking_type, rank, symbol, name, price,
			change_rate, volume, market_cap, %s
		FROM market_rankings
		WHERE asof = $1 AND market = $2 AND ranking_type = $3
		ORDER BY rank
		LIMIT $4`, payloadCol),
		asof, market, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking: %w", err)
	}
	defer rows.Close()

	var out []*RankingEntry
	for rows.Next() {
		var e RankingEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AsOf, &e.Market, &e.Type, &e.Rank,
			&e.Symbol, &e.Name, &e.Price, &e.ChangeRate, &e.Volume,
			&e.MarketCap, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		e.Payload = payload
		out = append(out, &e)
	}
	return out, rows.Err()
}

// nullableJSON maps empty JSON to NULL so the column stays clean.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
