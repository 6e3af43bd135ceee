package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplaceTrendKeywords atomically replaces the (date, scope) keyword set.
// Rank is assigned from slice order starting at 1. Collected news rows
// hang off the keyword ids, so replacing a day drops its news via cascade.
func (s *Store) ReplaceTrendKeywords(ctx context.Context, date time.Time, scope Market, keywords []*TrendKeyword) ([]int64, error) {
	ids := make([]int64, 0, len(keywords))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM trend_keywords_daily WHERE date = $1 AND scope = $2`,
			date, scope); err != nil {
			return fmt.Errorf("failed to clear trend keywords: %w", err)
		}
		for i, kw := range keywords {
			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO trend_keywords_daily (date, scope, rank, keyword, reason)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				date, scope, i+1, kw.Keyword, kw.Reason,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to insert trend keyword %d: %w", i+1, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TrendKeywordDate returns the date to serve trend data for: today when
// present, otherwise the latest earlier date, otherwise zero.
func (s *Store) TrendKeywordDate(ctx context.Context, scope Market, today time.Time) (time.Time, error) {
	var d sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM trend_keywords_daily
		WHERE scope = $1 AND date <= $2`,
		scope, today,
	).Scan(&d)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find trend date: %w", err)
	}
	if !d.Valid {
		return time.Time{}, nil
	}
	return d.Time, nil
}

// ListTrendKeywords returns the keywords for one (date, scope), in rank
// order, up to limit.
func (s *Store) ListTrendKeywords(ctx context.Context, date time.Time, scope Market, limit int) ([]*TrendKeyword, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, scope, rank, keyword, reason
		FROM trend_keywords_daily
		WHERE date = $1 AND scope = $2
		ORDER BY rank
		LIMIT $3`, date, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trend keywords: %w", err)
	}
	defer rows.Close()

	var out []*TrendKeyword
	for rows.Next() {
		var kw TrendKeyword
		if err := rows.Scan(&kw.ID, &kw.Date, &kw.Scope, &kw.Rank,
			&kw.Keyword, &kw.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan trend keyword: %w", err)
		}
		out = append(out, &kw)
	}
	return out, rows.Err()
}

// InsertTrendNews stores an article collected for a trend keyword,
// skipping URLs already attached to that keyword.
func (s *Store) InsertTrendNews(ctx context.Context, tn *TrendNews) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO trend_keyword_news
			(keyword_id, url, title, summary, content, source, image_url, published_at, needs_image_gen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (keyword_id, url) DO NOTHING
		RETURNING id`,
		tn.KeywordID, tn.URL, tn.Title, tn.Summary, tn.Content, tn.Source, tn.ImageURL,
		tn.PublishedAt, tn.NeedsImageGen,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert trend news: %w", err)
	}
	return id, true, nil
}

// ListUnanalyzedTrendNews returns trend articles without a finished
// analysis, oldest first, up to limit.
func (s *Store) ListUnanalyzedTrendNews(ctx context.Context, limit int) ([]*TrendNews, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keyword_id, url, title, summary, content, source, image_url,
			published_at, analysis_full, analyzed_at, needs_image_gen
		FROM trend_keyword_news
		WHERE analyzed_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trend news: %w", err)
	}
	defer rows.Close()
	return scanTrendNews(rows)
}

// MarkTrendNewsAnalyzed stores the full analysis JSON and stamps the row.
func (s *Store) MarkTrendNewsAnalyzed(ctx context.Context, id int64, analysisFull []byte, needsImage bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trend_keyword_news
		SET analysis_full = $2, analyzed_at = now(), needs_image_gen = $3
		WHERE id = $1`,
		id, analysisFull, needsImage)
	if err != nil {
		return fmt.Errorf("failed to mark trend news analyzed: %w", err)
	}
	return nil
}

// UpsertTrendNewsAnalysis stores one level's reading of a trend article.
func (s *Store) UpsertTrendNewsAnalysis(ctx context.Context, na *TrendNewsAnalysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_keyword_news_analyses (news_id, level, analysis)
		VALUES ($1, $2, $3)
		ON CONFLICT (news_id, level) DO UPDATE SET analysis = EXCLUDED.analysis`,
		na.NewsID, na.Level, []byte(na.Analysis))
	if err != nil {
		return fmt.Errorf("failed to upsert trend news analysis: %w", err)
	}
	return nil
}

// ReplaceThemePicks atomically replaces the (date, scope) theme picks.
func (s *Store) ReplaceThemePicks(ctx context.Context, date time.Time, scope Market, picks []*ThemePick) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM theme_picks_daily WHERE date = $1 AND scope = $2`,
			date, scope); err != nil {
			return fmt.Errorf("failed to clear theme picks: %w", err)
		}
		for i, p := range picks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO theme_picks_daily (date, scope, rank, theme, symbol, name, reason)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				date, scope, i+1, p.Theme, p.Symbol, p.Name, p.Reason); err != nil {
				return fmt.Errorf("failed to insert theme pick %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// ThemePickDate mirrors TrendKeywordDate for theme picks.
func (s *Store) ThemePickDate(ctx context.Context, scope Market, today time.Time) (time.Time, error) {
	var d sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM theme_picks_daily
		WHERE scope = $1 AND date <= $2`,
		scope, today,
	).Scan(&d)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find theme pick date: %w", err)
	}
	if !d.Valid {
		return time.Time{}, nil
	}
	return d.Time, nil
}

// ListThemePicks returns the picks for one (date, scope) in rank order.
func (s *Store) ListThemePicks(ctx context.Context, date time.Time, scope Market, limit int) ([]*ThemePick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, scope, rank, theme, symbol, name, reason
		FROM theme_picks_daily
		WHERE date = $1 AND scope = $2
		ORDER BY rank
		LIMIT $3`, date, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list theme picks: %w", err)
	}
	defer rows.Close()

	var out []*ThemePick
	for rows.Next() {
		var p ThemePick
		if err := rows.Scan(&p.ID, &p.Date, &p.Scope, &p.Rank, &p.Theme,
			&p.Symbol, &p.Name, &p.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan theme pick: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanTrendNews(rows *sql.Rows) ([]*TrendNews, error) {
	var out []*TrendNews
	for rows.Next() {
		var tn TrendNews
		var analysis []byte
		if err := rows.Scan(&tn.ID, &tn.KeywordID, &tn.URL, &tn.Title,
			&tn.Summary, &tn.Content, &tn.Source, &tn.ImageURL, &tn.PublishedAt,
			&analysis, &tn.AnalyzedAt, &tn.NeedsImageGen); err != nil {
			return nil, fmt.Errorf("failed to scan trend news: %w", err)
		}
		tn.AnalysisFull = analysis
		out = append(out, &tn)
	}
	return out, rows.Err()
}
