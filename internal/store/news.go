package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// InsertArticle stores a crawled article. Returns the article id and
// whether a new row was created; an existing URL is left untouched.
func (s *Store) InsertArticle(ctx context.Context, a *NewsArticle) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO news_articles (url, title, summary, content, source, image_url, market, theme, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
		a.URL, a.Title, a.Summary, a.Content, a.Source, a.ImageURL, a.Market, a.Theme, a.PublishedAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Already crawled; look up the existing id.
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM news_articles WHERE url = $1`, a.URL).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to find existing article: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert article: %w", err)
	}
	return id, true, nil
}

// ArticleExists reports whether an article with the given title or URL
// is already stored. Crawlers use it to skip near-duplicates whose URLs
// differ only in tracking parameters.
func (s *Store) ArticleExists(ctx context.Context, title, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM news_articles WHERE title = $1 OR url = $2
		)`, title, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence: %w", err)
	}
	return exists, nil
}

// GetArticle loads one article, or nil when it does not exist.
func (s *Store) GetArticle(ctx context.Context, id int64) (*NewsArticle, error) {
	var a NewsArticle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, summary, content, source, image_url, market, theme,
			published_at, embedding IS NOT NULL, created_at
		FROM news_articles WHERE id = $1`, id,
	).Scan(&a.ID, &a.URL, &a.Title, &a.Summary, &a.Content, &a.Source, &a.ImageURL,
		&a.Market, &a.Theme, &a.PublishedAt, &a.HasEmbedding, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}
	return &a, nil
}

// ListUnanalyzedArticles returns articles that have no stored analyses yet,
// oldest first, up to limit.
func (s *Store) ListUnanalyzedArticles(ctx context.Context, limit int) ([]*NewsArticle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.url, a.title, a.summary, a.content, a.source, a.image_url,
			a.market, a.theme, a.published_at, a.embedding IS NOT NULL, a.created_at
		FROM news_articles a
		WHERE NOT EXISTS (
			SELECT 1 FROM news_article_analyses n WHERE n.article_id = a.id
		)
		ORDER BY a.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SearchCandidates returns the most similar embedded articles to vec by
// cosine distance. market narrows to one publication side; empty means all.
func (s *Store) SearchCandidates(ctx context.Context, vec pgvector.Vector, market NewsMarket, limit int) ([]*NewsArticle, error) {
	query := `
		SELECT id, url, title, summary, content, source, image_url, market, theme,
			published_at, TRUE, created_at
		FROM news_articles
		WHERE embedding IS NOT NULL`
	args := []any{vec, limit}
	if market != "" {
		query += ` AND market = $3`
		args = append(args, market)
	}
	query += `
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SetArticleEmbedding stores the retrieval embedding for an article.
func (s *Store) SetArticleEmbedding(ctx context.Context, id int64, vec pgvector.Vector) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE news_articles SET embedding = $2 WHERE id = $1`, id, vec)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// UpdateArticleTheme sets the article's classified theme.
func (s *Store) UpdateArticleTheme(ctx context.Context, id int64, theme Theme) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE news_articles SET theme = $2 WHERE id = $1`, id, theme)
	if err != nil {
		return fmt.Errorf("failed to update theme: %w", err)
	}
	return nil
}

// UpsertAnalysis stores or refreshes the per-level analysis of an article.
func (s *Store) UpsertAnalysis(ctx context.Context, na *NewsAnalysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news_article_analyses (article_id, level, theme, analysis, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (article_id, level) DO UPDATE SET
			theme = EXCLUDED.theme,
			analysis = EXCLUDED.analysis,
			updated_at = now()`,
		na.ArticleID, na.Level, na.Theme, []byte(na.Analysis))
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}
	return nil
}

// GetAnalysis loads the analysis for one article and level, or nil.
func (s *Store) GetAnalysis(ctx context.Context, articleID int64, level int) (*NewsAnalysis, error) {
	var na NewsAnalysis
	var analysis []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, article_id, level, theme, analysis, created_at, updated_at
		FROM news_article_analyses
		WHERE article_id = $1 AND level = $2`,
		articleID, level,
	).Scan(&na.ID, &na.ArticleID, &na.Level, &na.Theme, &analysis,
		&na.CreatedAt, &na.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	na.Analysis = analysis
	return &na, nil
}

// PurgeArticlesBefore deletes articles published before cutoff, along
// with their analyses via cascade. Articles without a publication date
// are aged by created_at instead.
func (s *Store) PurgeArticlesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM news_articles
		WHERE COALESCE(published_at, created_at) < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge articles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanArticles(rows *sql.Rows) ([]*NewsArticle, error) {
	var out []*NewsArticle
	for rows.Next() {
		var a NewsArticle
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Summary, &a.Content,
			&a.Source, &a.ImageURL, &a.Market, &a.Theme, &a.PublishedAt,
			&a.HasEmbedding, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
