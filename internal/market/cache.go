package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// PageCache is a small SQLite-backed cache for scraped pages. The
// SlickCharts universe is fetched for three boards in one sync run, so
// caching the merged rows avoids hammering the site.
type PageCache struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenPageCache opens (or creates) the cache file. A nil cache is
// returned for an empty path; its methods then act as no-ops.
func OpenPageCache(path string, ttl time.Duration) (*PageCache, error) {
	if path == "" {
		return nil, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page cache: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pages (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			fetched_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init page cache: %w", err)
	}
	return &PageCache{db: db, ttl: ttl}, nil
}

// Get returns a cached body that is still within TTL, or nil.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, nil
	}

	var body []byte
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT body, fetched_at FROM pages WHERE key = ?`, key,
	).Scan(&body, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page cache: %w", err)
	}

	if time.Since(time.Unix(fetchedAt, 0)) > c.ttl {
		return nil, nil
	}
	return body, nil
}

// Put stores a body under key with the current timestamp.
func (c *PageCache) Put(ctx context.Context, key string, body []byte) error {
	if c == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pages (key, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		key, body, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write page cache: %w", err)
	}
	return nil
}

// Close closes the cache file.
func (c *PageCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
