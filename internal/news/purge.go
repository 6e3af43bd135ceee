package news

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketlens/marketlens/internal/store"
)

const defaultRetentionDays = 7

// Purge deletes articles older than the retention window together with
// their analyses. Returns the number of removed articles.
func Purge(ctx context.Context, st *store.Store, retentionDays int, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := st.PurgeArticlesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.Info("purged old articles", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}
