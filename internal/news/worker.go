package news

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const workerErrorBackoff = 3 * time.Second

// Worker drains the classification queue, analyzing one international
// article per job. It runs until the context is cancelled.
type Worker struct {
	queue    *Queue
	analyzer *Analyzer
	logger   *slog.Logger
}

func NewWorker(queue *Queue, analyzer *Analyzer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{queue: queue, analyzer: analyzer, logger: logger}
}

// Run blocks on the queue, processing jobs as they arrive. Failed jobs
// are logged and dropped; the nightly backlog sweep re-analyzes any
// article left without an analysis.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("analysis worker started", "queue", w.queue.Name())
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(workerErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Info("analyzing queued article", "article_id", job.ArticleID)
		if err := w.analyzer.AnalyzeJob(ctx, job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("job analysis failed", "article_id", job.ArticleID, "error", err)
		}
	}
}
