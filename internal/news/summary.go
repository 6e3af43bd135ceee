package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

// ErrArticleNotFound reports a summary request for an unknown article.
var ErrArticleNotFound = errors.New("article not found")

// Summary is a level-adjusted analysis of a single article.
type Summary struct {
	ArticleID    int64          `json:"article_id"`
	ArticleTitle string         `json:"article_title"`
	Theme        store.Theme    `json:"theme"`
	Level        int            `json:"level"`
	Analysis     map[string]any `json:"analysis"`
}

// SummaryService serves stored analyses and generates missing ones on
// demand.
type SummaryService struct {
	store    *store.Store
	analyzer *Analyzer
	logger   *slog.Logger
}

func NewSummaryService(st *store.Store, analyzer *Analyzer, logger *slog.Logger) *SummaryService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SummaryService{store: st, analyzer: analyzer, logger: logger}
}

// Get returns the analysis for an article at the requested knowledge
// level, running the analyzer first when no stored analysis exists.
func (s *SummaryService) Get(ctx context.Context, articleID int64, level int) (*Summary, error) {
	level = llm.ClampLevel(level)

	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, ErrArticleNotFound
	}

	na, err := s.store.GetAnalysis(ctx, articleID, level)
	if err != nil {
		return nil, err
	}
	if na == nil {
		s.logger.Info("generating analysis on demand", "article_id", articleID, "level", level)
		if err := s.analyzer.Analyze(ctx, article); err != nil {
			return nil, fmt.Errorf("failed to analyze article %d: %w", articleID, err)
		}
		na, err = s.store.GetAnalysis(ctx, articleID, level)
		if err != nil {
			return nil, err
		}
		if na == nil {
			return nil, fmt.Errorf("no analysis produced for article %d level %d", articleID, level)
		}
		// Analysis may have revised the theme.
		if refreshed, err := s.store.GetArticle(ctx, articleID); err == nil && refreshed != nil {
			article = refreshed
		}
	}

	analysis := map[string]any{}
	if err := json.Unmarshal(na.Analysis, &analysis); err != nil {
		return nil, fmt.Errorf("stored analysis for article %d is not valid JSON: %w", articleID, err)
	}
	normalizeAnalysis(analysis)

	return &Summary{
		ArticleID:    article.ID,
		ArticleTitle: article.Title,
		Theme:        article.Theme,
		Level:        level,
		Analysis:     analysis,
	}, nil
}

// normalizeAnalysis backfills fields older payloads are missing so the
// client always sees the same shape.
func normalizeAnalysis(analysis map[string]any) {
	if _, ok := analysis["investment_action"]; !ok {
		actions := []any{}
		if guide, ok := analysis["action_guide"]; ok {
			switch g := guide.(type) {
			case []any:
				actions = g
			case string:
				if g != "" {
					actions = []any{g}
				}
			}
		}
		analysis["investment_action"] = actions
	}

	if _, ok := analysis["strategy_guide"]; !ok {
		analysis["strategy_guide"] = map[string]any{
			"short_term": "분석 데이터가 충분하지 않습니다.",
			"long_term":  "추후 업데이트 될 예정입니다.",
		}
	}
}
