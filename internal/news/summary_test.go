package news

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/store"
)

func articleRows(id int64, title string, theme store.Theme) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "url", "title", "summary", "content", "source", "image_url",
		"market", "theme", "published_at", "has_embedding", "created_at",
	}).AddRow(id, "https://example.com/a", title, "요약", "본문", "테스트",
		"https://cdn.example.com/a.jpg", store.NewsMarketKorea, theme, &now, true, now)
}

func TestSummaryGet_StoredAnalysis(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewSummaryService(st, NewAnalyzer(st, &fakeGenerator{}, nil), nil)

	now := time.Now()
	mock.ExpectQuery("SELECT id, url, title").
		WithArgs(int64(42)).
		WillReturnRows(articleRows(42, "삼성전자 HBM 실적 개선", store.ThemeSemiconductorAI))
	mock.ExpectQuery("SELECT id, article_id, level").
		WithArgs(int64(42), 3).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "article_id", "level", "theme", "analysis", "created_at", "updated_at",
		}).AddRow(int64(9), int64(42), 3, store.ThemeSemiconductorAI,
			[]byte(`{"summary": "HBM 중심의 실적 개선.", "action_guide": "분할 매수 접근"}`),
			now, now))

	out, err := svc.Get(context.Background(), 42, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.ArticleID)
	assert.Equal(t, "삼성전자 HBM 실적 개선", out.ArticleTitle)
	assert.Equal(t, store.ThemeSemiconductorAI, out.Theme)
	assert.Equal(t, 3, out.Level)
	assert.Equal(t, "HBM 중심의 실적 개선.", out.Analysis["summary"])
	assert.Equal(t, []any{"분할 매수 접근"}, out.Analysis["investment_action"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryGet_UnknownArticle(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewSummaryService(st, NewAnalyzer(st, &fakeGenerator{}, nil), nil)

	mock.ExpectQuery("SELECT id, url, title").
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "url", "title", "summary", "content", "source", "image_url",
			"market", "theme", "published_at", "has_embedding", "created_at",
		}))

	_, err := svc.Get(context.Background(), 999, 3)
	assert.ErrorIs(t, err, ErrArticleNotFound)
}

func TestSummaryGet_LevelClamped(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewSummaryService(st, NewAnalyzer(st, &fakeGenerator{}, nil), nil)

	now := time.Now()
	mock.ExpectQuery("SELECT id, url, title").
		WithArgs(int64(42)).
		WillReturnRows(articleRows(42, "기사", store.ThemeETC))
	mock.ExpectQuery("SELECT id, article_id, level").
		WithArgs(int64(42), 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "article_id", "level", "theme", "analysis", "created_at", "updated_at",
		}).AddRow(int64(9), int64(42), 5, store.ThemeETC, []byte(`{}`), now, now))

	out, err := svc.Get(context.Background(), 42, 11)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Level)
}

func TestNormalizeAnalysis(t *testing.T) {
	t.Run("investment action from string guide", func(t *testing.T) {
		a := map[string]any{"action_guide": "관망"}
		normalizeAnalysis(a)
		assert.Equal(t, []any{"관망"}, a["investment_action"])
	})

	t.Run("investment action from list guide", func(t *testing.T) {
		a := map[string]any{"action_guide": []any{"분할 매수", "손절 기준 설정"}}
		normalizeAnalysis(a)
		assert.Equal(t, []any{"분할 매수", "손절 기준 설정"}, a["investment_action"])
	})

	t.Run("existing fields untouched", func(t *testing.T) {
		a := map[string]any{
			"investment_action": []any{"유지"},
			"strategy_guide":    map[string]any{"short_term": "단기"},
		}
		normalizeAnalysis(a)
		assert.Equal(t, []any{"유지"}, a["investment_action"])
		assert.Equal(t, map[string]any{"short_term": "단기"}, a["strategy_guide"])
	})

	t.Run("defaults applied", func(t *testing.T) {
		a := map[string]any{}
		normalizeAnalysis(a)
		assert.Equal(t, []any{}, a["investment_action"])
		guide, ok := a["strategy_guide"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "분석 데이터가 충분하지 않습니다.", guide["short_term"])
		assert.Equal(t, "추후 업데이트 될 예정입니다.", guide["long_term"])
	})
}
