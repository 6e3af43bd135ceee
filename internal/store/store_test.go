package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/config"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil), mock
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "defaults filled in",
			cfg:  config.DatabaseConfig{Name: "marketlens"},
			want: "host=localhost port=5432 dbname=marketlens sslmode=disable",
		},
		{
			name: "full config",
			cfg: config.DatabaseConfig{
				Host: "db", Port: 5433, Name: "marketlens",
				User: "app", Password: "secret", SSLMode: "require",
			},
			want: "host=db port=5433 dbname=marketlens sslmode=require user=app password=secret",
		},
		{
			name: "no password omits key",
			cfg: config.DatabaseConfig{
				Host: "db", Name: "marketlens", User: "app",
			},
			want: "host=db port=5432 dbname=marketlens sslmode=disable user=app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestUpsertSnapshotBatch_Transactional(t *testing.T) {
	s, mock := newMockStore(t)

	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	closePx := 71000.0

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO stocks").
		WithArgs(MarketKR, "005930", "Samsung Electronics", "KRW", "KOSPI").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	// Nil snapshot fields ride through so existing columns stay put.
	mock.ExpectExec("INSERT INTO daily_stock_snapshots").
		WithArgs(int64(7), date, nil, closePx, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rows := []*SnapshotRow{{
		Stock: &Stock{
			Market:   MarketKR,
			Symbol:   "005930",
			Name:     "Samsung Electronics",
			Currency: "KRW",
			Exchange: "KOSPI",
		},
		Snapshot: &DailySnapshot{Date: date, Close: &closePx},
	}}

	n, err := s.UpsertSnapshotBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(7), rows[0].Snapshot.StockID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSnapshotBatch_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO stocks").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	n, err := s.UpsertSnapshotBatch(context.Background(), []*SnapshotRow{{
		Stock:    &Stock{Market: MarketKR, Symbol: "005930", Name: "삼성전자", Currency: "KRW", Exchange: "KOSPI"},
		Snapshot: &DailySnapshot{Date: date},
	}})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "failed to upsert stock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// passthroughConverter forwards argument values unconverted, so array
// arguments that pgx handles natively reach the expectations.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) {
	return driver.Value(v), nil
}

func TestDeactivateExcept(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := New(db, nil)

	mock.ExpectExec("UPDATE stocks SET is_active = FALSE").
		WithArgs(MarketKR, []string{"005930", "000660"}).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeactivateExcept(context.Background(), MarketKR, []string{"005930", "000660"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateExcept_EmptyKeepIsNoop(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.DeactivateExcept(context.Background(), MarketKR, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRanking_Transactional(t *testing.T) {
	s, mock := newMockStore(t)

	asof := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rate := 3.2

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM market_rankings").
		WithArgs(asof, "KOSPI", RankingRise).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectPrepare("INSERT INTO market_rankings")
	mock.ExpectExec("INSERT INTO market_rankings").
		WithArgs(asof, "KOSPI", RankingRise, 1, "005930", "Samsung Electronics",
			nil, rate, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.ReplaceRanking(context.Background(), asof, "KOSPI", RankingRise, []*RankingEntry{
		{Symbol: "005930", Name: "Samsung Electronics", ChangeRate: &rate},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRanking_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	asof := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM market_rankings").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ReplaceRanking(context.Background(), asof, "KOSPI", RankingRise, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear ranking")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestAsOf_NoData(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT MAX\\(asof\\)").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	asof, err := s.LatestAsOf(context.Background(), "KOSPI", time.Now())
	require.NoError(t, err)
	assert.True(t, asof.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticle_ExistingURL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO news_articles").
		WillReturnRows(sqlmock.NewRows([]string{"id"})) // conflict, no row returned
	mock.ExpectQuery("SELECT id FROM news_articles").
		WithArgs("https://example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, created, err := s.InsertArticle(context.Background(), &NewsArticle{
		URL:    "https://example.com/a",
		Title:  "t",
		Market: NewsMarketKorea,
		Theme:  ThemeETC,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveTemplate_Precedence(t *testing.T) {
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}).
			AddRow(int64(1), "default", "Default", "", "You are a helpful analyst.", "{message}", true, time.Now())
	}

	tests := []struct {
		name      string
		id        int64
		key       string
		wantWhere string
	}{
		{name: "by id", id: 1, wantWhere: "WHERE id ="},
		{name: "by key", key: "default", wantWhere: "WHERE key ="},
		{name: "newest active", wantWhere: "WHERE is_active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectQuery(tt.wantWhere).WillReturnRows(rows())

			tpl, err := s.ResolveTemplate(context.Background(), tt.id, tt.key)
			require.NoError(t, err)
			require.NotNil(t, tpl)
			assert.Equal(t, "default", tpl.Key)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppendMessage_TouchesSession(t *testing.T) {
	s, mock := newMockStore(t)

	sessionID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WithArgs(sessionID, "user", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), time.Now()))
	mock.ExpectExec("UPDATE chat_sessions SET updated_at").
		WithArgs(sessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &ChatMessage{SessionID: sessionID, Role: "user", Content: "hello"}
	err := s.AppendMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoerceTheme(t *testing.T) {
	known := []Theme{
		ThemeSemiconductorAI, ThemeBattery, ThemeGreenEnergy, ThemeFinanceHolding,
		ThemeICTPlatform, ThemeBioHealth, ThemeAuto, ThemeETC,
	}
	for _, theme := range known {
		assert.Equal(t, theme, CoerceTheme(string(theme)))
	}
	assert.Equal(t, ThemeETC, CoerceTheme("CRYPTO"))
	assert.Equal(t, ThemeETC, CoerceTheme("DEFENSE"))
	assert.Equal(t, ThemeETC, CoerceTheme(""))
}
