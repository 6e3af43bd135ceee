package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
	"github.com/marketlens/marketlens/internal/testutil"
)

type fakeGenerator struct {
	out    string
	err    error
	system string
	msgs   []llm.ChatMessage
}

func (f *fakeGenerator) Generate(_ context.Context, system string, msgs []llm.ChatMessage) (string, error) {
	f.system = system
	f.msgs = msgs
	return f.out, f.err
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system string, msgs []llm.ChatMessage) (string, error) {
	return f.Generate(ctx, system, msgs)
}

func newMockService(t *testing.T, gen llm.Generator) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.ChatConfig{
		RetentionDays:   3,
		MaxMessageChars: 2000,
		ContextMessages: 30,
	}
	logger := testutil.NewTestLogger(t)
	return NewService(store.New(db, logger), gen, cfg, logger), mock
}

func expectCleanup(mock sqlmock.Sqlmock) {
	mock.ExpectExec("DELETE FROM chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM chat_sessions s").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func templateRows(id int64, key, content, userPrompt string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}).
		AddRow(id, key, "기본", "", content, userPrompt, true, time.Now())
}

func sessionRows(id uuid.UUID, userID int64, title string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "title", "is_active", "created_at", "updated_at"}).
		AddRow(id, userID, title, true, now, now)
}

func expectAppendMessage(mock sqlmock.Sqlmock, role, content string) {
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WithArgs(sqlmock.AnyArg(), role, content).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), time.Now()))
	mock.ExpectExec("UPDATE chat_sessions SET updated_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestChat_Personalized(t *testing.T) {
	gen := &fakeGenerator{out: "네, 오늘의 추천입니다."}
	svc, mock := newMockService(t, gen)

	message := "오늘 추천 종목 알려줘"

	expectCleanup(mock)
	mock.ExpectQuery("WHERE is_active ORDER BY created_at").
		WillReturnRows(templateRows(5, "finance-default", "도메인 가이드", "{message}"))
	mock.ExpectQuery("INSERT INTO chat_sessions").
		WithArgs(sqlmock.AnyArg(), int64(7), "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mock.ExpectQuery("FROM user_profiles").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "asset_type", "sectors", "portfolio", "risk_profile", "knowledge_level", "updated_at"}).
			AddRow(int64(1), int64(7), "주식", []byte(`["반도체"]`), []byte(`["삼성전자"]`), "A", 4, time.Now()))
	expectAppendMessage(mock, "user", message)
	mock.ExpectExec("UPDATE chat_sessions SET title").
		WithArgs(sqlmock.AnyArg(), int64(7), message).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM chat_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow(int64(1), uuid.New(), "user", message, time.Now()))
	expectAppendMessage(mock, "assistant", gen.out)

	resp, err := svc.Chat(context.Background(), 7, Request{Message: message})
	require.NoError(t, err)

	assert.Equal(t, "네, 오늘의 추천입니다.", resp.Answer)
	require.NotNil(t, resp.Template.ID)
	assert.Equal(t, int64(5), *resp.Template.ID)
	assert.Equal(t, "finance-default", resp.Template.Key)
	assert.True(t, resp.ProfileLoaded)
	assert.Equal(t, 4, resp.AppliedLevel)
	require.NotNil(t, resp.AppliedRisk)
	assert.Equal(t, "A", *resp.AppliedRisk)
	assert.True(t, resp.RecommendationMode)

	assert.Contains(t, gen.system, "도메인 가이드")
	assert.Contains(t, gen.system, "[System Instruction - Level 4")
	assert.Contains(t, gen.system, "[Risk Overlay - 공격형]")
	assert.Contains(t, gen.system, "[Recommendation Policy]")
	assert.Contains(t, gen.system, "[User Profile]")
	require.Len(t, gen.msgs, 1)
	assert.Equal(t, llm.RoleUser, gen.msgs[0].Role)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChat_FallbackWithoutTemplateOrProfile(t *testing.T) {
	gen := &fakeGenerator{out: "시장 요약입니다."}
	svc, mock := newMockService(t, gen)

	sessID := uuid.New()
	message := "오늘 시장 분위기 어때"

	expectCleanup(mock)
	mock.ExpectQuery("WHERE is_active ORDER BY created_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}))
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(sessID, int64(7)).
		WillReturnRows(sessionRows(sessID, 7, "기존 대화"))
	mock.ExpectQuery("FROM user_profiles").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "asset_type", "sectors", "portfolio", "risk_profile", "knowledge_level", "updated_at"}))
	expectAppendMessage(mock, "user", message)
	mock.ExpectQuery("FROM chat_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow(int64(1), sessID, "user", message, time.Now()))
	expectAppendMessage(mock, "assistant", gen.out)

	resp, err := svc.Chat(context.Background(), 7, Request{Message: message, SessionID: sessID.String()})
	require.NoError(t, err)

	assert.Nil(t, resp.Template.ID)
	assert.Equal(t, "fallback", resp.Template.Key)
	assert.False(t, resp.ProfileLoaded)
	assert.Equal(t, 3, resp.AppliedLevel)
	assert.Nil(t, resp.AppliedRisk)
	assert.False(t, resp.RecommendationMode)
	assert.Equal(t, sessID, resp.SessionID)

	assert.True(t, strings.HasPrefix(gen.system, "당신은 금융/주식 도메인"))
	assert.NotContains(t, gen.system, "[Risk Overlay")
	assert.NotContains(t, gen.system, "[Recommendation Policy]")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChat_ValidatesMessage(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})

	expectCleanup(mock)
	_, err := svc.Chat(context.Background(), 7, Request{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	expectCleanup(mock)
	_, err = svc.Chat(context.Background(), 7, Request{Message: strings.Repeat("가", 2001)})
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestChat_InvalidTemplateKey(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})

	expectCleanup(mock)
	mock.ExpectQuery("WHERE key =").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}))

	_, err := svc.Chat(context.Background(), 7, Request{Message: "안녕", TemplateKey: "nope"})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChat_InvalidSession(t *testing.T) {
	t.Run("malformed id", func(t *testing.T) {
		svc, mock := newMockService(t, &fakeGenerator{})
		expectCleanup(mock)
		mock.ExpectQuery("WHERE is_active ORDER BY created_at").
			WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}))

		_, err := svc.Chat(context.Background(), 7, Request{Message: "안녕", SessionID: "not-a-uuid"})
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("not owned", func(t *testing.T) {
		svc, mock := newMockService(t, &fakeGenerator{})
		sessID := uuid.New()
		expectCleanup(mock)
		mock.ExpectQuery("WHERE is_active ORDER BY created_at").
			WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}))
		mock.ExpectQuery("SELECT id, user_id, title").
			WithArgs(sessID, int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "is_active", "created_at", "updated_at"}))

		_, err := svc.Chat(context.Background(), 7, Request{Message: "안녕", SessionID: sessID.String()})
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

func TestChat_GenerateFailure(t *testing.T) {
	gen := &fakeGenerator{err: assert.AnError}
	svc, mock := newMockService(t, gen)

	sessID := uuid.New()
	expectCleanup(mock)
	mock.ExpectQuery("WHERE is_active ORDER BY created_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}))
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(sessID, int64(7)).
		WillReturnRows(sessionRows(sessID, 7, "기존 대화"))
	mock.ExpectQuery("FROM user_profiles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "asset_type", "sectors", "portfolio", "risk_profile", "knowledge_level", "updated_at"}))
	expectAppendMessage(mock, "user", "안녕하세요")
	mock.ExpectQuery("FROM chat_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow(int64(1), sessID, "user", "안녕하세요", time.Now()))

	_, err := svc.Chat(context.Background(), 7, Request{Message: "안녕하세요", SessionID: sessID.String()})
	assert.ErrorIs(t, err, ErrGenerateFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessions_ClampsLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "zero uses default", limit: 0, wantLimit: 20},
		{name: "over max clamped", limit: 500, wantLimit: 50},
		{name: "in range kept", limit: 5, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMockService(t, &fakeGenerator{})
			expectCleanup(mock)
			mock.ExpectQuery("FROM chat_sessions").
				WithArgs(int64(7), tt.wantLimit, 0).
				WillReturnRows(sessionRows(uuid.New(), 7, "대화"))

			sessions, err := svc.Sessions(context.Background(), 7, tt.limit)
			require.NoError(t, err)
			assert.Len(t, sessions, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDetail_Pagination(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})
	sessID := uuid.New()

	expectCleanup(mock)
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(sessID, int64(7)).
		WillReturnRows(sessionRows(sessID, 7, "긴 대화"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(sessID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery("FROM chat_messages").
		WithArgs(sessID, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow(int64(2), sessID, "assistant", "답변", time.Now()).
			AddRow(int64(1), sessID, "user", "질문", time.Now()))

	detail, err := svc.Detail(context.Background(), 7, sessID, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, detail.Page)
	assert.Equal(t, 50, detail.PageSize)
	assert.Equal(t, 120, detail.Total)
	assert.True(t, detail.HasNext)
	assert.True(t, detail.PaginationRecommended)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "assistant", detail.Messages[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetail_PageBeyondEnd(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})
	sessID := uuid.New()

	expectCleanup(mock)
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(sessID, int64(7)).
		WillReturnRows(sessionRows(sessID, 7, "짧은 대화"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(sessID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	detail, err := svc.Detail(context.Background(), 7, sessID, 3, 50)
	require.NoError(t, err)

	assert.Empty(t, detail.Messages)
	assert.False(t, detail.HasNext)
	assert.False(t, detail.PaginationRecommended)
	assert.Equal(t, 10, detail.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetail_NotFound(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})
	sessID := uuid.New()

	expectCleanup(mock)
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(sessID, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "is_active", "created_at", "updated_at"}))

	_, err := svc.Detail(context.Background(), 7, sessID, 1, 50)
	assert.ErrorIs(t, err, ErrSessionGone)
}

func TestDelete_NotFound(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})
	sessID := uuid.New()

	expectCleanup(mock)
	mock.ExpectExec("DELETE FROM chat_sessions WHERE id").
		WithArgs(sessID, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Delete(context.Background(), 7, sessID)
	assert.ErrorIs(t, err, ErrSessionGone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplates(t *testing.T) {
	svc, mock := newMockService(t, &fakeGenerator{})

	mock.ExpectQuery("FROM chat_prompt_templates").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at"}).
			AddRow(int64(2), "picks", "추천봇", "종목 추천 특화", "p", "{message}", true, time.Now()).
			AddRow(int64(1), "default", "기본", "", "d", "{message}", true, time.Now()))

	tpls, err := svc.Templates(context.Background())
	require.NoError(t, err)
	require.Len(t, tpls, 2)
	assert.Equal(t, "picks", tpls[0].Key)
	assert.Equal(t, "종목 추천 특화", tpls[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
