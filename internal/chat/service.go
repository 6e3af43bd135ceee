// Package chat implements the finance chatbot: prompt template
// resolution, per-user conversation sessions with a short retention
// window, and personalized system prompt assembly from the user's
// onboarding profile.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 50

	defaultPageSize = 50
	maxPageSize     = 100

	// Session detail responses flag pagination once a conversation
	// grows past this many messages.
	pageThreshold = 100

	titleMaxRunes = 28
	defaultTitle  = "새 대화"

	// The assistant turn is stored truncated to this multiple of the
	// user message limit.
	answerStoreFactor = 5

	fallbackLevel = 3
)

var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrInvalidTemplate = errors.New("invalid template")
	ErrInvalidSession  = errors.New("invalid session")
	ErrSessionGone     = errors.New("session not found")
	ErrGenerateFailed  = errors.New("chat generation failed")
)

// Service answers chat requests and manages sessions.
type Service struct {
	store  *store.Store
	gen    llm.Generator
	cfg    config.ChatConfig
	logger *slog.Logger
}

func NewService(st *store.Store, gen llm.Generator, cfg config.ChatConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: st, gen: gen, cfg: cfg, logger: logger}
}

// cleanup enforces the retention window: messages older than the
// configured number of days are dropped, then sessions left with no
// messages. Runs before every operation; failures are logged, not
// surfaced, so a cleanup hiccup never blocks a chat.
func (s *Service) cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	msgs, err := s.store.PurgeMessagesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("chat retention purge failed", "error", err)
		return
	}
	sessions, err := s.store.DeleteEmptySessions(ctx)
	if err != nil {
		s.logger.Warn("empty session sweep failed", "error", err)
		return
	}
	if msgs > 0 || sessions > 0 {
		s.logger.Debug("chat retention applied",
			"messages", msgs, "sessions", sessions, "cutoff", cutoff)
	}
}

// Request is one chat turn from the client. SessionID empty means
// start a new session; TemplateID and TemplateKey select the prompt
// template, newest active wins when both are absent.
type Request struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id,omitempty"`
	TemplateID  int64  `json:"template_id,omitempty"`
	TemplateKey string `json:"template_key,omitempty"`
}

// TemplateRef identifies the template a response was generated with.
// ID is null when the built-in fallback prompt was used.
type TemplateRef struct {
	ID  *int64 `json:"id"`
	Key string `json:"key"`
}

// Response carries the assistant answer plus the personalization that
// was applied, so clients can surface it.
type Response struct {
	Answer             string      `json:"answer"`
	SessionID          uuid.UUID   `json:"session_id"`
	Template           TemplateRef `json:"template"`
	ProfileLoaded      bool        `json:"profile_loaded"`
	AppliedLevel       int         `json:"applied_level"`
	AppliedRisk        *string     `json:"applied_risk"`
	RecommendationMode bool        `json:"recommendation_mode"`
}

// Chat runs one turn: validates the message, resolves template and
// session, assembles the system prompt from the user's profile, calls
// the model with recent history, and persists both turns.
func (s *Service) Chat(ctx context.Context, userID int64, req Request) (*Response, error) {
	s.cleanup(ctx)

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(message)) > s.cfg.MaxMessageChars {
		return nil, fmt.Errorf("%w (max %d)", ErrMessageTooLong, s.cfg.MaxMessageChars)
	}

	tpl, err := s.resolveTemplate(ctx, req.TemplateID, req.TemplateKey)
	if err != nil {
		return nil, err
	}

	sess, err := s.resolveSession(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		profile = nil
	}

	level := fallbackLevel
	risk := ""
	userContext := ""
	if profile != nil {
		level = llm.ClampLevel(profile.KnowledgeLevel)
		risk = strings.TrimSpace(profile.RiskProfile)
		userContext = profileContext(profile)
	}

	baseSystem := fallbackGuardrails
	userPromptTmpl := "{message}"
	if tpl != nil {
		if strings.TrimSpace(tpl.Content) != "" {
			baseSystem = strings.TrimSpace(tpl.Content)
		}
		userPromptTmpl = tpl.UserPrompt
	}

	riskInst := ""
	if risk != "" {
		riskInst = riskOverlay(risk)
	}
	recMode := wantsRecommendation(message)
	recInst := ""
	if recMode {
		recInst = recommendationPolicy(level)
	}

	system := buildSystemPrompt(baseSystem, levelInstruction(level), riskInst, recInst, userContext)
	userContent := renderUserPrompt(userPromptTmpl, message)

	if err := s.store.AppendMessage(ctx, &store.ChatMessage{
		SessionID: sess.ID,
		Role:      llm.RoleUser,
		Content:   userContent,
	}); err != nil {
		return nil, err
	}

	if strings.TrimSpace(sess.Title) == "" {
		title := deriveTitle(message)
		if err := s.store.UpdateSessionTitle(ctx, userID, sess.ID, title); err != nil {
			s.logger.Warn("session title update failed", "session_id", sess.ID, "error", err)
		}
	}

	history, err := s.store.RecentMessages(ctx, sess.ID, s.cfg.ContextMessages)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}

	answer, err := s.gen.Generate(ctx, system, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerateFailed, err)
	}

	stored := answer
	if max := s.cfg.MaxMessageChars * answerStoreFactor; len([]rune(stored)) > max {
		stored = string([]rune(stored)[:max])
	}
	if err := s.store.AppendMessage(ctx, &store.ChatMessage{
		SessionID: sess.ID,
		Role:      llm.RoleAssistant,
		Content:   stored,
	}); err != nil {
		return nil, err
	}

	resp := &Response{
		Answer:             answer,
		SessionID:          sess.ID,
		Template:           TemplateRef{Key: "fallback"},
		ProfileLoaded:      profile != nil,
		AppliedLevel:       level,
		RecommendationMode: recMode,
	}
	if tpl != nil {
		id := tpl.ID
		resp.Template = TemplateRef{ID: &id, Key: tpl.Key}
	}
	if risk != "" {
		resp.AppliedRisk = &risk
	}
	return resp, nil
}

// resolveTemplate honors an explicit id or key strictly: a selector
// that matches nothing is an error, while no selector falls back to
// the newest active template, or the built-in guardrails when none
// exist.
func (s *Service) resolveTemplate(ctx context.Context, id int64, key string) (*store.PromptTemplate, error) {
	tpl, err := s.store.ResolveTemplate(ctx, id, key)
	if err != nil {
		return nil, err
	}
	if tpl == nil && (id > 0 || key != "") {
		return nil, fmt.Errorf("%w: no active template matches", ErrInvalidTemplate)
	}
	return tpl, nil
}

func (s *Service) resolveSession(ctx context.Context, userID int64, sessionID string) (*store.ChatSession, error) {
	if sessionID == "" {
		return s.store.CreateSession(ctx, userID, "")
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	sess, err := s.store.GetSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrInvalidSession
	}
	return sess, nil
}

// deriveTitle collapses the first user message into a short session
// title.
func deriveTitle(message string) string {
	t := strings.Join(strings.Fields(message), " ")
	if t == "" {
		return defaultTitle
	}
	runes := []rune(t)
	if len(runes) <= titleMaxRunes {
		return t
	}
	return string(runes[:titleMaxRunes-1]) + "…"
}

// SessionSummary is the list-view shape of a session.
type SessionSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sessions returns the user's sessions, most recently active first.
func (s *Service) Sessions(ctx context.Context, userID int64, limit int) ([]SessionSummary, error) {
	s.cleanup(ctx)

	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}
	sessions, err := s.store.ListSessions(ctx, userID, limit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, summarize(sess))
	}
	return out, nil
}

func summarize(sess *store.ChatSession) SessionSummary {
	return SessionSummary{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

// MessageItem is one stored turn in a session detail response.
type MessageItem struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionDetail is one page of a session's messages, newest first.
type SessionDetail struct {
	Session               SessionSummary `json:"session"`
	Messages              []MessageItem  `json:"messages"`
	Page                  int            `json:"page"`
	PageSize              int            `json:"page_size"`
	Total                 int            `json:"total"`
	HasNext               bool           `json:"has_next"`
	PaginationRecommended bool           `json:"pagination_recommended"`
}

// Detail returns one page of a session the user owns.
func (s *Service) Detail(ctx context.Context, userID int64, id uuid.UUID, page, pageSize int) (*SessionDetail, error) {
	s.cleanup(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sess, err := s.store.GetSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionGone
	}

	total, err := s.store.CountMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		Session:               summarize(sess),
		Messages:              []MessageItem{},
		Page:                  page,
		PageSize:              pageSize,
		Total:                 total,
		PaginationRecommended: total > pageThreshold,
	}

	offset := (page - 1) * pageSize
	if offset >= total {
		return detail, nil
	}

	msgs, err := s.store.ListMessages(ctx, id, pageSize, offset)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageItem{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	detail.HasNext = offset+len(detail.Messages) < total
	return detail, nil
}

// Delete removes a session the user owns together with its messages.
func (s *Service) Delete(ctx context.Context, userID int64, id uuid.UUID) error {
	s.cleanup(ctx)

	err := s.store.DeleteSession(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionGone
	}
	return err
}

// TemplateInfo is the public shape of a prompt template.
type TemplateInfo struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Templates lists the active prompt templates clients may select from.
func (s *Service) Templates(ctx context.Context) ([]TemplateInfo, error) {
	tpls, err := s.store.ListActiveTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateInfo, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, TemplateInfo{
			ID:          t.ID,
			Key:         t.Key,
			Name:        t.Name,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	return out, nil
}
