package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession opens a new chat session for a user.
func (s *Store) CreateSession(ctx context.Context, userID int64, title string) (*ChatSession, error) {
	sess := &ChatSession{
		ID:       uuid.New(),
		UserID:   userID,
		Title:    title,
		IsActive: true,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		sess.ID, sess.UserID, sess.Title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session owned by the user, or nil.
func (s *Store) GetSession(ctx context.Context, userID int64, id uuid.UUID) (*ChatSession, error) {
	var sess ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, is_active, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.IsActive,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns the user's sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, userID int64, limit, offset int) ([]*ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, is_active, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*ChatSession
	for rows.Next() {
		var sess ChatSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.IsActive,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// UpdateSessionTitle renames a session the user owns.
func (s *Store) UpdateSessionTitle(ctx context.Context, userID int64, id uuid.UUID, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET title = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, title)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, userID int64, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendMessage adds a turn to a session and bumps its updated_at.
func (s *Store) AppendMessage(ctx context.Context, msg *ChatMessage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO chat_messages (session_id, role, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			msg.SessionID, msg.Role, msg.Content,
		).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE chat_sessions SET updated_at = now() WHERE id = $1`,
			msg.SessionID); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		return nil
	})
}

// ListMessages returns a page of a session's messages, newest first.
func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// RecentMessages returns the newest n messages of a session in
// chronological order, for building the model context window.
func (s *Store) RecentMessages(ctx context.Context, sessionID uuid.UUID, n int) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountMessages returns how many messages a session holds.
func (s *Store) CountMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// PurgeMessagesBefore deletes messages created before cutoff.
func (s *Store) PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteEmptySessions removes sessions whose messages were all purged.
func (s *Store) DeleteEmptySessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_sessions s
		WHERE NOT EXISTS (
			SELECT 1 FROM chat_messages m WHERE m.session_id = s.id
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateTemplate stores a new prompt template version under key.
func (s *Store) CreateTemplate(ctx context.Context, tpl *PromptTemplate) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_prompt_templates (key, name, description, content, user_prompt, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		tpl.Key, tpl.Name, tpl.Description, tpl.Content, tpl.UserPrompt, tpl.IsActive,
	).Scan(&tpl.ID, &tpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// ListActiveTemplates returns active templates, newest first.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]*PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, name, description, content, user_prompt, is_active, created_at
		FROM chat_prompt_templates
		WHERE is_active
		ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*PromptTemplate
	for rows.Next() {
		var tpl PromptTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Key, &tpl.Name, &tpl.Description,
			&tpl.Content, &tpl.UserPrompt, &tpl.IsActive, &tpl.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}

// ResolveTemplate picks the system prompt template to use: by id when
// given, else the newest active one under key, else the newest active
// template overall. Returns nil when nothing matches.
func (s *Store) ResolveTemplate(ctx context.Context, id int64, key string) (*PromptTemplate, error) {
	var (
		tpl  PromptTemplate
		err  error
		scan = func(row *sql.Row) error {
			return row.Scan(&tpl.ID, &tpl.Key, &tpl.Name, &tpl.Description,
				&tpl.Content, &tpl.UserPrompt, &tpl.IsActive, &tpl.CreatedAt)
		}
	)
	const cols = `SELECT id, key, name, description, content, user_prompt, is_active, created_at FROM chat_prompt_templates`

	switch {
	case id > 0:
		err = scan(s.db.QueryRowContext(ctx, cols+` WHERE id = $1 AND is_active`, id))
	case key != "":
		err = scan(s.db.QueryRowContext(ctx,
			cols+` WHERE key = $1 AND is_active ORDER BY created_at DESC LIMIT 1`, key))
	default:
		err = scan(s.db.QueryRowContext(ctx,
			cols+` WHERE is_active ORDER BY created_at DESC LIMIT 1`))
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}
	return &tpl, nil
}

// TemplateExists reports whether any template is stored under key.
func (s *Store) TemplateExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_prompt_templates WHERE key = $1`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check template: %w", err)
	}
	return n > 0, nil
}
