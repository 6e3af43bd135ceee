package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertUser creates or refreshes a user from Google sign-in claims and
// stamps the login time.
func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (google_sub, email, name, picture, last_login_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (google_sub) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			picture = EXCLUDED.picture,
			last_login_at = now()
		RETURNING id, is_superuser, created_at, last_login_at`,
		u.GoogleSub, u.Email, u.Name, u.Picture,
	).Scan(&u.ID, &u.IsSuperuser, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser loads one user by id, or nil.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, google_sub, email, name, picture, is_superuser, created_at, last_login_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.GoogleSub, &u.Email, &u.Name, &u.Picture,
		&u.IsSuperuser, &u.CreatedAt, &u.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// EnsureSuperuser promotes or creates an operator account. Used by the
// bootstrap command so a fresh deployment has an admin without going
// through OAuth.
func (s *Store) EnsureSuperuser(ctx context.Context, email string) (*User, error) {
	u := &User{
		GoogleSub: "bootstrap:" + email,
		Email:     email,
		Name:      "admin",
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (google_sub, email, name, is_superuser)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (google_sub) DO UPDATE SET is_superuser = TRUE
		RETURNING id, is_superuser, created_at`,
		u.GoogleSub, u.Email, u.Name,
	).Scan(&u.ID, &u.IsSuperuser, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure superuser: %w", err)
	}
	return u, nil
}

// GetProfile loads the user's investment profile, or nil when the user
// has not set one up yet.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	var (
		p         UserProfile
		sectors   []byte
		portfolio []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, asset_type, sectors, portfolio, risk_profile,
			knowledge_level, updated_at
		FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.ID, &p.UserID, &p.AssetType, &sectors, &portfolio,
		&p.RiskProfile, &p.KnowledgeLevel, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if err := json.Unmarshal(sectors, &p.Sectors); err != nil {
		return nil, fmt.Errorf("failed to decode sectors: %w", err)
	}
	if err := json.Unmarshal(portfolio, &p.Portfolio); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio: %w", err)
	}
	return &p, nil
}

// UpsertProfile stores the user's investment profile.
func (s *Store) UpsertProfile(ctx context.Context, p *UserProfile) error {
	sectors, err := json.Marshal(emptyIfNil(p.Sectors))
	if err != nil {
		return fmt.Errorf("failed to encode sectors: %w", err)
	}
	portfolio, err := json.Marshal(emptyIfNil(p.Portfolio))
	if err != nil {
		return fmt.Errorf("failed to encode portfolio: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles
			(user_id, asset_type, sectors, portfolio, risk_profile, knowledge_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			asset_type = EXCLUDED.asset_type,
			sectors = EXCLUDED.sectors,
			portfolio = EXCLUDED.portfolio,
			risk_profile = EXCLUDED.risk_profile,
			knowledge_level = EXCLUDED.knowledge_level,
			updated_at = now()`,
		p.UserID, p.AssetType, sectors, portfolio, p.RiskProfile, p.KnowledgeLevel)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
