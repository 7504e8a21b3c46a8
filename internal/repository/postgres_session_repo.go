package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hokenbot/internal/model"
)

// PostgresSessionRepo はSessionRepositoryのPostgreSQL実装。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, session_key, user_identifier, user_agent, ip_address, initial_query, customer_profile, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.SessionKey,
		session.UserIdentifier,
		session.UserAgent,
		session.IPAddress,
		session.InitialQuery,
		nullableJSON(session.CustomerProfile),
		session.Status,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindBySessionKey はactiveかつ未期限のセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindBySessionKey(ctx context.Context, sessionKey string) (*model.Session, error) {
	query := `
		SELECT id, session_key, user_identifier, user_agent, ip_address, initial_query, COALESCE(customer_profile, 'null'::jsonb), status, created_at, expires_at
		FROM sessions
		WHERE session_key = $1 AND status = 'active' AND expires_at > now()
	`
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx, query, sessionKey).Scan(
		&session.ID,
		&session.SessionKey,
		&session.UserIdentifier,
		&session.UserAgent,
		&session.IPAddress,
		&session.InitialQuery,
		&session.CustomerProfile,
		&session.Status,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// UpdateStatus はセッションの状態を更新する。
func (r *PostgresSessionRepo) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	query := `UPDATE sessions SET status = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, status)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// ExtendExpiry はセッションの有効期限を現在時刻からttl後へ延長する。
func (r *PostgresSessionRepo) ExtendExpiry(ctx context.Context, sessionID string, ttl time.Duration) error {
	query := `UPDATE sessions SET expires_at = now() + $2::interval WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, fmt.Sprintf("%d seconds", int64(ttl.Seconds())))
	if err != nil {
		return fmt.Errorf("failed to extend session expiry: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= now()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return count, nil
}

// nullableJSON は空のJSONをNULLとして保存するための変換。
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
