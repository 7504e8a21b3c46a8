package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hokenbot/internal/model"
)

// PostgresMessageRepo はMessageRepositoryのPostgreSQL実装。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Append はセッションにメッセージを追記する。採番されたIDをmessageに書き戻す。
func (r *PostgresMessageRepo) Append(ctx context.Context, message *model.Message) error {
	query := `
		INSERT INTO messages (session_id, role, content, tool_name, tool_input, tool_output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		message.SessionID,
		message.Role,
		message.Content,
		message.ToolName,
		nullableJSON(message.ToolInput),
		nullableJSON(message.ToolOutput),
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListBySession はセッションの全メッセージを作成時刻（同時刻はID）の昇順で返す。
func (r *PostgresMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error) {
	query := `
		SELECT id, session_id, role, content, COALESCE(tool_name, ''), COALESCE(tool_input, 'null'::jsonb), COALESCE(tool_output, 'null'::jsonb), created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		message := &model.Message{}
		if err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.Role,
			&message.Content,
			&message.ToolName,
			&message.ToolInput,
			&message.ToolOutput,
			&message.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

var _ MessageRepository = (*PostgresMessageRepo)(nil)
