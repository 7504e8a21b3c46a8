// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/hokenbot/internal/model"
)

// SessionRepository は会話セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindBySessionKey は指定キーのセッションを取得する。
	// activeかつ未期限のセッションのみ対象とし、見つからない場合はnilを返す。
	FindBySessionKey(ctx context.Context, sessionKey string) (*model.Session, error)

	// UpdateStatus はセッションの状態を更新する。
	UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error

	// ExtendExpiry はセッションの有効期限を延長する。
	ExtendExpiry(ctx context.Context, sessionID string, ttl time.Duration) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	// 関連するメッセージはCASCADE削除される。
	DeleteExpired(ctx context.Context) (int64, error)
}

// MessageRepository は会話メッセージの永続化インターフェース。
type MessageRepository interface {
	// Append はセッションにメッセージを追記する。
	Append(ctx context.Context, message *model.Message) error

	// ListBySession はセッションの全メッセージを作成時刻（同時刻はID）の昇順で返す。
	ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error)
}
