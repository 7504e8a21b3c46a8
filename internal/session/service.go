// Package session は会話セッションの作成・再開・履歴管理を提供する。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/hokenbot/internal/anthropic"
	"github.com/hitoshi/hokenbot/internal/model"
	"github.com/hitoshi/hokenbot/internal/repository"
	"github.com/hitoshi/hokenbot/internal/security"
)

// Service はセッションと会話メッセージの永続化を取りまとめる。
// 保存するユーザー由来のテキストはすべてサニタイズされる。
type Service struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	sanitizer security.ContentSanitizerService
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// StartParams は新規セッション作成時のメタデータ。
type StartParams struct {
	UserIdentifier  string
	UserAgent       string
	IPAddress       string
	InitialQuery    string
	CustomerProfile json.RawMessage
}

// NewService はServiceを生成する。ttlが0以下の場合は24時間を使う。
func NewService(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	sanitizer security.ContentSanitizerService,
	ttl time.Duration,
	logger *slog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		messages:  messages,
		sanitizer: sanitizer,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Start は新しいセッションを作成する。
// session_keyはクライアントに返し、以降の再接続に使わせる。
func (s *Service) Start(ctx context.Context, params StartParams) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:              uuid.NewString(),
		SessionKey:      uuid.NewString(),
		UserIdentifier:  params.UserIdentifier,
		UserAgent:       params.UserAgent,
		IPAddress:       params.IPAddress,
		InitialQuery:    s.sanitizer.Sanitize(params.InitialQuery),
		CustomerProfile: params.CustomerProfile,
		Status:          model.SessionActive,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.logger.Info("session started",
		slog.String("session_id", session.ID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Resume は既存セッションをキーで取得し、有効期限を延長する。
// 見つからない、期限切れ、または終了済みの場合はSessionNotFoundエラーを返す。
func (s *Service) Resume(ctx context.Context, sessionKey string) (*model.Session, error) {
	session, err := s.sessions.FindBySessionKey(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionKey)
	}
	if err := s.sessions.ExtendExpiry(ctx, session.ID, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to extend session expiry: %w", err)
	}
	return session, nil
}

// Conversation はセッション情報と全メッセージを返す。
// 見つからない場合はSessionNotFoundエラーを返す。
func (s *Service) Conversation(ctx context.Context, sessionKey string) (*model.Session, []*model.Message, error) {
	session, err := s.sessions.FindBySessionKey(ctx, sessionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, model.NewSessionNotFoundError(sessionKey)
	}
	messages, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return session, messages, nil
}

// History は保存済みメッセージからモデルへ再送する会話履歴を構築する。
// toolとsystemの行は記録用であり、履歴の再生からは除外する。
func (s *Service) History(ctx context.Context, sessionID string) ([]anthropic.Message, error) {
	stored, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to build history: %w", err)
	}

	var history []anthropic.Message
	for _, m := range stored {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant:
			history = append(history, anthropic.TextMessage(string(m.Role), m.Content))
		}
	}
	return history, nil
}

// RecordUserMessage はユーザーの発話をサニタイズして保存する。
func (s *Service) RecordUserMessage(ctx context.Context, sessionID, content string) error {
	return s.append(ctx, &model.Message{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   s.sanitizer.Sanitize(content),
	})
}

// RecordAssistantMessage はエージェントの回答をサニタイズして保存する。
func (s *Service) RecordAssistantMessage(ctx context.Context, sessionID, content string) error {
	return s.append(ctx, &model.Message{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   s.sanitizer.Sanitize(content),
	})
}

// RecordToolCall はツール呼び出しの入出力を監査用に保存する。
func (s *Service) RecordToolCall(ctx context.Context, sessionID, toolName string, input, output json.RawMessage) error {
	return s.append(ctx, &model.Message{
		SessionID:  sessionID,
		Role:       model.RoleTool,
		Content:    fmt.Sprintf("tool call: %s", toolName),
		ToolName:   toolName,
		ToolInput:  input,
		ToolOutput: output,
	})
}

func (s *Service) append(ctx context.Context, message *model.Message) error {
	message.CreatedAt = s.now()
	if err := s.messages.Append(ctx, message); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}
