package model

import (
	"encoding/json"
	"time"
)

// SessionStatus は会話セッションの状態を表す。
type SessionStatus string

const (
	// SessionActive は会話が進行中であることを示す。
	SessionActive SessionStatus = "active"
	// SessionCompleted はユーザーが明示的に会話を終了したことを示す。
	SessionCompleted SessionStatus = "completed"
	// SessionAbandoned はユーザーが会話を放棄したことを示す。
	SessionAbandoned SessionStatus = "abandoned"
)

// ValidSessionStatus は既知のセッション状態かどうかを返す。
func ValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionActive, SessionCompleted, SessionAbandoned:
		return true
	default:
		return false
	}
}

// Session は永続化された会話スレッドを表す。
// IDは内部用のUUID、SessionKeyはクライアントに公開する再接続用キー。
type Session struct {
	ID              string
	SessionKey      string
	UserIdentifier  string
	UserAgent       string
	IPAddress       string
	InitialQuery    string
	CustomerProfile json.RawMessage
	Status          SessionStatus
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// MessageRole は会話メッセージの役割を表す。
type MessageRole string

const (
	// RoleUser はユーザーの発話。
	RoleUser MessageRole = "user"
	// RoleAssistant はエージェントの応答。
	RoleAssistant MessageRole = "assistant"
	// RoleTool はツール呼び出しの記録。デバッグと再現性のために保存する。
	RoleTool MessageRole = "tool"
	// RoleSystem はシステム通知。
	RoleSystem MessageRole = "system"
)

// Message はセッション内の1メッセージを表す。
// 追記専用で、作成時刻（同時刻の場合はID）の昇順で全順序が定まる。
type Message struct {
	ID         int64
	SessionID  string
	Role       MessageRole
	Content    string
	ToolName   string
	ToolInput  json.RawMessage
	ToolOutput json.RawMessage
	CreatedAt  time.Time
}
