package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hokenbot/internal/agent"
	"github.com/hitoshi/hokenbot/internal/model"
	"github.com/hitoshi/hokenbot/internal/session"
)

// ConversationServiceInterface は会話履歴取得のインターフェース。
type ConversationServiceInterface interface {
	Conversation(ctx context.Context, sessionKey string) (*model.Session, []*model.Message, error)
}

// sessionQueryRequest はセッション付き問い合わせのボディ。
// session_keyが省略または無効な場合は新しいセッションが作られる。
type sessionQueryRequest struct {
	Question   string `json:"question"`
	SessionKey string `json:"session_key"`
}

// sessionQueryResponse はセッション付き問い合わせのAPIレスポンス。
type sessionQueryResponse struct {
	SessionKey string           `json:"session_key"`
	NewSession bool             `json:"new_session"`
	Answer     string           `json:"answer"`
	ToolCalls  []agent.ToolCall `json:"tool_calls"`
	Usage      usageResponse    `json:"usage"`
	Iterations int              `json:"iterations"`
}

// sessionInfoResponse はセッション情報のAPIレスポンス。
type sessionInfoResponse struct {
	SessionKey   string    `json:"session_key"`
	Status       string    `json:"status"`
	InitialQuery string    `json:"initial_query,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// conversationMessageResponse は会話内1メッセージのAPIレスポンス。
type conversationMessageResponse struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// conversationResponse は会話履歴のAPIレスポンス。
type conversationResponse struct {
	Session  sessionInfoResponse           `json:"session"`
	Messages []conversationMessageResponse `json:"messages"`
}

// SessionQuery はセッションに紐づく問い合わせを処理する。
// 有効なsession_keyがあれば履歴を再生して会話を継続し、
// なければ新しいセッションを開始する。質問・ツール呼び出し・回答を永続化する。
// POST /api/v2/query
func (h *QueryHandler) SessionQuery(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAgentNotConfiguredError())
		return
	}

	var req sessionQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	sess, created, err := h.resumeOrStart(r, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	replay, err := h.sessions.History(r.Context(), sess.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.runAgent(r.Context(), func(ctx context.Context) (*agent.Result, error) {
		return h.agent.Query(ctx, req.Question, replay)
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.persistExchange(r.Context(), sess.ID, req.Question, result)

	writeJSON(w, http.StatusOK, sessionQueryResponse{
		SessionKey: sess.SessionKey,
		NewSession: created,
		Answer:     result.Answer,
		ToolCalls:  toQueryResponse(result).ToolCalls,
		Usage: usageResponse{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Iterations: result.Iterations,
	})
}

// resumeOrStart は有効なキーがあればセッションを再開し、なければ新規作成する。
func (h *QueryHandler) resumeOrStart(r *http.Request, req sessionQueryRequest) (*model.Session, bool, error) {
	if req.SessionKey != "" {
		sess, err := h.sessions.Resume(r.Context(), req.SessionKey)
		if err == nil {
			return sess, false, nil
		}
		// 無効なキーはエラーにせず新規セッションにフォールバックする
		if !isSessionNotFound(err) {
			return nil, false, err
		}
	}

	sess, err := h.sessions.Start(r.Context(), session.StartParams{
		UserAgent:    r.UserAgent(),
		IPAddress:    r.RemoteAddr,
		InitialQuery: req.Question,
	})
	if err != nil {
		return nil, false, err
	}
	h.collector.RecordSessionCreated()
	return sess, true, nil
}

// persistExchange は1往復分の会話を保存する。
// 回答はすでにクライアントへ返せる状態なので、保存失敗はログに留める。
func (h *QueryHandler) persistExchange(ctx context.Context, sessionID, question string, result *agent.Result) {
	if err := h.sessions.RecordUserMessage(ctx, sessionID, question); err != nil {
		h.logger.Warn("failed to persist user message", "session_id", sessionID, "error", err.Error())
	}
	for _, call := range result.ToolCalls {
		if err := h.sessions.RecordToolCall(ctx, sessionID, call.Name, call.Input, call.Output); err != nil {
			h.logger.Warn("failed to persist tool call", "session_id", sessionID, "tool", call.Name, "error", err.Error())
		}
	}
	if err := h.sessions.RecordAssistantMessage(ctx, sessionID, result.Answer); err != nil {
		h.logger.Warn("failed to persist assistant message", "session_id", sessionID, "error", err.Error())
	}
}

// ConversationHandler は会話履歴取得のHTTPハンドラー。
type ConversationHandler struct {
	service ConversationServiceInterface
}

// NewConversationHandler はConversationHandlerを生成する。
func NewConversationHandler(service ConversationServiceInterface) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversation はセッションの会話履歴を返す。
// 見つからない、または期限切れの場合は404を返す。
// GET /api/v2/conversation/{sessionKey}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	sess, messages, err := h.service.Conversation(r.Context(), sessionKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := conversationResponse{
		Session: sessionInfoResponse{
			SessionKey:   sess.SessionKey,
			Status:       string(sess.Status),
			InitialQuery: sess.InitialQuery,
			CreatedAt:    sess.CreatedAt,
			ExpiresAt:    sess.ExpiresAt,
		},
		Messages: make([]conversationMessageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, conversationMessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			ToolName:  m.ToolName,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// isSessionNotFound はセッション未検出エラーかどうかを判定する。
func isSessionNotFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeSessionNotFound
}
