package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/hokenbot/internal/model"
)

type mockSessionRepo struct {
	createFunc           func(ctx context.Context, session *model.Session) error
	findBySessionKeyFunc func(ctx context.Context, sessionKey string) (*model.Session, error)
	updateStatusFunc     func(ctx context.Context, sessionID string, status model.SessionStatus) error
	extendExpiryFunc     func(ctx context.Context, sessionID string, ttl time.Duration) error
	deleteExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return m.createFunc(ctx, session)
}

func (m *mockSessionRepo) FindBySessionKey(ctx context.Context, sessionKey string) (*model.Session, error) {
	return m.findBySessionKeyFunc(ctx, sessionKey)
}

func (m *mockSessionRepo) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	return m.updateStatusFunc(ctx, sessionID, status)
}

func (m *mockSessionRepo) ExtendExpiry(ctx context.Context, sessionID string, ttl time.Duration) error {
	if m.extendExpiryFunc == nil {
		return nil
	}
	return m.extendExpiryFunc(ctx, sessionID, ttl)
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return m.deleteExpiredFunc(ctx)
}

type mockMessageRepo struct {
	appendFunc        func(ctx context.Context, message *model.Message) error
	listBySessionFunc func(ctx context.Context, sessionID string) ([]*model.Message, error)
}

func (m *mockMessageRepo) Append(ctx context.Context, message *model.Message) error {
	return m.appendFunc(ctx, message)
}

func (m *mockMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error) {
	return m.listBySessionFunc(ctx, sessionID)
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

type markingSanitizer struct{}

func (markingSanitizer) Sanitize(raw string) string { return "clean:" + raw }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestStart_CreatesActiveSessionWithTTL(t *testing.T) {
	var created *model.Session
	sessions := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}

	svc := NewService(sessions, &mockMessageRepo{}, passthroughSanitizer{}, 24*time.Hour, testLogger())
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	session, err := svc.Start(context.Background(), StartParams{
		UserIdentifier: "mario",
		UserAgent:      "test-agent",
		IPAddress:      "192.0.2.1",
		InitialQuery:   "Can I get life insurance?",
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected session to be persisted")
	}
	if session.ID == "" || session.SessionKey == "" {
		t.Error("expected generated ID and SessionKey")
	}
	if session.ID == session.SessionKey {
		t.Error("ID and SessionKey should be distinct")
	}
	if session.Status != model.SessionActive {
		t.Errorf("Status = %q, want active", session.Status)
	}
	if !session.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want now+24h", session.ExpiresAt)
	}
}

func TestStart_SanitizesInitialQuery(t *testing.T) {
	var created *model.Session
	sessions := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}

	svc := NewService(sessions, &mockMessageRepo{}, markingSanitizer{}, time.Hour, testLogger())

	if _, err := svc.Start(context.Background(), StartParams{InitialQuery: "hello"}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if created.InitialQuery != "clean:hello" {
		t.Errorf("InitialQuery = %q, want sanitized value", created.InitialQuery)
	}
}

func TestResume_ExtendsExpiry(t *testing.T) {
	var extendedID string
	var extendedTTL time.Duration
	sessions := &mockSessionRepo{
		findBySessionKeyFunc: func(ctx context.Context, sessionKey string) (*model.Session, error) {
			return &model.Session{ID: "sess-1", SessionKey: sessionKey, Status: model.SessionActive}, nil
		},
		extendExpiryFunc: func(ctx context.Context, sessionID string, ttl time.Duration) error {
			extendedID = sessionID
			extendedTTL = ttl
			return nil
		},
	}

	svc := NewService(sessions, &mockMessageRepo{}, passthroughSanitizer{}, 24*time.Hour, testLogger())

	session, err := svc.Resume(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if session.ID != "sess-1" {
		t.Errorf("ID = %q", session.ID)
	}
	if extendedID != "sess-1" || extendedTTL != 24*time.Hour {
		t.Errorf("ExtendExpiry called with (%q, %v)", extendedID, extendedTTL)
	}
}

func TestResume_UnknownKeyReturnsNotFound(t *testing.T) {
	sessions := &mockSessionRepo{
		findBySessionKeyFunc: func(ctx context.Context, sessionKey string) (*model.Session, error) {
			return nil, nil
		},
	}

	svc := NewService(sessions, &mockMessageRepo{}, passthroughSanitizer{}, 24*time.Hour, testLogger())

	_, err := svc.Resume(context.Background(), "missing-key")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSessionNotFound {
		t.Fatalf("err = %v, want SessionNotFound", err)
	}
}

func TestConversation_ReturnsSessionAndMessages(t *testing.T) {
	sessions := &mockSessionRepo{
		findBySessionKeyFunc: func(ctx context.Context, sessionKey string) (*model.Session, error) {
			return &model.Session{ID: "sess-1", SessionKey: sessionKey}, nil
		},
	}
	messages := &mockMessageRepo{
		listBySessionFunc: func(ctx context.Context, sessionID string) ([]*model.Message, error) {
			if sessionID != "sess-1" {
				t.Errorf("ListBySession called with %q", sessionID)
			}
			return []*model.Message{
				{ID: 1, Role: model.RoleUser, Content: "hi"},
				{ID: 2, Role: model.RoleAssistant, Content: "hello"},
			}, nil
		},
	}

	svc := NewService(sessions, messages, passthroughSanitizer{}, 24*time.Hour, testLogger())

	session, msgs, err := svc.Conversation(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Conversation returned error: %v", err)
	}
	if session.ID != "sess-1" {
		t.Errorf("session ID = %q", session.ID)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
}

func TestHistory_ExcludesToolAndSystemRows(t *testing.T) {
	messages := &mockMessageRepo{
		listBySessionFunc: func(ctx context.Context, sessionID string) ([]*model.Message, error) {
			return []*model.Message{
				{ID: 1, Role: model.RoleUser, Content: "Can Mario get life insurance?"},
				{ID: 2, Role: model.RoleTool, Content: "tool call: calculate_age", ToolName: "calculate_age"},
				{ID: 3, Role: model.RoleAssistant, Content: "Yes, Generali accepts him."},
				{ID: 4, Role: model.RoleSystem, Content: "session extended"},
				{ID: 5, Role: model.RoleUser, Content: "How much would it cost?"},
			}, nil
		},
	}

	svc := NewService(&mockSessionRepo{}, messages, passthroughSanitizer{}, 24*time.Hour, testLogger())

	history, err := svc.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	wantRoles := []string{"user", "assistant", "user"}
	wantTexts := []string{"Can Mario get life insurance?", "Yes, Generali accepts him.", "How much would it cost?"}
	for i, msg := range history {
		if msg.Role != wantRoles[i] {
			t.Errorf("history[%d].Role = %q, want %q", i, msg.Role, wantRoles[i])
		}
		if got := msg.Content[0].Text; got != wantTexts[i] {
			t.Errorf("history[%d] text = %q, want %q", i, got, wantTexts[i])
		}
	}
}

func TestRecordUserMessage_SanitizesContent(t *testing.T) {
	var appended *model.Message
	messages := &mockMessageRepo{
		appendFunc: func(ctx context.Context, message *model.Message) error {
			appended = message
			return nil
		},
	}

	svc := NewService(&mockSessionRepo{}, messages, markingSanitizer{}, 24*time.Hour, testLogger())
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if err := svc.RecordUserMessage(context.Background(), "sess-1", "question"); err != nil {
		t.Fatalf("RecordUserMessage returned error: %v", err)
	}
	if appended.Role != model.RoleUser {
		t.Errorf("Role = %q, want user", appended.Role)
	}
	if appended.Content != "clean:question" {
		t.Errorf("Content = %q, want sanitized value", appended.Content)
	}
	if !appended.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", appended.CreatedAt, now)
	}
}

func TestRecordToolCall_StoresInputAndOutput(t *testing.T) {
	var appended *model.Message
	messages := &mockMessageRepo{
		appendFunc: func(ctx context.Context, message *model.Message) error {
			appended = message
			return nil
		},
	}

	svc := NewService(&mockSessionRepo{}, messages, passthroughSanitizer{}, 24*time.Hour, testLogger())

	input := json.RawMessage(`{"birth_date": "1985-05-15"}`)
	output := json.RawMessage(`{"age": 40}`)
	if err := svc.RecordToolCall(context.Background(), "sess-1", "calculate_age", input, output); err != nil {
		t.Fatalf("RecordToolCall returned error: %v", err)
	}

	if appended.Role != model.RoleTool {
		t.Errorf("Role = %q, want tool", appended.Role)
	}
	if appended.ToolName != "calculate_age" {
		t.Errorf("ToolName = %q", appended.ToolName)
	}
	if string(appended.ToolInput) != string(input) {
		t.Errorf("ToolInput = %s", appended.ToolInput)
	}
	if string(appended.ToolOutput) != string(output) {
		t.Errorf("ToolOutput = %s", appended.ToolOutput)
	}
}

func TestRecordAssistantMessage_AppendFailure(t *testing.T) {
	messages := &mockMessageRepo{
		appendFunc: func(ctx context.Context, message *model.Message) error {
			return errors.New("connection reset")
		},
	}

	svc := NewService(&mockSessionRepo{}, messages, passthroughSanitizer{}, 24*time.Hour, testLogger())

	if err := svc.RecordAssistantMessage(context.Background(), "sess-1", "answer"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
