package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/hokenbot/internal/agent"
	"github.com/hitoshi/hokenbot/internal/anthropic"
	"github.com/hitoshi/hokenbot/internal/metrics"
	"github.com/hitoshi/hokenbot/internal/model"
	"github.com/hitoshi/hokenbot/internal/session"
)

// AgentInterface はエージェント実行のインターフェース。
type AgentInterface interface {
	// Query は自然言語の質問にツール呼び出しループで回答する。
	Query(ctx context.Context, question string, history []anthropic.Message) (*agent.Result, error)
	// CheckEligibility は構造化プロファイルの適格性分析を実行する。
	CheckEligibility(ctx context.Context, profile agent.CustomerProfile) (*agent.Result, error)
}

// SessionServiceInterface は会話セッション管理のインターフェース。
type SessionServiceInterface interface {
	Start(ctx context.Context, params session.StartParams) (*model.Session, error)
	Resume(ctx context.Context, sessionKey string) (*model.Session, error)
	History(ctx context.Context, sessionID string) ([]anthropic.Message, error)
	RecordUserMessage(ctx context.Context, sessionID, content string) error
	RecordAssistantMessage(ctx context.Context, sessionID, content string) error
	RecordToolCall(ctx context.Context, sessionID, toolName string, input, output json.RawMessage) error
}

// QueryHandler はエージェント問い合わせのHTTPハンドラー。
type QueryHandler struct {
	agent     AgentInterface
	sessions  SessionServiceInterface
	collector metrics.MetricsCollector
	timeout   time.Duration
	logger    *slog.Logger
}

// NewQueryHandler はQueryHandlerを生成する。
// agentはAPIキー未設定の構成ではnilを許容し、その場合503を返す。
func NewQueryHandler(a AgentInterface, sessions SessionServiceInterface, collector metrics.MetricsCollector, timeout time.Duration, logger *slog.Logger) *QueryHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{
		agent:     a,
		sessions:  sessions,
		collector: collector,
		timeout:   timeout,
		logger:    logger,
	}
}

// queryRequest は自由質問リクエストのボディ。
type queryRequest struct {
	Question string `json:"question"`
}

// usageResponse はLLMトークン消費のAPIレスポンス。
type usageResponse struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// queryResponse はエージェント回答のAPIレスポンス。
type queryResponse struct {
	Answer     string           `json:"answer"`
	ToolCalls  []agent.ToolCall `json:"tool_calls"`
	Usage      usageResponse    `json:"usage"`
	Iterations int              `json:"iterations"`
}

// checkEligibilityRequest は構造化適格性チェックのボディ。
type checkEligibilityRequest struct {
	BirthDate        string   `json:"birth_date"`
	Age              *int     `json:"age"`
	HealthConditions []string `json:"health_conditions"`
	Occupation       string   `json:"occupation"`
	InsuranceType    string   `json:"insurance_type"`
}

// Query は自由形式の質問に回答する。
// POST /api/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAgentNotConfiguredError())
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	result, err := h.runAgent(r.Context(), func(ctx context.Context) (*agent.Result, error) {
		return h.agent.Query(ctx, req.Question, nil)
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(result))
}

// CheckEligibility は構造化プロファイルの適格性分析を実行する。
// POST /api/check-eligibility
func (h *QueryHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAgentNotConfiguredError())
		return
	}

	var req checkEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	// 年齢も生年月日もなければ分析できない
	if req.BirthDate == "" && req.Age == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	profile := agent.CustomerProfile{
		BirthDate:        req.BirthDate,
		Age:              req.Age,
		HealthConditions: req.HealthConditions,
		Occupation:       req.Occupation,
		InsuranceType:    req.InsuranceType,
	}

	result, err := h.runAgent(r.Context(), func(ctx context.Context) (*agent.Result, error) {
		return h.agent.CheckEligibility(ctx, profile)
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(result))
}

// runAgent はタイムアウトとメトリクス記録付きでエージェントを実行する。
func (h *QueryHandler) runAgent(ctx context.Context, fn func(ctx context.Context) (*agent.Result, error)) (*agent.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.collector.RecordAgentQuery()
	start := time.Now()

	result, err := fn(ctx)
	h.collector.RecordAgentLatency(time.Since(start))
	if err != nil {
		h.collector.RecordAgentFailure()
		return nil, err
	}

	h.collector.RecordTokenUsage(result.Usage.InputTokens, result.Usage.OutputTokens)
	for _, call := range result.ToolCalls {
		h.collector.RecordToolCall(call.Name)
		if call.Name == "check_provider_eligibility" && !call.IsError {
			var verdict struct {
				Eligible bool `json:"eligible"`
			}
			if jsonErr := json.Unmarshal(call.Output, &verdict); jsonErr == nil {
				h.collector.RecordEligibilityCheck(verdict.Eligible)
			}
		}
	}
	return result, nil
}

// toQueryResponse はエージェント実行結果をAPIレスポンスに変換する。
func toQueryResponse(result *agent.Result) queryResponse {
	toolCalls := result.ToolCalls
	if toolCalls == nil {
		toolCalls = []agent.ToolCall{}
	}
	return queryResponse{
		Answer:    result.Answer,
		ToolCalls: toolCalls,
		Usage: usageResponse{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Iterations: result.Iterations,
	}
}
