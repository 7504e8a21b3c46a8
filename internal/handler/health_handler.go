package handler

import "net/http"

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status     string `json:"status"`
	AgentReady bool   `json:"agent_ready"`
	Message    string `json:"message"`
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	agentReady bool
}

// NewHealthHandler はHealthHandlerを生成する。
// agentReadyにはエージェントが初期化済みかどうかを渡す。
func NewHealthHandler(agentReady bool) *HealthHandler {
	return &HealthHandler{agentReady: agentReady}
}

// Health はサービスの稼働状態を返す。
// エージェントが未初期化でもプロセス自体は稼働しているため200を返し、
// statusをdegradedにして知らせる。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		AgentReady: h.agentReady,
		Message:    "Insurance advisor is running.",
	}
	if !h.agentReady {
		resp.Status = "degraded"
		resp.Message = "Agent is not configured. Check ANTHROPIC_API_KEY."
	}
	writeJSON(w, http.StatusOK, resp)
}
