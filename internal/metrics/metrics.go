// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordAgentQuery()
	RecordAgentFailure()
	RecordAgentLatency(duration time.Duration)
	RecordTokenUsage(inputTokens, outputTokens int)
	RecordToolCall(toolName string)
	RecordEligibilityCheck(eligible bool)
	RecordSessionCreated()
	RecordSessionsDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	agentQueries     prometheus.Counter
	agentFailures    prometheus.Counter
	agentLatency     prometheus.Histogram
	inputTokens      prometheus.Counter
	outputTokens     prometheus.Counter
	toolCalls        *prometheus.CounterVec
	eligibilityCheck *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionsDeleted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hokenbot_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		agentQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_agent_queries_total",
			Help: "エージェント問い合わせの合計数",
		}),
		agentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_agent_failures_total",
			Help: "エージェント問い合わせ失敗の合計数",
		}),
		agentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hokenbot_agent_latency_seconds",
			Help:    "エージェント問い合わせのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		inputTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_llm_input_tokens_total",
			Help: "LLMに送信した入力トークンの合計数",
		}),
		outputTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_llm_output_tokens_total",
			Help: "LLMが生成した出力トークンの合計数",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hokenbot_tool_calls_total",
			Help: "ツール別の呼び出し数",
		}, []string{"tool"}),
		eligibilityCheck: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hokenbot_eligibility_checks_total",
			Help: "適格性チェックの判定別合計数",
		}, []string{"eligible"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_sessions_created_total",
			Help: "作成されたセッションの合計数",
		}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hokenbot_sessions_deleted_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.agentQueries,
		c.agentFailures,
		c.agentLatency,
		c.inputTokens,
		c.outputTokens,
		c.toolCalls,
		c.eligibilityCheck,
		c.sessionsCreated,
		c.sessionsDeleted,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAgentQuery はエージェント問い合わせを記録する。
func (c *Collector) RecordAgentQuery() {
	c.agentQueries.Inc()
}

// RecordAgentFailure はエージェント問い合わせの失敗を記録する。
func (c *Collector) RecordAgentFailure() {
	c.agentFailures.Inc()
}

// RecordAgentLatency はエージェント問い合わせのレイテンシを記録する。
func (c *Collector) RecordAgentLatency(duration time.Duration) {
	c.agentLatency.Observe(duration.Seconds())
}

// RecordTokenUsage はLLMのトークン消費を記録する。
func (c *Collector) RecordTokenUsage(inputTokens, outputTokens int) {
	c.inputTokens.Add(float64(inputTokens))
	c.outputTokens.Add(float64(outputTokens))
}

// RecordToolCall はツール呼び出しを記録する。
func (c *Collector) RecordToolCall(toolName string) {
	c.toolCalls.WithLabelValues(toolName).Inc()
}

// RecordEligibilityCheck は適格性チェックの判定結果を記録する。
func (c *Collector) RecordEligibilityCheck(eligible bool) {
	c.eligibilityCheck.WithLabelValues(strconv.FormatBool(eligible)).Inc()
}

// RecordSessionCreated はセッション作成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionsDeleted は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsDeleted(count int64) {
	c.sessionsDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
