// Package agent はツール呼び出しループで保険適格性の質問に答えるエージェントを提供する。
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/hokenbot/internal/anthropic"
	"github.com/hitoshi/hokenbot/internal/model"
	"github.com/hitoshi/hokenbot/internal/tool"
)

// systemPrompt はエージェントの役割とツール使用方針を定義する。
const systemPrompt = `You are an expert insurance eligibility advisor.

Your role is to help customers understand their insurance options by:
1. Analyzing their profile (age, health, occupation)
2. Checking eligibility with all major Italian providers
3. Estimating costs and explaining differences
4. Providing clear, actionable recommendations

=== AVAILABLE PROVIDERS ===
You can check eligibility with these Italian insurance companies:
- Generali
- UnipolSai
- Allianz
- AXA

Each provider has different rules for age ranges and risk acceptance.

=== YOUR APPROACH ===

When a customer asks about insurance:

1. GATHER INFORMATION
   - If you have a birth date, use calculate_age to get exact age
   - Use assess_risk_category to evaluate their risk level
   - Consider their occupation and health conditions

2. CHECK ELIGIBILITY
   - Use check_provider_eligibility for EACH provider
   - Don't assume - actually check the rules!
   - Compare all providers to find best options

3. ESTIMATE COSTS
   - Use estimate_premium to give price estimates
   - Explain what affects the premium (age, risk)

4. PROVIDE RECOMMENDATIONS
   - List all eligible providers
   - Highlight best value options
   - Explain any rejections clearly

=== COMMUNICATION STYLE ===

- Be professional but friendly
- Explain insurance jargon in simple terms
- Always cite specific numbers (age ranges, premiums)
- If multiple providers are eligible, compare them
- If NO providers are eligible, explain why and suggest alternatives

=== IMPORTANT ===

- NEVER make up eligibility rules - always use the tools!
- If you're not sure, check the provider details
- Premium estimates are approximate - explain this
- Be transparent about why someone might be rejected

You have access to tools that load provider rules from a database,
so your information is always current and accurate.`

// maxIterationsAnswer は反復上限に達した場合の最終回答。
const maxIterationsAnswer = "Agent stopped: reached the maximum number of tool iterations without a final answer."

// LLM はエージェントが使うモデルクライアントのインターフェース。
// 本番実装はanthropic.Client。
type LLM interface {
	CreateMessage(ctx context.Context, req *anthropic.Request) (*anthropic.Response, error)
}

// Config はエージェントの動作設定。
type Config struct {
	Model         string
	MaxTokens     int
	MaxIterations int
}

// Agent はツール呼び出しループを駆動する。
// モデルがstop_reason=tool_useを返す間、要求されたツールをレジストリ経由で
// 実行し、結果をtool_resultとしてモデルへ返す。
type Agent struct {
	llm      LLM
	registry *tool.Registry
	cfg      Config
	logger   *slog.Logger
}

// ToolCall は実行された1件のツール呼び出しの記録。
type ToolCall struct {
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Output  json.RawMessage `json:"output"`
	IsError bool            `json:"is_error"`
}

// Result はエージェント実行の最終結果。
type Result struct {
	Answer     string
	ToolCalls  []ToolCall
	Usage      anthropic.Usage
	Iterations int
}

// CustomerProfile は構造化された適格性チェックの入力。
type CustomerProfile struct {
	BirthDate        string   `json:"birth_date"`
	Age              *int     `json:"age,omitempty"`
	HealthConditions []string `json:"health_conditions"`
	Occupation       string   `json:"occupation"`
	InsuranceType    string   `json:"insurance_type"`
}

// New はAgentを生成する。MaxIterationsが0以下の場合は15を使う。
func New(llm LLM, registry *tool.Registry, cfg Config, logger *slog.Logger) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 15
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:      llm,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Query は自然言語の質問にツール呼び出しループで回答する。
// historyには過去の会話ターンを渡す（空でもよい）。
func (a *Agent) Query(ctx context.Context, question string, history []anthropic.Message) (*Result, error) {
	messages := make([]anthropic.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, anthropic.TextMessage("user", question))

	tools := a.toolDefinitions()
	result := &Result{}
	temperature := 0.0

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		result.Iterations = iteration + 1

		resp, err := a.llm.CreateMessage(ctx, &anthropic.Request{
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			System:      systemPrompt,
			Messages:    messages,
			Tools:       tools,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, model.NewAgentFailedError(err.Error())
		}

		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens

		if resp.StopReason != "tool_use" {
			result.Answer = resp.JoinText()
			return result, nil
		}

		// モデルのターンをそのまま履歴に積み、各tool_useに結果を返す
		messages = append(messages, anthropic.Message{Role: "assistant", Content: resp.Content})

		var toolResults []anthropic.ContentBlock
		for _, use := range resp.ToolUses() {
			toolResults = append(toolResults, a.runTool(ctx, use, result))
		}
		messages = append(messages, anthropic.Message{Role: "user", Content: toolResults})
	}

	a.logger.Warn("agent reached max iterations",
		slog.Int("max_iterations", a.cfg.MaxIterations),
		slog.Int("tool_calls", len(result.ToolCalls)),
	)
	result.Answer = maxIterationsAnswer
	return result, nil
}

// CheckEligibility は構造化プロファイルを指示文に整形してQueryへ委譲する。
func (a *Agent) CheckEligibility(ctx context.Context, profile CustomerProfile) (*Result, error) {
	var b strings.Builder
	b.WriteString("Please check insurance eligibility for this customer:\n\n")
	b.WriteString("Customer Profile:\n")
	b.WriteString(fmt.Sprintf("- Birth Date: %s\n", orDefault(profile.BirthDate, "Not provided")))
	if profile.Age != nil {
		b.WriteString(fmt.Sprintf("- Age: %d\n", *profile.Age))
	} else {
		b.WriteString("- Age: Calculate from birth date\n")
	}
	b.WriteString(fmt.Sprintf("- Health Conditions: %s\n", formatConditions(profile.HealthConditions)))
	b.WriteString(fmt.Sprintf("- Occupation: %s\n", orDefault(profile.Occupation, "Not specified")))
	b.WriteString(fmt.Sprintf("- Insurance Type: %s\n", orDefault(profile.InsuranceType, "Not specified")))
	b.WriteString("\nPlease:\n")
	b.WriteString("1. Check eligibility with ALL major providers (Generali, UnipolSai, Allianz, AXA)\n")
	b.WriteString("2. Calculate estimated premiums for eligible options\n")
	b.WriteString("3. Provide a clear recommendation\n")

	return a.Query(ctx, b.String(), nil)
}

// runTool は1件のtool_useを実行しtool_resultブロックを返す。
// ツールの失敗はリクエスト全体の失敗にせず、is_error付きの結果として
// モデルに返す。モデルはそれを読んで対応を判断する。
func (a *Agent) runTool(ctx context.Context, use anthropic.ContentBlock, result *Result) anthropic.ContentBlock {
	call := ToolCall{Name: use.Name, Input: use.Input}

	output, err := a.dispatch(ctx, use)
	if err != nil {
		a.logger.Warn("tool call failed",
			slog.String("tool", use.Name),
			slog.String("error", err.Error()),
		)
		call.IsError = true
		call.Output = mustJSON(err.Error())
		result.ToolCalls = append(result.ToolCalls, call)
		return anthropic.ContentBlock{
			Type:      "tool_result",
			ToolUseID: use.ID,
			Content:   err.Error(),
			IsError:   true,
		}
	}

	call.Output = output
	result.ToolCalls = append(result.ToolCalls, call)

	a.logger.Debug("tool call completed", slog.String("tool", use.Name))

	return anthropic.ContentBlock{
		Type:      "tool_result",
		ToolUseID: use.ID,
		Content:   string(output),
	}
}

// dispatch はレジストリからツールを引いて実行し、結果をJSONで返す。
func (a *Agent) dispatch(ctx context.Context, use anthropic.ContentBlock) (json.RawMessage, error) {
	t, ok := a.registry.Get(use.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", use.Name)
	}

	input := use.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	out, err := t.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return data, nil
}

// toolDefinitions はレジストリの全ツールをモデル向け定義に変換する。
func (a *Agent) toolDefinitions() []anthropic.ToolDefinition {
	list := a.registry.List()
	defs := make([]anthropic.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatConditions(conditions []string) string {
	if len(conditions) == 0 {
		return "[]"
	}
	return "[" + strings.Join(conditions, ", ") + "]"
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
