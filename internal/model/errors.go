// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, provider, session, agent, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidBirthDate   = "INVALID_BIRTH_DATE"
	ErrCodeInvalidRiskTier    = "INVALID_RISK_TIER"
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeProductNotOffered  = "PRODUCT_NOT_OFFERED"
	ErrCodeInvalidRuleField   = "INVALID_RULE_FIELD"
	ErrCodeRuleStoreFailed    = "RULE_STORE_FAILED"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeAgentNotConfigured = "AGENT_NOT_CONFIGURED"
	ErrCodeAgentFailed        = "AGENT_FAILED"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidBirthDateError は生年月日の形式不正エラーを生成する。
func NewInvalidBirthDateError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBirthDate,
		Message:  fmt.Sprintf("生年月日の形式が不正です: %s", input),
		Category: "validation",
		Action:   "YYYY-MM-DD形式（例: 1985-05-15）で指定してください。",
	}
}

// NewInvalidRiskTierError は無効なリスクティアエラーを生成する。
func NewInvalidRiskTierError(tier string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRiskTier,
		Message:  fmt.Sprintf("無効なリスクティアです: %s", tier),
		Category: "validation",
		Action:   "リスクティアには low、medium、high のいずれかを指定してください。",
	}
}

// NewUnknownProviderError は未知の保険会社エラーを生成する。
func NewUnknownProviderError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("指定された保険会社が見つかりません: %s", code),
		Category: "provider",
		Action:   "GET /api/providers で利用可能な保険会社コードを確認してください。",
	}
}

// NewProductNotOfferedError は商品未提供エラーを生成する。
func NewProductNotOfferedError(providerCode, productType string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotOffered,
		Message:  fmt.Sprintf("%s は %s 保険を提供していません。", providerCode, productType),
		Category: "provider",
		Action:   "保険会社の商品一覧を確認してください。",
	}
}

// NewInvalidRuleFieldError はルールフィールド更新の検証エラーを生成する。
func NewInvalidRuleFieldError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRuleField,
		Message:  fmt.Sprintf("ルールフィールド %s の値が不正です: %s", field, reason),
		Category: "validation",
		Action:   "age_min/age_maxは整数、base_premiumは数値、max_riskは low/medium/high を指定してください。",
	}
}

// NewRuleStoreFailedError はルールファイルの読み書き失敗エラーを生成する。
func NewRuleStoreFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRuleStoreFailed,
		Message:  fmt.Sprintf("保険会社ルールの読み書きに失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionKey string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("セッションが見つからないか期限切れです: %s", sessionKey),
		Category: "session",
		Action:   "session_keyを指定せずに新しい会話を開始してください。",
	}
}

// NewAgentNotConfiguredError はエージェント未初期化エラーを生成する。
func NewAgentNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeAgentNotConfigured,
		Message:  "エージェントが初期化されていません。",
		Category: "agent",
		Action:   "ANTHROPIC_API_KEYの設定を確認してください。",
	}
}

// NewAgentFailedError はエージェント実行失敗エラーを生成する。
func NewAgentFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAgentFailed,
		Message:  fmt.Sprintf("エージェントの実行に失敗しました: %s", reason),
		Category: "agent",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
