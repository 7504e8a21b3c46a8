// Package model はドメインモデルを定義する。
package model

// RiskTier は顧客の評価リスクを表す順序付きカテゴリ。
type RiskTier string

const (
	// RiskLow は低リスク。
	RiskLow RiskTier = "low"
	// RiskMedium は中リスク。
	RiskMedium RiskTier = "medium"
	// RiskHigh は高リスク。
	RiskHigh RiskTier = "high"
)

// riskTierOrder はリスクティアの順序（低→高）を定義する。
var riskTierOrder = map[RiskTier]int{
	RiskLow:    0,
	RiskMedium: 1,
	RiskHigh:   2,
}

// Index はリスクティアの順序インデックス（low=0, medium=1, high=2）を返す。
// 未知のティアの場合は-1を返す。
func (t RiskTier) Index() int {
	if idx, ok := riskTierOrder[t]; ok {
		return idx
	}
	return -1
}

// Valid は既知のリスクティアかどうかを返す。
func (t RiskTier) Valid() bool {
	return t.Index() >= 0
}

// ParseRiskTier は文字列をRiskTierに変換する。
// 大文字小文字は区別しない。未知の値の場合はfalseを返す。
func ParseRiskTier(s string) (RiskTier, bool) {
	switch s {
	case "low", "Low", "LOW":
		return RiskLow, true
	case "medium", "Medium", "MEDIUM":
		return RiskMedium, true
	case "high", "High", "HIGH":
		return RiskHigh, true
	default:
		return "", false
	}
}

// ProductRule は保険会社ごと・商品ごとの引受ルールを表す。
// 4つの必須フィールド（AgeMin, AgeMax, MaxRisk, BasePremium）が
// すべて揃っていない商品はフェイルクローズ（未提供扱い）となる。
type ProductRule struct {
	AgeMin      int      `json:"age_min"`
	AgeMax      int      `json:"age_max"`
	MaxRisk     RiskTier `json:"max_risk"`
	BasePremium float64  `json:"base_premium"`
	Description string   `json:"description,omitempty"`
}

// Provider は保険会社の引受ルール一式を表す。
// 1社につき1つのJSONファイルからロードされる。
type Provider struct {
	Code        string                 `json:"provider_code"`
	Name        string                 `json:"provider_name"`
	Country     string                 `json:"country,omitempty"`
	LastUpdated string                 `json:"last_updated,omitempty"`
	Products    map[string]ProductRule `json:"products"`
}

// EligibilityResult は保険会社ごとの適格性判定結果を表す。
type EligibilityResult struct {
	Eligible      bool   `json:"eligible"`
	Provider      string `json:"provider"`
	InsuranceType string `json:"insurance_type"`
	Reason        string `json:"reason"`
}
