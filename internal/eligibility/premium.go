package eligibility

import (
	"math"
	"strings"

	"github.com/hitoshi/hokenbot/internal/model"
)

// basePremiums は保険種別ごとの基本月額保険料（ユーロ）。
var basePremiums = map[string]float64{
	"life":   50.0,
	"auto":   80.0,
	"home":   60.0,
	"health": 100.0,
}

// defaultBasePremium は未知の保険種別に適用される基本保険料。
const defaultBasePremium = 50.0

// riskMultipliers はリスクティアごとの保険料係数。
var riskMultipliers = map[model.RiskTier]float64{
	model.RiskLow:    1.0,
	model.RiskMedium: 1.3,
	model.RiskHigh:   1.8,
}

// EstimatePremium は月額保険料を見積もる。
//
// 保険料 = 基本料 × 年齢係数 × リスク係数
//
// 年齢係数: 25未満 → 1.5、50超 → 1.2 + (age-50)×0.02、それ以外 → 1.0。
// 結果は小数点以下2桁に丸める。
func EstimatePremium(insuranceType string, age int, risk model.RiskTier) float64 {
	base, ok := basePremiums[strings.ToLower(insuranceType)]
	if !ok {
		base = defaultBasePremium
	}

	ageMult := 1.0
	if age < 25 {
		ageMult = 1.5
	} else if age > 50 {
		ageMult = 1.2 + float64(age-50)*0.02
	}

	riskMult, ok := riskMultipliers[risk]
	if !ok {
		riskMult = 1.0
	}

	premium := base * ageMult * riskMult
	return math.Round(premium*100) / 100
}
