package eligibility

import (
	"strings"

	"github.com/hitoshi/hokenbot/internal/model"
)

// RiskProfile はリスク評価の入力となる顧客プロファイル。
type RiskProfile struct {
	Age              int      `json:"age"`
	HealthConditions []string `json:"health_conditions"`
	Occupation       string   `json:"occupation"`
}

var (
	highRiskConditions   = []string{"diabetes", "heart_disease", "cancer_history", "hypertension"}
	mediumRiskConditions = []string{"asthma", "allergies", "arthritis"}

	highRiskJobs   = []string{"construction", "mining", "firefighter", "police", "pilot"}
	mediumRiskJobs = []string{"driver", "electrician", "mechanic"}
)

// AssessRiskCategory は顧客プロファイルを加重スコアでリスクティアに分類する。
//
// スコアリング:
//   - 年齢 25未満または65超 → +2、50超 → +1
//   - 重度の既往症（diabetes等の部分一致）→ +3、1件で打ち切り
//   - 中度の既往症（asthma等）→ 各 +1
//   - 高リスク職業（construction等）→ +2、中リスク職業 → +1
//
// スコア5以上でhigh、2以上でmedium、それ未満はlow。
func AssessRiskCategory(profile RiskProfile) model.RiskTier {
	score := 0

	if profile.Age < 25 || profile.Age > 65 {
		score += 2
	} else if profile.Age > 50 {
		score += 1
	}

	for _, condition := range profile.HealthConditions {
		lower := strings.ToLower(condition)
		if containsAny(lower, highRiskConditions) {
			score += 3
			break // 重度の既往症は1件で十分
		} else if containsAny(lower, mediumRiskConditions) {
			score += 1
		}
	}

	occupation := strings.ToLower(profile.Occupation)
	if containsAny(occupation, highRiskJobs) {
		score += 2
	} else if containsAny(occupation, mediumRiskJobs) {
		score += 1
	}

	switch {
	case score >= 5:
		return model.RiskHigh
	case score >= 2:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// containsAny はsがkeywordsのいずれかを部分文字列として含むかを返す。
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
