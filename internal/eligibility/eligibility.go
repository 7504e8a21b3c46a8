package eligibility

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/hokenbot/internal/model"
)

// RuleSource は適格性チェックが参照する保険会社ルールの取得元。
// 本番実装はprovider.Store。
type RuleSource interface {
	Get(code string) (*model.Provider, error)
	List() ([]string, error)
}

// CheckProviderEligibility は指定保険会社・商品に対する顧客の適格性を判定する。
// 判定結果は常にEligibilityResultとして返し、不適格の場合はreasonに
// 具体的な理由を含める。ルールストア自体の障害のみエラーを返す。
func CheckProviderEligibility(src RuleSource, providerCode, insuranceType string, age int, risk model.RiskTier) (*model.EligibilityResult, error) {
	result := &model.EligibilityResult{
		Provider:      providerCode,
		InsuranceType: insuranceType,
	}

	p, err := src.Get(providerCode)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnknownProvider {
			available, listErr := src.List()
			if listErr != nil {
				return nil, listErr
			}
			result.Reason = fmt.Sprintf("Unknown provider: %s. Available: %s", providerCode, strings.Join(available, ", "))
			return result, nil
		}
		return nil, err
	}

	rule, ok := p.Products[strings.ToLower(insuranceType)]
	if !ok {
		result.Reason = fmt.Sprintf("Provider %s does not offer %s insurance", providerCode, insuranceType)
		return result, nil
	}

	if age < rule.AgeMin || age > rule.AgeMax {
		result.Reason = fmt.Sprintf("Age %d is outside acceptable range (%d-%d years)", age, rule.AgeMin, rule.AgeMax)
		return result, nil
	}

	if risk.Index() > rule.MaxRisk.Index() {
		result.Reason = fmt.Sprintf("Risk category %q exceeds maximum accepted risk (%q)", risk, rule.MaxRisk)
		return result, nil
	}

	result.Eligible = true
	result.Reason = "Customer meets all eligibility criteria"
	return result, nil
}
