package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/hokenbot/internal/eligibility"
	"github.com/hitoshi/hokenbot/internal/model"
)

// RuleStore はツールが参照する保険会社ルールストアのインターフェース。
// 本番実装はprovider.Store。
type RuleStore interface {
	Get(code string) (*model.Provider, error)
	List() ([]string, error)
	GetProductRules(code, productType string) (*model.ProductRule, error)
	UpdateProduct(code, productType string, updates map[string]any) (*model.ProductRule, error)
}

// Deps はツール群の依存を保持する。
type Deps struct {
	Store RuleStore
	// Now は年齢計算の基準時刻。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// NewDefaultRegistry は保険適格性判定の全ツールを登録したRegistryを返す。
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := NewRegistry()
	tools := []*Tool{
		newCalculateAgeTool(deps),
		newAssessRiskCategoryTool(),
		newEstimatePremiumTool(),
		newCheckProviderEligibilityTool(deps),
		newListAvailableProvidersTool(deps),
		newGetProviderDetailsTool(deps),
		newUpdateProviderRulesTool(deps),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newCalculateAgeTool(deps Deps) *Tool {
	type input struct {
		BirthDate string `json:"birth_date"`
	}
	return &Tool{
		Name:        "calculate_age",
		Description: "Calculate age in years from a birth date. Use this when the user provides a birth date instead of an age.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"birth_date": map[string]any{
					"type":        "string",
					"description": "Birth date in YYYY-MM-DD format, e.g. 1985-05-15",
				},
			},
			"required": []string{"birth_date"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			return eligibility.CalculateAge(in.BirthDate, deps.Now())
		},
	}
}

func newAssessRiskCategoryTool() *Tool {
	type input struct {
		Profile eligibility.RiskProfile `json:"profile"`
	}
	return &Tool{
		Name:        "assess_risk_category",
		Description: "Assess a customer's risk category (low, medium, or high) from their age, health conditions, and occupation. Use this before checking eligibility or estimating premiums.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"profile": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"age": map[string]any{
							"type":        "integer",
							"description": "Customer age in years",
						},
						"health_conditions": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "List of medical conditions, e.g. [\"diabetes\", \"asthma\"]",
						},
						"occupation": map[string]any{
							"type":        "string",
							"description": "Customer occupation, e.g. \"office\", \"construction\"",
						},
					},
					"required": []string{"age"},
				},
			},
			"required": []string{"profile"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			return eligibility.AssessRiskCategory(in.Profile), nil
		},
	}
}

func newEstimatePremiumTool() *Tool {
	type input struct {
		InsuranceType string `json:"insurance_type"`
		Age           int    `json:"age"`
		RiskCategory  string `json:"risk_category"`
	}
	return &Tool{
		Name:        "estimate_premium",
		Description: "Estimate the monthly insurance premium in euros from the insurance type, customer age, and risk category.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"insurance_type": map[string]any{
					"type":        "string",
					"description": "Insurance type: life, auto, home, or health",
				},
				"age": map[string]any{
					"type":        "integer",
					"description": "Customer age in years",
				},
				"risk_category": map[string]any{
					"type":        "string",
					"description": "Risk category: low, medium, or high",
				},
			},
			"required": []string{"insurance_type", "age", "risk_category"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			tier, ok := model.ParseRiskTier(in.RiskCategory)
			if !ok {
				return nil, model.NewInvalidRiskTierError(in.RiskCategory)
			}
			return eligibility.EstimatePremium(in.InsuranceType, in.Age, tier), nil
		},
	}
}

func newCheckProviderEligibilityTool(deps Deps) *Tool {
	type input struct {
		Provider      string `json:"provider"`
		InsuranceType string `json:"insurance_type"`
		Age           int    `json:"age"`
		RiskCategory  string `json:"risk_category"`
	}
	return &Tool{
		Name:        "check_provider_eligibility",
		Description: "Check whether a customer is eligible for a specific insurance product with a specific provider. Each provider has its own age range and maximum accepted risk. Returns an eligibility verdict with a detailed reason.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider": map[string]any{
					"type":        "string",
					"description": "Provider code, e.g. generali, unipolsai, allianz, axa",
				},
				"insurance_type": map[string]any{
					"type":        "string",
					"description": "Insurance type: life, auto, home, or health",
				},
				"age": map[string]any{
					"type":        "integer",
					"description": "Customer age in years",
				},
				"risk_category": map[string]any{
					"type":        "string",
					"description": "Risk category: low, medium, or high",
				},
			},
			"required": []string{"provider", "insurance_type", "age", "risk_category"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			tier, ok := model.ParseRiskTier(in.RiskCategory)
			if !ok {
				return nil, model.NewInvalidRiskTierError(in.RiskCategory)
			}
			return eligibility.CheckProviderEligibility(deps.Store, in.Provider, in.InsuranceType, in.Age, tier)
		},
	}
}

func newListAvailableProvidersTool(deps Deps) *Tool {
	return &Tool{
		Name:        "list_available_providers",
		Description: "List the codes of all available insurance providers. Use this to know which providers can be checked for eligibility.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return deps.Store.List()
		},
	}
}

func newGetProviderDetailsTool(deps Deps) *Tool {
	type input struct {
		ProviderCode string `json:"provider_code"`
	}
	return &Tool{
		Name:        "get_provider_details",
		Description: "Get detailed information about a specific provider, including all offered products and their underwriting rules.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider_code": map[string]any{
					"type":        "string",
					"description": "Provider code, e.g. generali",
				},
			},
			"required": []string{"provider_code"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			return deps.Store.Get(in.ProviderCode)
		},
	}
}

// updateResult はupdate_provider_rulesツールの結果。
type updateResult struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	UpdatedRules *model.ProductRule `json:"updated_rules"`
}

func newUpdateProviderRulesTool(deps Deps) *Tool {
	type input struct {
		ProviderCode string `json:"provider_code"`
		ProductType  string `json:"product_type"`
		Field        string `json:"field"`
		Value        any    `json:"value"`
	}
	return &Tool{
		Name:        "update_provider_rules",
		Description: "Update a single field in a provider's product rules, e.g. raise age_max or change max_risk. The change is persisted and takes effect immediately.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider_code": map[string]any{
					"type":        "string",
					"description": "Provider to update, e.g. generali",
				},
				"product_type": map[string]any{
					"type":        "string",
					"description": "Product to update: life, auto, home, or health",
				},
				"field": map[string]any{
					"type":        "string",
					"description": "Field to update: age_min, age_max, max_risk, base_premium, or description",
				},
				"value": map[string]any{
					"description": "New value for the field",
				},
			},
			"required": []string{"provider_code", "product_type", "field", "value"},
		},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in input
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, model.NewInvalidRequestError()
			}
			updated, err := deps.Store.UpdateProduct(in.ProviderCode, in.ProductType, map[string]any{in.Field: in.Value})
			if err != nil {
				return nil, err
			}
			return updateResult{
				Success:      true,
				Message:      fmt.Sprintf("Updated %s %s insurance: %s = %v", in.ProviderCode, in.ProductType, in.Field, in.Value),
				UpdatedRules: updated,
			}, nil
		},
	}
}
