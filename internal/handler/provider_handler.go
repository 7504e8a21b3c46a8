package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hokenbot/internal/model"
)

// RuleStoreInterface は保険会社ルールストアのうちハンドラーが必要とする操作。
type RuleStoreInterface interface {
	// Get は指定コードの保険会社を返す。
	Get(code string) (*model.Provider, error)
	// List は利用可能な保険会社コードの一覧を返す。
	List() ([]string, error)
	// UpdateProduct は商品ルールのフィールドを更新し、更新後のルールを返す。
	UpdateProduct(code, productType string, updates map[string]any) (*model.ProductRule, error)
}

// ProviderHandler は保険会社ルールのHTTPハンドラー。
type ProviderHandler struct {
	store RuleStoreInterface
}

// NewProviderHandler はProviderHandlerを生成する。
func NewProviderHandler(store RuleStoreInterface) *ProviderHandler {
	return &ProviderHandler{store: store}
}

// providerListResponse は保険会社一覧のAPIレスポンス。
type providerListResponse struct {
	Providers []string `json:"providers"`
	Count     int      `json:"count"`
}

// updateProductResponse はルール更新のAPIレスポンス。
type updateProductResponse struct {
	Provider      string             `json:"provider"`
	InsuranceType string             `json:"insurance_type"`
	Rules         *model.ProductRule `json:"rules"`
}

// ListProviders は利用可能な保険会社コードの一覧を返す。
// GET /api/providers
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	codes, err := h.store.List()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, providerListResponse{
		Providers: codes,
		Count:     len(codes),
	})
}

// GetProvider は保険会社の引受ルール全体を返す。
// GET /api/providers/{code}
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	p, err := h.store.Get(code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// UpdateProductRules は商品ルールのフィールドを点更新する。
// ボディは更新するフィールド名と値のJSONオブジェクト。
// PATCH /api/providers/{code}/products/{type}
func (h *ProviderHandler) UpdateProductRules(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	productType := chi.URLParam(r, "type")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if len(updates) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRuleFieldError("(none)", "更新するフィールドがありません"))
		return
	}

	rules, err := h.store.UpdateProduct(code, productType, updates)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateProductResponse{
		Provider:      code,
		InsuranceType: productType,
		Rules:         rules,
	})
}
