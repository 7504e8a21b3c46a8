package provider

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hitoshi/hokenbot/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeProviderFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("テストファイルの書き込みに失敗: %v", err)
	}
}

const generaliJSON = `{
  "provider_code": "generali",
  "provider_name": "Generali",
  "country": "IT",
  "last_updated": "2025-01-15",
  "products": {
    "life": {
      "age_min": 18,
      "age_max": 70,
      "max_risk": "high",
      "base_premium": 45.0,
      "description": "生命保険"
    },
    "auto": {
      "age_min": 18,
      "age_max": 80,
      "max_risk": "medium",
      "base_premium": 75.0
    }
  }
}`

const axaJSON = `{
  "provider_code": "axa",
  "provider_name": "AXA",
  "country": "IT",
  "products": {
    "health": {
      "age_min": 20,
      "age_max": 65,
      "max_risk": "low",
      "base_premium": 95.0
    }
  }
}`

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	writeProviderFile(t, dir, "generali.json", generaliJSON)
	writeProviderFile(t, dir, "axa.json", axaJSON)
	return NewStore(dir, testLogger()), dir
}

func TestLoadAll_LoadsAllProviderFiles(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}

	codes, err := store.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	want := []string{"axa", "generali"}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("List() = %v, want %v", codes, want)
	}
}

func TestLoadAll_EmptyDirectory_ReturnsError(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())

	err := store.LoadAll()
	if err == nil {
		t.Fatal("expected error for empty directory, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeRuleStoreFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeRuleStoreFailed)
	}
}

func TestLoadAll_MissingDirectory_ReturnsError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nonexistent"), testLogger())

	if err := store.LoadAll(); err == nil {
		t.Fatal("expected error for missing directory, got nil")
	}
}

func TestLoadAll_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeProviderFile(t, dir, "generali.json", generaliJSON)
	writeProviderFile(t, dir, "broken.json", `{not json`)
	writeProviderFile(t, dir, "incomplete.json", `{"provider_name": "NoCode", "products": {}}`)
	writeProviderFile(t, dir, "notes.txt", "ignored")

	store := NewStore(dir, testLogger())
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}

	codes, _ := store.List()
	if len(codes) != 1 || codes[0] != "generali" {
		t.Errorf("List() = %v, want [generali]", codes)
	}
}

func TestGet_ReturnsProvider(t *testing.T) {
	store, _ := newTestStore(t)

	p, err := store.Get("generali")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if p.Name != "Generali" {
		t.Errorf("Name = %q, want %q", p.Name, "Generali")
	}
	if p.Country != "IT" {
		t.Errorf("Country = %q, want %q", p.Country, "IT")
	}
	life, ok := p.Products["life"]
	if !ok {
		t.Fatal("expected life product")
	}
	if life.AgeMax != 70 {
		t.Errorf("life.AgeMax = %d, want 70", life.AgeMax)
	}
	if life.MaxRisk != model.RiskHigh {
		t.Errorf("life.MaxRisk = %q, want %q", life.MaxRisk, model.RiskHigh)
	}
}

func TestGet_CaseInsensitive(t *testing.T) {
	store, _ := newTestStore(t)

	p, err := store.Get("GENERALI")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if p.Code != "generali" {
		t.Errorf("Code = %q, want %q", p.Code, "generali")
	}
}

func TestGet_UnknownProvider_ReturnsError(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get("zurich")
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeUnknownProvider {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUnknownProvider)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)

	p1, _ := store.Get("generali")
	p1.Products["life"] = model.ProductRule{AgeMax: 999}

	p2, _ := store.Get("generali")
	if p2.Products["life"].AgeMax != 70 {
		t.Error("mutating a returned provider leaked into the cache")
	}
}

func TestGetProductRules(t *testing.T) {
	store, _ := newTestStore(t)

	rule, err := store.GetProductRules("generali", "life")
	if err != nil {
		t.Fatalf("GetProductRules returned error: %v", err)
	}
	if rule.AgeMin != 18 || rule.AgeMax != 70 {
		t.Errorf("rule = %+v, want age 18-70", rule)
	}
	if rule.BasePremium != 45.0 {
		t.Errorf("BasePremium = %v, want 45.0", rule.BasePremium)
	}
}

func TestGetProductRules_ProductNotOffered(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetProductRules("axa", "auto")
	if err == nil {
		t.Fatal("expected error for unoffered product, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeProductNotOffered {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeProductNotOffered)
	}
}

func TestFailClosed_ProductMissingRuleFields(t *testing.T) {
	dir := t.TempDir()
	writeProviderFile(t, dir, "partial.json", `{
  "provider_code": "partial",
  "provider_name": "Partial",
  "products": {
    "life": {"age_min": 18, "age_max": 70, "max_risk": "high", "base_premium": 50.0},
    "auto": {"age_min": 18, "age_max": 75},
    "home": {"age_min": 18, "age_max": 75, "max_risk": "extreme", "base_premium": 60.0}
  }
}`)

	store := NewStore(dir, testLogger())

	// 完全なルールを持つ商品だけが提供される
	if _, err := store.GetProductRules("partial", "life"); err != nil {
		t.Errorf("life should be offered, got error: %v", err)
	}

	// 必須フィールド欠落 → 未提供扱い
	if _, err := store.GetProductRules("partial", "auto"); err == nil {
		t.Error("auto with missing rule fields should fail closed")
	}

	// 未知のmax_risk → 未提供扱い
	if _, err := store.GetProductRules("partial", "home"); err == nil {
		t.Error("home with unknown max_risk should fail closed")
	}
}

func TestUpdateProduct_UpdatesCacheAndDisk(t *testing.T) {
	store, dir := newTestStore(t)

	updated, err := store.UpdateProduct("generali", "life", map[string]any{"age_max": 75})
	if err != nil {
		t.Fatalf("UpdateProduct returned error: %v", err)
	}
	if updated.AgeMax != 75 {
		t.Errorf("updated.AgeMax = %d, want 75", updated.AgeMax)
	}

	// キャッシュに反映されている
	rule, _ := store.GetProductRules("generali", "life")
	if rule.AgeMax != 75 {
		t.Errorf("cached AgeMax = %d, want 75", rule.AgeMax)
	}

	// ディスクに書き戻されている
	data, err := os.ReadFile(filepath.Join(dir, "generali.json"))
	if err != nil {
		t.Fatalf("書き戻しファイルの読み込みに失敗: %v", err)
	}
	var onDisk model.Provider
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("書き戻しファイルの解析に失敗: %v", err)
	}
	if onDisk.Products["life"].AgeMax != 75 {
		t.Errorf("on-disk AgeMax = %d, want 75", onDisk.Products["life"].AgeMax)
	}
	if onDisk.LastUpdated == "2025-01-15" {
		t.Error("last_updated was not refreshed")
	}

	// 別のStoreで再ロードしても新しい値が見える
	fresh := NewStore(dir, testLogger())
	freshRule, err := fresh.GetProductRules("generali", "life")
	if err != nil {
		t.Fatalf("fresh GetProductRules returned error: %v", err)
	}
	if freshRule.AgeMax != 75 {
		t.Errorf("fresh AgeMax = %d, want 75", freshRule.AgeMax)
	}
}

func TestUpdateProduct_RevertRestoresOriginal(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.UpdateProduct("generali", "life", map[string]any{"age_max": 75}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := store.UpdateProduct("generali", "life", map[string]any{"age_max": 70}); err != nil {
		t.Fatalf("revert failed: %v", err)
	}

	rule, _ := store.GetProductRules("generali", "life")
	if rule.AgeMax != 70 {
		t.Errorf("AgeMax after revert = %d, want 70", rule.AgeMax)
	}
}

func TestUpdateProduct_ValidatesFields(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name    string
		updates map[string]any
	}{
		{"age_maxに文字列", map[string]any{"age_max": "seventy"}},
		{"age_minに小数", map[string]any{"age_min": 18.5}},
		{"base_premiumに文字列", map[string]any{"base_premium": "cheap"}},
		{"max_riskに未知のティア", map[string]any{"max_risk": "extreme"}},
		{"未知のフィールド", map[string]any{"discount": 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.UpdateProduct("generali", "life", tt.updates)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %T", err)
			}
			if apiErr.Code != model.ErrCodeInvalidRuleField {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidRuleField)
			}
		})
	}

	// 失敗した更新はキャッシュを汚染しない
	rule, _ := store.GetProductRules("generali", "life")
	if rule.AgeMax != 70 {
		t.Errorf("AgeMax after failed updates = %d, want 70", rule.AgeMax)
	}
}

func TestUpdateProduct_UnknownProviderOrProduct(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.UpdateProduct("zurich", "life", map[string]any{"age_max": 75}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := store.UpdateProduct("generali", "pet", map[string]any{"age_max": 75}); err == nil {
		t.Error("expected error for unoffered product")
	}
}

func TestUpdateProduct_JSONNumericValue(t *testing.T) {
	store, _ := newTestStore(t)

	// JSON経由の数値はfloat64で届く
	var payload map[string]any
	if err := json.Unmarshal([]byte(`{"age_max": 75}`), &payload); err != nil {
		t.Fatal(err)
	}

	updated, err := store.UpdateProduct("generali", "life", payload)
	if err != nil {
		t.Fatalf("UpdateProduct returned error: %v", err)
	}
	if updated.AgeMax != 75 {
		t.Errorf("AgeMax = %d, want 75", updated.AgeMax)
	}
}

func TestReload_PicksUpExternalEdits(t *testing.T) {
	store, dir := newTestStore(t)

	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}

	// 外部からファイルを編集
	edited := `{
  "provider_code": "generali",
  "provider_name": "Generali",
  "country": "IT",
  "products": {
    "life": {"age_min": 21, "age_max": 65, "max_risk": "medium", "base_premium": 55.0}
  }
}`
	writeProviderFile(t, dir, "generali.json", edited)

	// Reload前はキャッシュの値
	rule, _ := store.GetProductRules("generali", "life")
	if rule.AgeMin != 18 {
		t.Errorf("AgeMin before reload = %d, want 18", rule.AgeMin)
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	rule, _ = store.GetProductRules("generali", "life")
	if rule.AgeMin != 21 {
		t.Errorf("AgeMin after reload = %d, want 21", rule.AgeMin)
	}
}
