// Package provider は保険会社ごとの引受ルールのロードと更新を提供する。
// ルールは1社1ファイルのJSONとして保存され、プロセス内にキャッシュされる。
package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/hokenbot/internal/model"
)

// Store は保険会社ルールのファイルバックドキャッシュ。
// 初回アクセス時にディレクトリ内の全JSONファイルをロードし、
// 以降はキャッシュから返す。更新はファイルへ書き戻す。
type Store struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	cache  map[string]*model.Provider
	loaded bool
}

// NewStore はStoreを生成する。dirは保険会社JSONファイルのディレクトリ。
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*model.Provider),
	}
}

// rawProvider はファイル検証用の中間表現。
// 必須フィールドの欠落を検出するためポインタで受ける。
type rawProvider struct {
	Code        *string                    `json:"provider_code"`
	Name        *string                    `json:"provider_name"`
	Country     string                     `json:"country"`
	LastUpdated string                     `json:"last_updated"`
	Products    map[string]json.RawMessage `json:"products"`
}

type rawProduct struct {
	AgeMin      *int     `json:"age_min"`
	AgeMax      *int     `json:"age_max"`
	MaxRisk     *string  `json:"max_risk"`
	BasePremium *float64 `json:"base_premium"`
	Description string   `json:"description"`
}

// LoadAll は全保険会社ルールをディスクからロードしてキャッシュする。
// すでにロード済みの場合は何もしない。
// 1つも有効なファイルがない場合はエラーを返す。
func (s *Store) LoadAll() error {
	s.mu.RLock()
	if s.loaded {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// double-check: 待機中に別のゴルーチンがロード済みの可能性がある
	if s.loaded {
		return nil
	}

	return s.loadLocked()
}

// loadLocked はs.muのwrite lock保持下でディスクから全ファイルをロードする。
func (s *Store) loadLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return model.NewRuleStoreFailedError(fmt.Sprintf("ディレクトリを読み込めません: %s", s.dir))
	}

	cache := make(map[string]*model.Provider)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		p, err := s.loadFile(path)
		if err != nil {
			// 不正なファイルはスキップして残りを処理する
			s.logger.Warn("provider file skipped",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		cache[strings.ToLower(p.Code)] = p
	}

	if len(cache) == 0 {
		return model.NewRuleStoreFailedError(fmt.Sprintf("有効な保険会社ファイルがありません: %s", s.dir))
	}

	s.cache = cache
	s.loaded = true

	s.logger.Info("provider rules loaded",
		slog.String("dir", s.dir),
		slog.Int("providers", len(cache)),
	)

	return nil
}

// loadFile は1ファイルを読み込み検証する。
// 商品エントリのうち必須ルールフィールドが欠けたものはフェイルクローズ
// （未提供扱い）としてキャッシュから除外する。
func (s *Store) loadFile(path string) (*model.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.Code == nil || *raw.Code == "" {
		return nil, fmt.Errorf("missing required field: provider_code")
	}
	if raw.Name == nil || *raw.Name == "" {
		return nil, fmt.Errorf("missing required field: provider_name")
	}
	if raw.Products == nil {
		return nil, fmt.Errorf("missing required field: products")
	}

	products := make(map[string]model.ProductRule, len(raw.Products))
	for productType, rawRule := range raw.Products {
		var pr rawProduct
		if err := json.Unmarshal(rawRule, &pr); err != nil {
			s.logger.Warn("product rule skipped",
				slog.String("file", filepath.Base(path)),
				slog.String("product", productType),
				slog.String("error", err.Error()),
			)
			continue
		}
		if pr.AgeMin == nil || pr.AgeMax == nil || pr.MaxRisk == nil || pr.BasePremium == nil {
			s.logger.Warn("product rule skipped: missing rule fields",
				slog.String("file", filepath.Base(path)),
				slog.String("product", productType),
			)
			continue
		}
		tier, ok := model.ParseRiskTier(*pr.MaxRisk)
		if !ok {
			s.logger.Warn("product rule skipped: unknown max_risk",
				slog.String("file", filepath.Base(path)),
				slog.String("product", productType),
				slog.String("max_risk", *pr.MaxRisk),
			)
			continue
		}
		products[strings.ToLower(productType)] = model.ProductRule{
			AgeMin:      *pr.AgeMin,
			AgeMax:      *pr.AgeMax,
			MaxRisk:     tier,
			BasePremium: *pr.BasePremium,
			Description: pr.Description,
		}
	}

	return &model.Provider{
		Code:        *raw.Code,
		Name:        *raw.Name,
		Country:     raw.Country,
		LastUpdated: raw.LastUpdated,
		Products:    products,
	}, nil
}

// Get は指定コードの保険会社ルールを返す。
// 見つからない場合はUnknownProviderエラーを返す。
func (s *Store) Get(code string) (*model.Provider, error) {
	if err := s.LoadAll(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.cache[strings.ToLower(code)]
	if !ok {
		return nil, model.NewUnknownProviderError(code)
	}
	return copyProvider(p), nil
}

// List は利用可能な保険会社コードをソート済みで返す。
func (s *Store) List() ([]string, error) {
	if err := s.LoadAll(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.cache))
	for code := range s.cache {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// GetProductRules は指定保険会社の指定商品のルールを返す。
// 保険会社が未知の場合はUnknownProvider、商品が未提供の場合は
// ProductNotOfferedエラーを返す。
func (s *Store) GetProductRules(code, productType string) (*model.ProductRule, error) {
	p, err := s.Get(code)
	if err != nil {
		return nil, err
	}

	rule, ok := p.Products[strings.ToLower(productType)]
	if !ok {
		return nil, model.NewProductNotOfferedError(code, productType)
	}
	return &rule, nil
}

// UpdateProduct は指定商品のルールフィールドを上書き更新する。
// 更新はキャッシュとディスクの両方に反映され、last_updatedを更新する。
// 更新後のルールを返す。
func (s *Store) UpdateProduct(code, productType string, updates map[string]any) (*model.ProductRule, error) {
	if err := s.LoadAll(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codeLower := strings.ToLower(code)
	p, ok := s.cache[codeLower]
	if !ok {
		return nil, model.NewUnknownProviderError(code)
	}

	typeLower := strings.ToLower(productType)
	rule, ok := p.Products[typeLower]
	if !ok {
		return nil, model.NewProductNotOfferedError(code, productType)
	}

	updated := rule
	for field, value := range updates {
		if err := applyRuleField(&updated, field, value); err != nil {
			return nil, err
		}
	}

	newProvider := copyProvider(p)
	newProvider.Products[typeLower] = updated
	newProvider.LastUpdated = time.Now().Format("2006-01-02")

	if err := s.writeFile(codeLower, newProvider); err != nil {
		return nil, err
	}

	s.cache[codeLower] = newProvider
	return &updated, nil
}

// Reload はキャッシュを破棄してディスクから再ロードする。
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = false
	s.cache = make(map[string]*model.Provider)
	return s.loadLocked()
}

// writeFile は保険会社ルールを2スペースインデントのJSONで書き戻す。
func (s *Store) writeFile(codeLower string, p *model.Provider) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return model.NewRuleStoreFailedError(err.Error())
	}
	data = append(data, '\n')

	path := filepath.Join(s.dir, codeLower+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return model.NewRuleStoreFailedError(fmt.Sprintf("ファイルを書き込めません: %s", path))
	}
	return nil
}

// applyRuleField は更新フィールドを型検証のうえルールに適用する。
// JSON経由の数値はfloat64で届くため整数フィールドは整数性を検証する。
func applyRuleField(rule *model.ProductRule, field string, value any) error {
	switch field {
	case "age_min":
		n, ok := toInt(value)
		if !ok {
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("整数ではありません: %v", value))
		}
		rule.AgeMin = n
	case "age_max":
		n, ok := toInt(value)
		if !ok {
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("整数ではありません: %v", value))
		}
		rule.AgeMax = n
	case "base_premium":
		switch v := value.(type) {
		case float64:
			rule.BasePremium = v
		case int:
			rule.BasePremium = float64(v)
		default:
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("数値ではありません: %v", value))
		}
	case "max_risk":
		str, ok := value.(string)
		if !ok {
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("文字列ではありません: %v", value))
		}
		tier, ok := model.ParseRiskTier(str)
		if !ok {
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("未知のリスクティア: %s", str))
		}
		rule.MaxRisk = tier
	case "description":
		str, ok := value.(string)
		if !ok {
			return model.NewInvalidRuleFieldError(field, fmt.Sprintf("文字列ではありません: %v", value))
		}
		rule.Description = str
	default:
		return model.NewInvalidRuleFieldError(field, "更新可能なフィールドではありません")
	}
	return nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func copyProvider(p *model.Provider) *model.Provider {
	cp := *p
	cp.Products = make(map[string]model.ProductRule, len(p.Products))
	for k, v := range p.Products {
		cp.Products[k] = v
	}
	return &cp
}
