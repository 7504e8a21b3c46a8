package tool

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry はツールを一意な名前で保持する。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		tools: map[string]*Tool{},
	}
}

// Register はツールを登録する。名前の重複はエラー。
func (r *Registry) Register(t *Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %s has no run function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = t
	return nil
}

// Get は名前でツールを取得する。
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List は登録済みツールを名前順で返す。
// モデルへのツール定義送信順を安定させるためソートする。
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}
