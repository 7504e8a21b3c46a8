package tool

import (
	"context"
	"encoding/json"
	"testing"
)

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "test tool",
		InputSchema: map[string]any{"type": "object"},
		Run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return nil, nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(noopTool("calculate_age")); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	got, ok := r.Get("calculate_age")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if got.Name != "calculate_age" {
		t.Errorf("Name = %q, want %q", got.Name, "calculate_age")
	}

	if _, ok := r.Get("unknown_tool"); ok {
		t.Error("expected unknown tool to not be found")
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(noopTool("estimate_premium")); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}
	if err := r.Register(noopTool("estimate_premium")); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistry_RejectsInvalidTools(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil tool")
	}
	if err := r.Register(noopTool("")); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register(noopTool("   ")); err == nil {
		t.Error("expected error for blank name")
	}
	if err := r.Register(&Tool{Name: "no_run"}); err == nil {
		t.Error("expected error for tool without run function")
	}
}

func TestRegistry_ListSortedByName(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(noopTool(name)); err != nil {
			t.Fatalf("Register(%q) returned error: %v", name, err)
		}
	}

	tools := r.List()
	if len(tools) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(tools))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range tools {
		if tool.Name != want[i] {
			t.Errorf("List()[%d].Name = %q, want %q", i, tool.Name, want[i])
		}
	}
}
