package tool_test

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/flemzord/sandy/internal/tool"
	"github.com/flemzord/sandy/internal/tool/tooltest"
)

func TestRegistryRegister_EmptyName(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry()
	err := r.Register(&tooltest.MockTool{NameValue: "   "})
	if !errors.Is(err, tool.ErrEmptyToolName) {
		t.Fatalf("expected ErrEmptyToolName, got %v", err)
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry()
	if err := r.Register(&tooltest.MockTool{NameValue: "a"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&tooltest.MockTool{NameValue: "a"}); !errors.Is(err, tool.ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryRegister_BadSchema(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry()
	err := r.Register(&tooltest.MockTool{NameValue: "a", SchemaValue: json.RawMessage(`{"type": 5}`)})
	if err == nil {
		t.Fatal("expected schema compile error")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	t.Parallel()

	if _, err := tool.NewRegistry().Get("nope"); !errors.Is(err, tool.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistry_NamesAndDefinitionsSorted(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry()
	for _, n := range []string{"search_messages", "get_chat_history"} {
		if err := r.Register(&tooltest.MockTool{NameValue: n}); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"get_chat_history", "search_messages"}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != want[0] || defs[1].Name != want[1] {
		t.Errorf("Definitions = %+v", defs)
	}
	if string(defs[0].Parameters) != `{"type":"object"}` || defs[0].Description == "" {
		t.Errorf("definition should carry schema and description: %+v", defs[0])
	}
}
