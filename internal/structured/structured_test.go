package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/provider/providertest"
	"github.com/flemzord/sandy/internal/scheduler"
)

var flagSchema = MustSchema(`{
  "type": "object",
  "properties": {"ok": {"type": "boolean"}, "note": {"type": "string"}},
  "required": ["ok", "note"]
}`)

type flag struct {
	OK   bool   `json:"ok"`
	Note string `json:"note"`
}

func TestSchema_Decode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", `{"ok": true, "note": "fine"}`, false},
		{"surrounding whitespace", "\n {\"ok\": false, \"note\": \"\"} \n", false},
		{"missing field", `{"ok": true}`, true},
		{"wrong type", `{"ok": "yes", "note": "x"}`, true},
		{"not json", `sure thing!`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var f flag
			err := flagSchema.Decode(tt.content, &f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrSchema) {
				t.Errorf("err should wrap ErrSchema: %v", err)
			}
		})
	}
}

func TestNewSchema_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := NewSchema([]byte(`{"type": 12}`)); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: `{"ok": true, "note": "n"}`}, nil
		},
	}
	var f flag
	err := Ask(context.Background(), mock, scheduler.New(), flagSchema, Call{
		Model:  "small",
		System: "sys",
		User:   "usr",
		Role:   scheduler.RoleClassify,
	}, &f)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !f.OK || f.Note != "n" {
		t.Errorf("decoded %+v", f)
	}

	req := mock.Request(0)
	if req.Model != "small" || string(req.Format) != string(flagSchema.Raw()) {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.MessageRoleSystem || req.Messages[1].Content != "usr" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestAsk_BackendError(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, provider.ErrProviderDown
		},
	}
	var f flag
	err := Ask(context.Background(), mock, scheduler.New(), flagSchema, Call{Role: scheduler.RoleGate}, &f)
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}
