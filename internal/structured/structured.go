// Package structured runs schema-constrained backend calls: the JSON schema
// is sent as the request format and the reply is validated against the same
// schema before it is decoded.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/scheduler"
)

// ErrSchema is returned when a document does not conform to its schema.
var ErrSchema = errors.New("structured: document does not match schema")

// Schema is a compiled JSON schema.
type Schema struct {
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

// MustSchema compiles raw or panics. Intended for package-level vars.
func MustSchema(raw string) *Schema {
	s, err := NewSchema(json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchema compiles raw.
func NewSchema(raw json.RawMessage) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("structured: compiling schema: %w", err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// Raw returns the schema document.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks data against the schema.
func (s *Schema) Validate(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("%w: not valid JSON", ErrSchema)
	}
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}
	return nil
}

// Decode validates content and unmarshals it into v.
func (s *Schema) Decode(content string, v any) error {
	data := []byte(strings.TrimSpace(content))
	if err := s.Validate(data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}

// Call describes one structured request.
type Call struct {
	Model     string
	System    string
	User      string
	KeepAlive string
	Role      scheduler.Role
	Priority  scheduler.Priority
}

// Ask runs call through the scheduler and decodes the schema-checked reply
// into v. Scheduler refusals (ErrBusy), backend errors and schema failures
// are all returned; callers choose their own safe default.
func Ask(ctx context.Context, backend provider.Provider, sched *scheduler.Scheduler, schema *Schema, call Call, v any) error {
	req := provider.CompletionRequest{
		Model: call.Model,
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: call.System},
			{Role: provider.MessageRoleUser, Content: call.User},
		},
		Format:    schema.Raw(),
		KeepAlive: call.KeepAlive,
	}

	var resp provider.CompletionResponse
	err := sched.Do(ctx, call.Role, call.Priority, func(ctx context.Context) error {
		var err error
		resp, err = backend.Complete(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	return schema.Decode(resp.Content, v)
}
