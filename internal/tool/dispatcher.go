package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Dispatcher executes tool calls requested by the model.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the named tool and returns its text. It never returns an
// error: failures are rendered as text so the model can read them.
//
// For scoped tools any server fields the model supplied are discarded, the
// remaining arguments are checked against the tool schema, and the caller's
// scope is written in before execution.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage, scope Scope) (out string) {
	e, err := d.registry.lookup(name)
	if err != nil {
		d.logger.Warn("tool: unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: unknown tool '%s'.", name)
	}

	fields, err := decodeArgs(args)
	if err != nil {
		return executionError(name, err)
	}
	if e.tool.Scoped() {
		delete(fields, ArgServerID)
		delete(fields, ArgServer)
	}
	d.logger.Info("tool: dispatch", "tool", name, "args", withoutServer(fields))

	payload, err := json.Marshal(fields)
	if err != nil {
		return executionError(name, err)
	}
	if err := e.schema.Validate(payload); err != nil {
		return executionError(name, fmt.Errorf("%w: %w", ErrInvalidArguments, err))
	}
	if e.tool.Scoped() {
		fields[ArgServerID] = scope.ServerID
		fields[ArgServer] = scope.ServerName
		if payload, err = json.Marshal(fields); err != nil {
			return executionError(name, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool: panic", "tool", name, "panic", r)
			out = executionError(name, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := e.tool.Execute(ctx, payload, scope)
	if err != nil {
		d.logger.Warn("tool: execution failed", "tool", name, "error", err)
		return executionError(name, err)
	}
	return result
}

func decodeArgs(args json.RawMessage) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return fields, nil
}

func executionError(name string, err error) string {
	return fmt.Sprintf("Error executing %s: %v", name, err)
}

func withoutServer(fields map[string]any) map[string]any {
	if _, ok := fields[ArgServerID]; !ok {
		if _, ok := fields[ArgServer]; !ok {
			return fields
		}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != ArgServerID && k != ArgServer {
			out[k] = v
		}
	}
	return out
}
