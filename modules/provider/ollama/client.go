package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/flemzord/sandy/internal/provider"
)

// ollama wire types.

type chatRequest struct {
	Model     string          `json:"model"`
	Messages  []chatMessage   `json:"messages"`
	Tools     []chatTool      `json:"tools,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   *chatOptions    `json:"options,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Stream    bool            `json:"stream"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type chatToolCall struct {
	Function chatFunctionCall `json:"function"`
}

// chatFunctionCall carries arguments as a JSON object, not a string.
type chatFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function chatToolDef `json:"function"`
}

type chatToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type errorBody struct {
	Error string `json:"error"`
}

// buildRequest converts a provider.CompletionRequest to the /api/chat shape.
func buildRequest(defaultModel string, req provider.CompletionRequest) chatRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == provider.MessageRoleTool {
			msg.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			args := tc.Arguments
			if len(bytes.TrimSpace(args)) == 0 {
				args = json.RawMessage(`{}`)
			}
			msg.ToolCalls = append(msg.ToolCalls, chatToolCall{
				Function: chatFunctionCall{Name: tc.Name, Arguments: args},
			})
		}
		messages[i] = msg
	}

	out := chatRequest{
		Model:     model,
		Messages:  messages,
		Format:    req.Format,
		KeepAlive: req.KeepAlive,
	}

	o := req.Options
	if o.Temperature != nil || o.NumPredict != 0 || o.NumCtx != 0 {
		out.Options = &chatOptions{Temperature: o.Temperature, NumPredict: o.NumPredict, NumCtx: o.NumCtx}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type:     "function",
			Function: chatToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// parseResponse converts the /api/chat reply. Ollama does not assign tool
// call ids, so one is minted per call.
func parseResponse(r chatResponse) provider.CompletionResponse {
	out := provider.CompletionResponse{
		Content:      r.Message.Content,
		FinishReason: provider.FinishReasonStop,
		Usage: provider.TokenUsage{
			PromptTokens:     r.PromptEvalCount,
			CompletionTokens: r.EvalCount,
			TotalTokens:      r.PromptEvalCount + r.EvalCount,
		},
	}
	if r.DoneReason == "length" {
		out.FinishReason = provider.FinishReasonLength
	}
	for _, tc := range r.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = provider.FinishReasonToolUse
	}
	return out
}

// doRequest sends a JSON request and returns the raw response.
func (p *Provider) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Caller cancellation is not a backend failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps HTTP error status codes to sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := string(raw)
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusBadRequest:
		if isContextLengthError(msg) {
			return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
		}
		return fmt.Errorf("%w: %s", provider.ErrBadRequest, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrAuthentication, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusNotFound:
		// Unknown model.
		return fmt.Errorf("%w: %s", provider.ErrBadRequest, msg)
	default:
		return fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, msg)
	}
}

func isContextLengthError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context window") ||
		strings.Contains(lower, "too many tokens")
}
