// Package ollama provides the inference backend module. It speaks ollama's
// native HTTP API: /api/chat for completions (with tools and structured
// output), /api/embed for embeddings, and /api/tags for health probes.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/provider"
)

// ServiceName is the AppContext key the provider registers under.
const ServiceName = "provider.ollama"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is the ollama backend.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New builds a ready-to-use provider outside the module lifecycle, as the
// CLI subcommands do.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Provider{config: cfg, logger: logger}
	p.client = newHTTPClient(cfg)
	return p, nil
}

func newHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ServiceName,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.client = newHTTPClient(p.config)
	ctx.RegisterService(ServiceName, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.doRequest(ctx, http.MethodPost, "/api/chat", buildRequest(p.config.Model, req))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(cr), nil
}

// Embed implements provider.Embedder.
func (p *Provider) Embed(ctx context.Context, req provider.EmbedRequest) ([][]float64, error) {
	if len(req.Input) == 0 {
		return nil, nil
	}
	resp, err := p.doRequest(ctx, http.MethodPost, "/api/embed", embedRequest{
		Model:     req.Model,
		Input:     req.Input,
		KeepAlive: req.KeepAlive,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(er.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", provider.ErrEmptyEmbedding, len(er.Embeddings), len(req.Input))
	}
	return er.Embeddings, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker by listing local models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}

// Compile-time interface assertions.
var (
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.Embedder      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)
