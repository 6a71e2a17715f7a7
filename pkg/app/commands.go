package app

import (
	"context"
	"fmt"
	"io"

	"github.com/flemzord/sandy/internal/mcp"
	"github.com/flemzord/sandy/internal/memory"
	"github.com/flemzord/sandy/internal/recall/api"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/tool"
	"github.com/flemzord/sandy/internal/tool/recalltool"
)

// BackfillParams configures a one-off vector backfill.
type BackfillParams struct {
	// DB overrides the archive database path.
	DB     string
	DryRun bool
	Limit  int
	Batch  int
}

// Backfill embeds every archived message missing from the vector store.
func Backfill(ctx context.Context, env *Env, p BackfillParams) (memory.BackfillStats, error) {
	store, err := env.OpenArchive(ctx, p.DB)
	if err != nil {
		return memory.BackfillStats{}, err
	}
	defer store.Close() //nolint:errcheck // read-mostly, best-effort close

	vec, err := env.OpenVector(ctx)
	if err != nil {
		return memory.BackfillStats{}, err
	}
	defer vec.Close() //nolint:errcheck // best-effort close

	backend, err := env.Backend()
	if err != nil {
		return memory.BackfillStats{}, err
	}
	pipeline := memory.NewPipeline(memory.Deps{
		Backend:   backend,
		Embedder:  backend,
		Scheduler: scheduler.New(scheduler.WithLogger(env.Logger), scheduler.WithMetrics(env.Metrics)),
		Index:     vec,
		Metrics:   env.Metrics,
		Logger:    env.Logger,
	}, memoryConfig(env))

	return pipeline.Backfill(ctx, store, vec, memory.BackfillOptions{
		Limit:  p.Limit,
		Batch:  p.Batch,
		DryRun: p.DryRun,
	})
}

// MCPParams configures the MCP server.
type MCPParams struct {
	// DB reads a local archive database instead of the archive API.
	DB      string
	Version string
}

// ServeMCP serves the archive tools over stdio until ctx is done or the
// client disconnects. The tools are unscoped: callers pick the server.
func ServeMCP(ctx context.Context, env *Env, p MCPParams, in io.Reader, out io.Writer) error {
	var lister recalltool.Lister
	if p.DB != "" {
		store, err := env.OpenArchive(ctx, p.DB)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best-effort close
		lister = store
	} else {
		lister = env.RecallClient()
	}

	formatter := recalltool.Formatter{Location: env.Location}
	if reg, err := env.OpenRegistry(ctx); err != nil {
		env.Logger.Warn("mcp: registry unavailable, showing archived names", "error", err)
	} else {
		defer reg.Close() //nolint:errcheck // best-effort close
		formatter.Names = reg
	}

	tools := tool.NewRegistry()
	if err := recalltool.Register(tools, lister, recalltool.Options{
		Formatter: formatter,
		Logger:    env.Logger,
		Unscoped:  true,
	}); err != nil {
		return fmt.Errorf("mcp: registering tools: %w", err)
	}

	s := mcp.NewServer(tool.NewDispatcher(tools, env.Logger), p.Version, env.Logger)
	return mcp.ServeStdio(ctx, s, in, out, env.Logger)
}

// RecallParams configures a standalone archive API.
type RecallParams struct {
	DB   string
	Bind string
}

// ServeRecall serves the archive API until ctx is done. Modules named in
// the config are not started.
func ServeRecall(ctx context.Context, env *Env, p RecallParams) error {
	store, err := env.OpenArchive(ctx, p.DB)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // best-effort close

	var cfg api.Config
	if node, ok := env.Config.Modules["recall.api"]; ok {
		if err := node.Decode(&cfg); err != nil {
			return fmt.Errorf("recall.api: decode config: %w", err)
		}
	}
	if p.Bind != "" {
		cfg.Bind = p.Bind
	}

	srv := api.New(cfg, store, env.Metrics, env.Logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return srv.Stop(context.Background())
}
