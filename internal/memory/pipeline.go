// Package memory is the agent's long-term memory: the write-back pipeline
// that tags, summarises, archives and embeds every observed turn, the
// semantic recall block injected before generation, and the startup seed of
// the history cache.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/structured"
	"github.com/flemzord/sandy/internal/telemetry"
	"github.com/flemzord/sandy/internal/vector"
	"github.com/flemzord/sandy/pkg/message"
)

// Defaults.
const (
	DefaultSummarizeThreshold = 144
	DefaultMaxDistance        = 0.6
	DefaultResults            = 5
	DefaultArchiveTimeout     = 10 * time.Second
	MaxTags                   = 3
)

// Archive is the long-term message store.
type Archive interface {
	Create(ctx context.Context, m recall.Message) (recall.Message, error)
	List(ctx context.Context, q recall.Query) ([]recall.Message, error)
}

// Index is the embedding index.
type Index interface {
	Upsert(ctx context.Context, r vector.Record) error
	Query(ctx context.Context, embedding []float64, n int, serverID int64) ([]vector.Match, error)
}

// Config tunes the pipeline.
type Config struct {
	TaggerModel     string
	SummarizerModel string
	EmbedModel      string
	KeepAlive       string

	// SummarizeThreshold is the content length (in characters) above which
	// a summary is produced.
	SummarizeThreshold int
	DisableTagger      bool
	DisableSummarizer  bool

	// ArchiveTimeout bounds the archive write. It is measured from the
	// write itself, not from the start of Process.
	ArchiveTimeout time.Duration

	// MaxDistance discards recall matches further than this.
	MaxDistance float64
	Results     int
	Location    *time.Location
}

func (c *Config) defaults() {
	if c.SummarizeThreshold <= 0 {
		c.SummarizeThreshold = DefaultSummarizeThreshold
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = DefaultMaxDistance
	}
	if c.Results <= 0 {
		c.Results = DefaultResults
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = DefaultArchiveTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Deps are the collaborators of a Pipeline. Archive and Index may be nil,
// which disables the matching step.
type Deps struct {
	Backend   provider.Provider
	Embedder  provider.Embedder
	Scheduler *scheduler.Scheduler
	Archive   Archive
	Index     Index
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// Pipeline writes observed turns to long-term memory.
type Pipeline struct {
	Deps
	cfg Config
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps Deps, cfg Config) *Pipeline {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{Deps: deps, cfg: cfg}
}

// Result reports what Process managed to do. Nothing in it is an error:
// every step degrades on its own.
type Result struct {
	Tags     []string
	Summary  string
	Archived recall.Message
	Stored   bool
	Embedded bool
}

// Process tags, summarises, archives and embeds one turn. Archive and
// embedding run concurrently; failures are logged and never returned.
//
// ctx bounds the backend steps, which may wait on the scheduler. The
// archive write is detached from it so a turn that waited too long for
// tags is still stored untagged.
func (p *Pipeline) Process(ctx context.Context, t message.Turn) Result {
	var res Result

	if t.HasText() && !p.cfg.DisableTagger {
		res.Tags = p.tag(ctx, t.Content)
	}
	if t.HasText() && !p.cfg.DisableSummarizer && utf8.RuneCountInString(t.Content) > p.cfg.SummarizeThreshold {
		res.Summary = p.summarize(ctx, t.Content)
	}

	var g errgroup.Group
	g.Go(func() error {
		res.Archived, res.Stored = p.archive(ctx, t, res.Tags, res.Summary)
		return nil
	})
	g.Go(func() error {
		res.Embedded = p.embedTurn(ctx, t)
		return nil
	})
	_ = g.Wait()

	p.Logger.Info("memory: stored",
		"author", t.Author.Display(),
		"server", t.ServerName,
		"channel", t.ChannelName,
		"tags", res.Tags,
		"summary", res.Summary != "",
		"archived", res.Stored,
		"embedded", res.Embedded,
	)
	return res
}

func (p *Pipeline) tag(ctx context.Context, content string) []string {
	var out struct {
		Tags []string `json:"tags"`
	}
	err := p.ask(ctx, tagSchema, structured.Call{
		Model:  p.cfg.TaggerModel,
		System: taggerSystem,
		User:   taggerUser(content),
		Role:   scheduler.RoleClassify,
	}, &out)
	if err != nil {
		p.logStepFailure("tagger", err)
		p.Metrics.RecordWriteback("tag", false)
		return nil
	}
	p.Metrics.RecordWriteback("tag", true)
	return NormalizeTags(out.Tags)
}

func (p *Pipeline) summarize(ctx context.Context, content string) string {
	var out struct {
		Summary string `json:"summary"`
	}
	err := p.ask(ctx, summarySchema, structured.Call{
		Model:  p.cfg.SummarizerModel,
		System: summarizerSystem,
		User:   summarizerUser(content),
		Role:   scheduler.RoleCondense,
	}, &out)
	if err != nil {
		p.logStepFailure("summarizer", err)
		p.Metrics.RecordWriteback("summary", false)
		return ""
	}
	p.Metrics.RecordWriteback("summary", true)
	summary := strings.TrimSpace(out.Summary)
	if utf8.RuneCountInString(summary) > recall.MaxSummary {
		summary = string([]rune(summary)[:recall.MaxSummary])
	}
	return summary
}

func (p *Pipeline) ask(ctx context.Context, schema *structured.Schema, call structured.Call, v any) error {
	if p.Backend == nil || p.Scheduler == nil {
		return errors.New("memory: no backend")
	}
	call.KeepAlive = p.cfg.KeepAlive
	call.Priority = scheduler.Background
	return structured.Ask(ctx, p.Backend, p.Scheduler, schema, call, v)
}

func (p *Pipeline) archive(ctx context.Context, t message.Turn, tags []string, summary string) (recall.Message, bool) {
	if p.Archive == nil {
		return recall.Message{}, false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ArchiveTimeout)
	defer cancel()
	stored, err := p.Archive.Create(ctx, recall.FromTurn(t, tags, summary))
	if err != nil {
		if errors.Is(err, recall.ErrUnreachable) {
			p.Logger.Warn("memory: archive unreachable, message not stored", "channel_id", t.Room.ChannelID, "error", err)
		} else {
			p.Logger.Error("memory: archive rejected message", "channel_id", t.Room.ChannelID, "error", err)
		}
		p.Metrics.RecordWriteback("archive", false)
		return recall.Message{}, false
	}
	p.Metrics.RecordWriteback("archive", true)
	return stored, true
}

// embedTurn embeds the raw content under the platform message id.
func (p *Pipeline) embedTurn(ctx context.Context, t message.Turn) bool {
	if p.Index == nil || p.Embedder == nil || !Embeddable(t.Content) {
		return false
	}
	err := p.Embed(ctx, vector.Record{
		ID:         t.ID,
		ServerID:   t.Room.ServerID,
		AuthorName: t.Author.Display(),
		Timestamp:  t.CreatedAt,
		Document:   t.Content,
	}, scheduler.Background)
	if err != nil {
		p.logStepFailure("vector", err)
		p.Metrics.RecordWriteback("vector", false)
		return false
	}
	p.Metrics.RecordWriteback("vector", true)
	return true
}

// Embed computes r's embedding from its document and upserts it.
func (p *Pipeline) Embed(ctx context.Context, r vector.Record, prio scheduler.Priority) error {
	if p.Index == nil || p.Embedder == nil {
		return errors.New("memory: vector memory disabled")
	}
	emb, err := p.embed(ctx, r.Document, prio)
	if err != nil {
		return err
	}
	r.Embedding = emb
	return p.Index.Upsert(ctx, r)
}

func (p *Pipeline) embed(ctx context.Context, text string, prio scheduler.Priority) ([]float64, error) {
	var vecs [][]float64
	err := p.Scheduler.Do(ctx, scheduler.RoleEmbed, prio, func(ctx context.Context) error {
		var err error
		vecs, err = p.Embedder.Embed(ctx, provider.EmbedRequest{
			Model:     p.cfg.EmbedModel,
			Input:     []string{text},
			KeepAlive: p.cfg.KeepAlive,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, provider.ErrEmptyEmbedding
	}
	return vecs[0], nil
}

func (p *Pipeline) logStepFailure(step string, err error) {
	if errors.Is(err, scheduler.ErrBusy) {
		p.Logger.Debug("memory: step skipped, backend busy", "step", step)
		return
	}
	p.Logger.Warn("memory: step failed", "step", step, "error", err)
}

// Embeddable reports whether content is worth embedding.
func Embeddable(content string) bool {
	s := strings.TrimSpace(content)
	return s != "" && s != message.EmptyPlaceholder
}

// NormalizeTags lowercases and trims tags, strips leading dashes, drops
// empties and duplicates, and keeps at most MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), MaxTags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "-—"))
		t = strings.ToLower(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
