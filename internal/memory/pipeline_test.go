package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/provider/providertest"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/vector"
	"github.com/flemzord/sandy/pkg/message"
)

type fakeArchive struct {
	mu      sync.Mutex
	created []recall.Message
	list    []recall.Message
	err     error
}

func (f *fakeArchive) Create(_ context.Context, m recall.Message) (recall.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return recall.Message{}, f.err
	}
	m.ID = int64(len(f.created) + 1)
	f.created = append(f.created, m)
	return m, nil
}

func (f *fakeArchive) List(_ context.Context, _ recall.Query) ([]recall.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.err
}

type fakeIndex struct {
	mu      sync.Mutex
	records []vector.Record
	matches []vector.Match
}

func (f *fakeIndex) Upsert(_ context.Context, r vector.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeIndex) Query(context.Context, []float64, int, int64) ([]vector.Match, error) {
	return f.matches, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backend answers the tagger and summarizer by looking at the system prompt.
func backend(tags, summary string) *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			if strings.Contains(req.Messages[0].Content, "tags") {
				return provider.CompletionResponse{Content: tags}, nil
			}
			return provider.CompletionResponse{Content: summary}, nil
		},
		EmbedFunc: func(context.Context, provider.EmbedRequest) ([][]float64, error) {
			return [][]float64{{0.1, 0.2}}, nil
		},
	}
}

func testTurn(content string) message.Turn {
	return message.Turn{
		ID:          "987",
		Room:        message.RoomKey{ServerID: 1, ChannelID: 2},
		Type:        message.ChatGroup,
		ServerName:  "home",
		ChannelName: "general",
		Author:      message.Speaker{ID: 5, Name: "alice", DisplayName: "Alice"},
		Content:     content,
		CreatedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessShortMessage(t *testing.T) {
	t.Parallel()

	mock := backend(`{"tags": ["- Gaming", "—plans", "", "gaming", "extra", "more"]}`, `{"summary": "unused"}`)
	archive := &fakeArchive{}
	index := &fakeIndex{}
	p := NewPipeline(Deps{
		Backend: mock, Embedder: mock, Scheduler: scheduler.New(),
		Archive: archive, Index: index, Logger: discard(),
	}, Config{})

	res := p.Process(context.Background(), testTurn("raid tonight?"))

	if got := strings.Join(res.Tags, ","); got != "gaming,plans,extra" {
		t.Errorf("tags = %q", got)
	}
	if res.Summary != "" {
		t.Errorf("short message summarised: %q", res.Summary)
	}
	if mock.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1 (tagger only)", mock.Calls())
	}
	if !res.Stored || !res.Embedded {
		t.Errorf("result = %+v", res)
	}

	if len(archive.created) != 1 || archive.created[0].MessageID != "987" || archive.created[0].AuthorName != "Alice" {
		t.Errorf("archived = %+v", archive.created)
	}
	if len(index.records) != 1 || index.records[0].ID != "987" || index.records[0].ServerID != 1 {
		t.Errorf("embedded = %+v", index.records)
	}
}

func TestProcessLongMessageIsSummarised(t *testing.T) {
	t.Parallel()

	mock := backend(`{"tags": ["story"]}`, `{"summary": "  The author tells a long story.  "}`)
	archive := &fakeArchive{}
	p := NewPipeline(Deps{Backend: mock, Scheduler: scheduler.New(), Archive: archive, Logger: discard()}, Config{})

	res := p.Process(context.Background(), testTurn(strings.Repeat("word ", 40)))
	if res.Summary != "The author tells a long story." {
		t.Errorf("summary = %q", res.Summary)
	}
	if archive.created[0].Summary != res.Summary {
		t.Errorf("summary not archived: %+v", archive.created[0])
	}
}

func TestProcessEmptyContent(t *testing.T) {
	t.Parallel()

	mock := backend(`{"tags": ["x"]}`, `{"summary": "x"}`)
	archive := &fakeArchive{}
	index := &fakeIndex{}
	p := NewPipeline(Deps{
		Backend: mock, Embedder: mock, Scheduler: scheduler.New(),
		Archive: archive, Index: index, Logger: discard(),
	}, Config{})

	res := p.Process(context.Background(), testTurn(""))
	if mock.Calls() != 0 {
		t.Errorf("backend called %d times for an empty turn", mock.Calls())
	}
	if archive.created[0].Content != message.EmptyPlaceholder {
		t.Errorf("content = %q, want placeholder", archive.created[0].Content)
	}
	if res.Embedded || len(index.records) != 0 {
		t.Error("empty turn should not be embedded")
	}
}

func TestProcessDegradesOnFailures(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: "not json"}, nil
		},
		EmbedFunc: func(context.Context, provider.EmbedRequest) ([][]float64, error) {
			return nil, provider.ErrProviderDown
		},
	}
	archive := &fakeArchive{err: recall.ErrUnreachable}
	p := NewPipeline(Deps{
		Backend: mock, Embedder: mock, Scheduler: scheduler.New(),
		Archive: archive, Index: &fakeIndex{}, Logger: discard(),
	}, Config{})

	res := p.Process(context.Background(), testTurn(strings.Repeat("long text ", 30)))
	if res.Tags != nil || res.Summary != "" || res.Stored || res.Embedded {
		t.Errorf("expected every step to degrade, got %+v", res)
	}
}

func TestProcessSkipsBackgroundWhenBusy(t *testing.T) {
	t.Parallel()

	mock := backend(`{"tags": ["x"]}`, `{"summary": "x"}`)
	sched := scheduler.New(scheduler.WithBackgroundSkip(true))
	release, err := sched.Acquire(context.Background(), scheduler.RoleGenerate)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	archive := &fakeArchive{}
	p := NewPipeline(Deps{Backend: mock, Scheduler: sched, Archive: archive, Logger: discard()}, Config{})
	res := p.Process(context.Background(), testTurn("hello"))
	if res.Tags != nil || mock.Calls() != 0 {
		t.Errorf("tagger should be skipped while busy: %+v", res)
	}
	if !res.Stored {
		t.Error("archive must not depend on the backend")
	}
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	if got := NormalizeTags([]string{" ", "-"}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	got := NormalizeTags([]string{"Food", "—Recipes", "food"})
	if strings.Join(got, ",") != "food,recipes" {
		t.Errorf("got %v", got)
	}
}

func TestRecallFiltersByDistance(t *testing.T) {
	t.Parallel()

	mock := backend("", "")
	index := &fakeIndex{matches: []vector.Match{
		{Record: vector.Record{AuthorName: "Dave", Document: "tarkov tonight", Timestamp: time.Date(2024, 2, 20, 22, 32, 0, 0, time.UTC)}, Distance: 0.2},
		{Record: vector.Record{AuthorName: "Eve", Document: "unrelated"}, Distance: 0.9},
	}}
	p := NewPipeline(Deps{Embedder: mock, Scheduler: scheduler.New(), Index: index, Logger: discard()}, Config{})

	got := p.Recall(context.Background(), "video games", 1)
	if got != "[2024-02-20 22:32 UTC] <Dave>: tarkov tonight" {
		t.Errorf("Recall = %q", got)
	}
	if p.Recall(context.Background(), "   ", 1) != "" {
		t.Error("blank query should recall nothing")
	}
}

func TestRecallEmbeddingError(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{EmbedFunc: func(context.Context, provider.EmbedRequest) ([][]float64, error) {
		return nil, errors.New("boom")
	}}
	p := NewPipeline(Deps{Embedder: mock, Scheduler: scheduler.New(), Index: &fakeIndex{}, Logger: discard()}, Config{})
	if got := p.Recall(context.Background(), "anything", 1); got != "" {
		t.Errorf("Recall = %q, want empty", got)
	}
}

// deadlineArchive refuses writes on a done context, like a real client.
type deadlineArchive struct{ fakeArchive }

func (d *deadlineArchive) Create(ctx context.Context, m recall.Message) (recall.Message, error) {
	if err := ctx.Err(); err != nil {
		return recall.Message{}, err
	}
	return d.fakeArchive.Create(ctx, m)
}

func TestProcessArchivesAfterStarvedTagger(t *testing.T) {
	t.Parallel()

	sched := scheduler.New()
	release, err := sched.Acquire(context.Background(), scheduler.RoleGenerate)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	arch := &deadlineArchive{}
	p := NewPipeline(Deps{
		Backend:   backend(`{"tags": ["food"]}`, `{"summary": "x"}`),
		Scheduler: sched,
		Archive:   arch,
		Logger:    discard(),
	}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := p.Process(ctx, testTurn("pizza friday?"))

	if len(res.Tags) != 0 {
		t.Errorf("tags = %v, the tagger never got the backend", res.Tags)
	}
	if !res.Stored {
		t.Fatal("turn should be archived even though the tagger timed out")
	}
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.created) != 1 || arch.created[0].Content != "pizza friday?" {
		t.Errorf("archived = %+v", arch.created)
	}
}
