package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/flemzord/sandy/internal/agent"
	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/gate"
	"github.com/flemzord/sandy/internal/history"
	"github.com/flemzord/sandy/internal/memory"
	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/pkg/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGate struct {
	respond    bool
	mu         sync.Mutex
	narratives []string
	botNames   []string
}

func (g *fakeGate) Decide(_ context.Context, narrative, botName string) gate.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.narratives = append(g.narratives, narrative)
	g.botNames = append(g.botNames, botName)
	return gate.Decision{Respond: g.respond}
}

func (g *fakeGate) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.narratives)
}

type fakeAgent struct {
	GenerateFunc func(ctx context.Context, req agent.Request) (agent.Response, error)
	mu           sync.Mutex
	requests     []agent.Request
}

func (a *fakeAgent) Generate(ctx context.Context, req agent.Request) (agent.Response, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.GenerateFunc != nil {
		return a.GenerateFunc(ctx, req)
	}
	return agent.Response{Content: "hi there", Final: agent.StatePlainResponse}, nil
}

type fakeMemory struct {
	mu        sync.Mutex
	processed []message.Turn
	recalled  string
	block     chan struct{}
}

func (m *fakeMemory) Process(ctx context.Context, t message.Turn) memory.Result {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, t)
	return memory.Result{Stored: true}
}

func (m *fakeMemory) Recall(context.Context, string, int64) string {
	return m.recalled
}

func (m *fakeMemory) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.processed))
	for _, t := range m.processed {
		ids = append(ids, t.ID)
	}
	return ids
}

type fakeRegistry struct {
	seen atomic.Int32
}

func (r *fakeRegistry) EnsureSeen(context.Context, message.Turn) error {
	r.seen.Add(1)
	return nil
}

type fixture struct {
	router *Router
	cache  *history.Cache
	ch     *channel.MockChannel
	gate   *fakeGate
	agent  *fakeAgent
	memory *fakeMemory
	reg    *fakeRegistry
}

func newFixture(t *testing.T, respond bool, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		cache:  history.NewCache(10),
		ch:     channel.NewMockChannel("test", nil),
		gate:   &fakeGate{respond: respond},
		agent:  &fakeAgent{},
		memory: &fakeMemory{},
		reg:    &fakeRegistry{},
	}
	f.ch.SetSelf(message.Speaker{ID: 99, Name: "sandy", Bot: true})
	cfg := Config{
		WorkerCount:    2,
		Tools:          true,
		RAG:            true,
		TypingInterval: time.Hour,
		Cache:          f.cache,
		Channel:        f.ch,
		Gate:           f.gate,
		Agent:          f.agent,
		Memory:         f.memory,
		Registry:       f.reg,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	f.router = r
	return f
}

// waitWrittenBack blocks until n turns reached the memory pipeline, which
// happens after the handler is done with them.
func (f *fixture) waitWrittenBack(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(f.memory.ids()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("written back %d turns, want %d", len(f.memory.ids()), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTurn(id, content string) message.Turn {
	return message.Turn{
		ID:          id,
		Room:        message.RoomKey{ServerID: 1, ChannelID: 2},
		Type:        message.ChatGroup,
		ServerName:  "home",
		ChannelName: "general",
		Author:      message.Speaker{ID: 5, Name: "alice"},
		Content:     content,
		CreatedAt:   time.Now(),
	}
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewRouter(Config{})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("err = %v, want ErrMissingDependency", err)
	}
}

func TestRouter_AnswersWhenGateSaysYes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, nil)
	f.memory.recalled = "[2024-01-01 10:00 UTC] <bob>: remember the pizza"
	f.router.Start(context.Background())

	if err := f.router.Submit(newTurn("1", "hey <@99> what's up")); err != nil {
		t.Fatal(err)
	}
	f.waitWrittenBack(t, 1)
	f.router.Stop(context.Background())

	sent := f.ch.SentMessages()
	if len(sent) != 1 || sent[0].Text != "hi there" || sent[0].ChannelID != 2 {
		t.Fatalf("sent = %+v", sent)
	}
	if typed := f.ch.TypingChannels(); len(typed) == 0 || typed[0] != 2 {
		t.Errorf("typing = %v", typed)
	}

	req := f.agent.requests[0]
	if req.Scope.ServerID != 1 || req.Scope.ServerName != "home" || req.Channel != "general" {
		t.Errorf("request scope = %+v channel = %q", req.Scope, req.Channel)
	}
	if req.Memory != f.memory.recalled || !req.Tools || req.Persona.Name != "sandy" {
		t.Errorf("request = %+v", req)
	}
	if len(req.History) != 1 || req.History[0].Role != provider.MessageRoleUser {
		t.Errorf("history = %+v", req.History)
	}
	if f.gate.botNames[0] != "sandy" || !strings.Contains(f.gate.narratives[0], "hey <@99> what's up") {
		t.Errorf("gate saw %q for %q", f.gate.narratives, f.gate.botNames)
	}

	if ids := f.memory.ids(); len(ids) != 1 || ids[0] != "1" {
		t.Errorf("written back = %v", ids)
	}
	if f.reg.seen.Load() != 1 {
		t.Errorf("registry updates = %d", f.reg.seen.Load())
	}
	if f.cache.Snapshot(message.RoomKey{ServerID: 1, ChannelID: 2}).Len() != 1 {
		t.Error("turn not cached")
	}
}

func TestRouter_StaysQuietWhenGateSaysNo(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, nil)
	f.router.Start(context.Background())
	for _, id := range []string{"1", "2", "3"} {
		if err := f.router.Submit(newTurn(id, "chatter "+id)); err != nil {
			t.Fatal(err)
		}
	}
	f.waitWrittenBack(t, 3)
	f.router.Stop(context.Background())

	if len(f.ch.SentMessages()) != 0 || len(f.agent.requests) != 0 {
		t.Error("no reply expected")
	}
	if f.gate.calls() != 3 || len(f.memory.ids()) != 3 {
		t.Errorf("gate calls = %d, written back = %v", f.gate.calls(), f.memory.ids())
	}
}

func TestRouter_BotTurnsSkipTheGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, nil)
	f.router.Start(context.Background())

	own := newTurn("1", "hello from me")
	own.Author = message.Speaker{ID: 99, Name: "sandy", Bot: true}
	own.Self = true
	other := newTurn("2", "beep")
	other.Author.Bot = true

	for _, turn := range []message.Turn{own, other} {
		if err := f.router.Submit(turn); err != nil {
			t.Fatal(err)
		}
	}
	f.waitWrittenBack(t, 2)
	f.router.Stop(context.Background())

	if f.gate.calls() != 0 || len(f.ch.SentMessages()) != 0 {
		t.Errorf("gate calls = %d", f.gate.calls())
	}
	if len(f.memory.ids()) != 2 {
		t.Errorf("written back = %v", f.memory.ids())
	}
}

func TestRouter_GenerationErrorSendsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, nil)
	f.agent.GenerateFunc = func(context.Context, agent.Request) (agent.Response, error) {
		return agent.Response{}, provider.ErrProviderDown
	}
	f.router.Start(context.Background())
	if err := f.router.Submit(newTurn("1", "hey sandy")); err != nil {
		t.Fatal(err)
	}
	f.waitWrittenBack(t, 1)
	f.router.Stop(context.Background())

	if len(f.ch.SentMessages()) != 0 {
		t.Error("no reply expected after a backend error")
	}
	if len(f.memory.ids()) != 1 {
		t.Error("turn should still be written back")
	}
}

func TestRouter_EmptyReplyIsNotSent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, nil)
	f.agent.GenerateFunc = func(context.Context, agent.Request) (agent.Response, error) {
		return agent.Response{Content: "   "}, nil
	}
	f.router.Start(context.Background())
	if err := f.router.Submit(newTurn("1", "hey sandy")); err != nil {
		t.Fatal(err)
	}
	f.waitWrittenBack(t, 1)
	f.router.Stop(context.Background())

	if len(f.ch.SentMessages()) != 0 {
		t.Errorf("sent = %+v", f.ch.SentMessages())
	}
}

func TestRouter_InterimSendGoesToTheRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, nil)
	f.agent.GenerateFunc = func(ctx context.Context, req agent.Request) (agent.Response, error) {
		if err := req.Send(ctx, "let me check"); err != nil {
			return agent.Response{}, err
		}
		return agent.Response{Content: "found it"}, nil
	}
	f.router.Start(context.Background())
	if err := f.router.Submit(newTurn("1", "sandy what did bob say")); err != nil {
		t.Fatal(err)
	}
	f.waitWrittenBack(t, 1)
	f.router.Stop(context.Background())

	sent := f.ch.SentMessages()
	if len(sent) != 2 || sent[0].Text != "let me check" || sent[1].Text != "found it" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestRouter_InboxFullStillWritesBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, func(c *Config) { c.InboxSize = 1 })
	// Not started: the inbox fills after one turn.
	if err := f.router.Submit(newTurn("1", "a")); err != nil {
		t.Fatal(err)
	}
	if err := f.router.Submit(newTurn("2", "b")); !errors.Is(err, ErrInboxFull) {
		t.Fatalf("err = %v, want ErrInboxFull", err)
	}
	f.router.Start(context.Background())
	f.router.Stop(context.Background())

	ids := f.memory.ids()
	if len(ids) != 2 {
		t.Errorf("written back = %v, want both turns", ids)
	}
	if f.cache.Snapshot(message.RoomKey{ServerID: 1, ChannelID: 2}).Len() != 2 {
		t.Error("both turns should be cached")
	}
}

func TestRouter_SubmitAfterStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, nil)
	f.router.Start(context.Background())
	f.router.Stop(context.Background())
	f.router.Stop(context.Background())

	if err := f.router.Submit(newTurn("1", "late")); !errors.Is(err, ErrRouterStopped) {
		t.Errorf("err = %v, want ErrRouterStopped", err)
	}
}

func TestRouter_StopDrainsWriteBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, nil)
	f.memory.block = make(chan struct{})
	f.router.Start(context.Background())
	if err := f.router.Submit(newTurn("1", "slow")); err != nil {
		t.Fatal(err)
	}

	stopped := make(chan struct{})
	go func() {
		f.router.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before write-back finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(f.memory.block)
	<-stopped

	if len(f.memory.ids()) != 1 {
		t.Error("write-back lost")
	}
}

func TestRouter_StopDeadlineCancelsWriteBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, nil)
	f.memory.block = make(chan struct{})
	f.router.Start(context.Background())
	if err := f.router.Submit(newTurn("1", "stuck")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f.router.Stop(ctx)
}

func TestRouter_SameRoomIsSerialized(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	f := newFixture(t, true, func(c *Config) { c.WorkerCount = 4 })
	f.agent.GenerateFunc = func(context.Context, agent.Request) (agent.Response, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return agent.Response{Content: "ok"}, nil
	}
	f.router.Start(context.Background())
	for _, id := range []string{"1", "2", "3", "4"} {
		if err := f.router.Submit(newTurn(id, "hey sandy")); err != nil {
			t.Fatal(err)
		}
	}
	f.waitWrittenBack(t, 4)
	f.router.Stop(context.Background())

	if peak.Load() != 1 {
		t.Errorf("peak concurrent generations in one room = %d, want 1", peak.Load())
	}
	if f.router.laneLock.Len() != 0 {
		t.Errorf("lanes left behind: %d", f.router.laneLock.Len())
	}
}
