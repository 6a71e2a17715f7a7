package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/pkg/message"
)

type restRecorder struct {
	mu    sync.Mutex
	posts []map[string]any
	paths []string
}

func (r *restRecorder) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/users/@me":
			writeJSON(t, w, http.StatusOK, map[string]any{"id": "42", "username": "sandy", "bot": true})
			return
		case req.Method == http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(req.Body).Decode(&body)
			r.mu.Lock()
			r.posts = append(r.posts, body)
			r.paths = append(r.paths, req.URL.Path)
			r.mu.Unlock()
			if body == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"id": "1"})
		}
	})
}

func (r *restRecorder) snapshot() ([]string, []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...), append([]map[string]any(nil), r.posts...)
}

func newTestDiscord(t *testing.T, cfg Config) *Discord {
	t.Helper()
	cfg.defaults()
	d := &Discord{config: cfg}
	if err := d.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	return d
}

func TestDiscord_SendSplitsAndReplies(t *testing.T) {
	t.Parallel()

	rec := &restRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	d := newTestDiscord(t, Config{Token: "T", APIURL: srv.URL, MaxMessageLength: 10})
	err := d.Send(context.Background(), message.Outbound{
		ChannelID: 10,
		Text:      "first line\nsecond line",
		ReplyToID: "99",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	paths, posts := rec.snapshot()
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if paths[0] != "/channels/10/messages" {
		t.Errorf("path = %q", paths[0])
	}
	if _, ok := posts[0]["message_reference"]; !ok {
		t.Error("first chunk should reply")
	}
	if _, ok := posts[1]["message_reference"]; ok {
		t.Error("second chunk should not reply")
	}
}

func TestDiscord_SendInvalidReplyID(t *testing.T) {
	t.Parallel()

	d := newTestDiscord(t, Config{Token: "T", APIURL: "http://127.0.0.1:1"})
	if err := d.Send(context.Background(), message.Outbound{ChannelID: 1, Text: "x", ReplyToID: "abc"}); err == nil {
		t.Fatal("Send() = nil, want error for bad reply id")
	}
}

func TestDiscord_StartRequiresInbox(t *testing.T) {
	t.Parallel()

	d := newTestDiscord(t, Config{Token: "T"})
	if err := d.Start(); !errors.Is(err, channel.ErrNoInbox) {
		t.Fatalf("Start() = %v, want ErrNoInbox", err)
	}
}

func TestDiscord_HandleMessage(t *testing.T) {
	t.Parallel()

	d := newTestDiscord(t, Config{Token: "T", AllowChannels: []int64{10}})
	var got []message.Turn
	d.SetInbox(func(turn message.Turn) error {
		got = append(got, turn)
		return nil
	})
	d.setSelf(User{ID: 42, Username: "sandy"})

	d.handleMessage(Message{ID: 1, ChannelID: 10, GuildID: 1, Author: User{ID: 7, Username: "dave"}, Content: "a"})
	d.handleMessage(Message{ID: 2, ChannelID: 11, GuildID: 1, Author: User{ID: 7, Username: "dave"}, Content: "b"})
	d.handleMessage(Message{ID: 3, ChannelID: 10, Author: User{ID: 7, Username: "dave"}, Content: "dm"})
	d.handleMessage(Message{ID: 4, ChannelID: 10, GuildID: 1, Author: User{ID: 42, Username: "sandy"}, Content: "me"})

	if len(got) != 2 {
		t.Fatalf("turns = %d, want 2", len(got))
	}
	if got[0].Content != "a" || got[0].Self {
		t.Errorf("turn[0] = %+v", got[0])
	}
	if !got[1].Self {
		t.Error("own message should be marked Self")
	}
}

func TestDiscord_Lifecycle(t *testing.T) {
	t.Parallel()

	rec := &restRecorder{}
	api := httptest.NewServer(rec.handler(t))
	defer api.Close()

	fg := newFakeGateway(t, func(ctx context.Context, _ int, conn *websocket.Conn) {
		send(ctx, t, conn, opHello, "", 0, hello{HeartbeatInterval: 45000})
		expectIdentify(ctx, t, conn)
		send(ctx, t, conn, opDispatch, eventReady, 1, ready{User: User{ID: 42, Username: "sandy", Bot: true}})
		send(ctx, t, conn, opDispatch, eventGuildCreate, 2, Guild{ID: 1, Name: "Squad", Channels: []Channel{{ID: 10, Name: "general"}}})
		send(ctx, t, conn, opDispatch, eventMessageCreate, 3, Message{
			ID: 5, ChannelID: 10, GuildID: 1, Author: User{ID: 7, Username: "dave"}, Content: "hello sandy",
		})
		drain(ctx, conn)
	})

	cfg := testConfig(fg.url())
	cfg.APIURL = api.URL
	d := newTestDiscord(t, cfg)

	turns := make(chan message.Turn, 1)
	d.SetInbox(func(turn message.Turn) error {
		turns <- turn
		return nil
	})
	readied := make(chan message.Speaker, 1)
	d.OnReady(func(s message.Speaker) { readied <- s })

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case s := <-readied:
		if s.ID != 42 || !s.Bot {
			t.Errorf("ready speaker = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnReady never fired")
	}

	select {
	case turn := <-turns:
		if turn.ServerName != "Squad" || turn.ChannelName != "general" {
			t.Errorf("names = %q/%q", turn.ServerName, turn.ChannelName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no turn delivered")
	}

	if err := d.SendTyping(context.Background(), 10); err != nil {
		t.Errorf("SendTyping() error: %v", err)
	}
	paths, _ := rec.snapshot()
	if len(paths) != 1 || paths[0] != "/channels/10/typing" {
		t.Errorf("paths = %v", paths)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}
