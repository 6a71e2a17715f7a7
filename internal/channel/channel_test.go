package channel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/goleak"

	"github.com/flemzord/sandy/pkg/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSplitMessage_Short(t *testing.T) {
	t.Parallel()

	msg := message.Outbound{ChannelID: 1, Text: "hello", ReplyToID: "9"}
	got := SplitMessage(msg, ChunkConfig{MaxLength: 100})
	if len(got) != 1 || got[0] != msg {
		t.Errorf("got %+v", got)
	}
	if got := SplitMessage(message.Outbound{ChannelID: 1}, ChunkConfig{MaxLength: 100}); got != nil {
		t.Errorf("empty text = %+v, want nil", got)
	}
}

func TestSplitMessage_SplitsOnLines(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 100) + "\n" + strings.Repeat("b", 100)
	got := SplitMessage(message.Outbound{ChannelID: 1, Text: text, ReplyToID: "9"}, ChunkConfig{MaxLength: 110})
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if got[0].Text != strings.Repeat("a", 100) || got[1].Text != strings.Repeat("b", 100) {
		t.Errorf("chunks = %q", got)
	}
	if got[0].ReplyToID != "9" || got[1].ReplyToID != "" {
		t.Error("only the first chunk replies")
	}
}

func TestSplitMessage_LongLineCountsRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 250)
	got := SplitMessage(message.Outbound{Text: text}, ChunkConfig{MaxLength: 100})
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for i, c := range got {
		if n := utf8.RuneCountInString(c.Text); n > 100 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
}

func TestSplitMessage_PreservesCodeBlocks(t *testing.T) {
	t.Parallel()

	code := "```\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n```"
	text := "Before line that is long enough\n" + code + "\nAfter"
	got := SplitMessage(message.Outbound{Text: text}, ChunkConfig{MaxLength: 60, PreserveBlocks: true})

	joined := make([]string, 0, len(got))
	found := false
	for _, c := range got {
		joined = append(joined, c.Text)
		if strings.Contains(c.Text, "func main()") && strings.Contains(c.Text, "```\n") {
			found = strings.Count(c.Text, "```") == 2
		}
		if utf8.RuneCountInString(c.Text) > 60 {
			t.Errorf("chunk exceeds limit: %q", c.Text)
		}
	}
	if !found {
		t.Errorf("code block was split: %q", joined)
	}
}

func TestAllowList(t *testing.T) {
	t.Parallel()

	turn := func(server, ch int64) message.Turn {
		return message.Turn{Room: message.RoomKey{ServerID: server, ChannelID: ch}}
	}

	var open *AllowList
	if !open.IsAllowed(turn(1, 2)) || !NewAllowList(nil, nil).IsAllowed(turn(1, 2)) {
		t.Error("empty allow-list should let everything through")
	}

	al := NewAllowList([]int64{1}, []int64{30})
	tests := []struct {
		turn message.Turn
		want bool
	}{
		{turn(1, 2), true},
		{turn(3, 30), true},
		{turn(3, 4), false},
	}
	for _, tt := range tests {
		if got := al.IsAllowed(tt.turn); got != tt.want {
			t.Errorf("IsAllowed(%v) = %v, want %v", tt.turn.Room, got, tt.want)
		}
	}
}

func TestMockChannel_Simulate(t *testing.T) {
	t.Parallel()

	ch := NewMockChannel("test", NewAllowList([]int64{1}, nil))
	if err := ch.Simulate(message.Turn{Room: message.RoomKey{ServerID: 1}}); !errors.Is(err, ErrNoInbox) {
		t.Errorf("err = %v, want ErrNoInbox", err)
	}

	var got []message.Turn
	ch.SetInbox(func(turn message.Turn) error {
		got = append(got, turn)
		return nil
	})
	if err := ch.Simulate(message.Turn{Room: message.RoomKey{ServerID: 2}}); !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied", err)
	}
	if err := ch.Simulate(message.Turn{ID: "a", Room: message.RoomKey{ServerID: 1}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("inbox got %+v", got)
	}

	if _, ok := ch.Self(); ok {
		t.Error("Self should be unknown before SetSelf")
	}
	ch.SetSelf(message.Speaker{ID: 7, Name: "sandy"})
	if s, ok := ch.Self(); !ok || s.ID != 7 {
		t.Errorf("Self = %+v, %v", s, ok)
	}
}

func TestStartTypingLoop(t *testing.T) {
	t.Parallel()

	ch := NewMockChannel("test", nil)
	stop := StartTypingLoop(context.Background(), ch, 42, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for len(ch.TypingChannels()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	stop()

	typed := ch.TypingChannels()
	if len(typed) < 3 {
		t.Fatalf("typing indicators = %d, want >= 3", len(typed))
	}
	for _, id := range typed {
		if id != 42 {
			t.Errorf("typing sent to %d", id)
		}
	}
	after := len(ch.TypingChannels())
	time.Sleep(30 * time.Millisecond)
	if len(ch.TypingChannels()) != after {
		t.Error("typing continued after stop")
	}
}
