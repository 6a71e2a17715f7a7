package history

import (
	"strings"
	"testing"
	"time"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/pkg/message"
)

func TestFormatAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{-5 * time.Minute, "just now"},
		{500 * time.Millisecond, "just now"},
		{45 * time.Second, "45s ago"},
		{12*time.Minute + 30*time.Second, "12m ago"},
		{90 * time.Minute, "1h30m ago"},
		{2 * time.Hour, "2h ago"},
		{36 * time.Hour, "1d12h ago"},
		{72 * time.Hour, "3d ago"},
		{72*time.Hour + 59*time.Minute, "3d ago"},
	}
	for _, tt := range tests {
		if got := FormatAge(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("FormatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func snapshotOf(now time.Time, entries ...message.Turn) Snapshot {
	return NewSnapshot(entries)
}

func at(now time.Time, ago time.Duration, id int64, name, content string) message.Turn {
	return message.Turn{
		Author:    message.Speaker{ID: id, Name: strings.ToLower(name), DisplayName: name},
		Content:   content,
		CreatedAt: now.Add(-ago),
	}
}

func TestNarrative(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshotOf(now,
		at(now, 2*time.Minute, 1, "Dave", "anyone up\nfor games?"),
		at(now, 30*time.Second, 2, "Sandy", "   "),
		at(now, 0, 1, "Dave", "hello"),
	)

	want := "[2m ago] [Dave] anyone up for games?\n" +
		"[30s ago] [Sandy] (no text content)\n" +
		"[just now] [Dave] hello"
	if got := Narrative(snap, now, 0); got != want {
		t.Errorf("Narrative() =\n%s\nwant\n%s", got, want)
	}

	if got := Narrative(snap, now, 1); got != "[just now] [Dave] hello" {
		t.Errorf("Narrative(max=1) = %q", got)
	}

	if got := Narrative(Snapshot{}, now, 0); got != NoRecentMessages {
		t.Errorf("empty Narrative() = %q, want %q", got, NoRecentMessages)
	}
}

func TestAlternating_MergesAndTagsRoles(t *testing.T) {
	t.Parallel()

	const self = 42
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshotOf(now,
		at(now, 3*time.Minute, 1, "Dave", "hey sandy"),
		at(now, 2*time.Minute, 3, "Jo", "she's asleep"),
		at(now, time.Minute, self, "Sandy", "i'm awake"),
		at(now, 50*time.Second, self, "Sandy", "barely"),
		at(now, 0, 1, "Dave", "lol"),
	)

	got := Alternating(snap, self, now)
	want := []provider.LLMMessage{
		{Role: provider.MessageRoleUser, Content: "[3m ago] [Dave] hey sandy\n[2m ago] [Jo] she's asleep"},
		{Role: provider.MessageRoleAssistant, Content: "i'm awake\nbarely"},
		{Role: provider.MessageRoleUser, Content: "[just now] [Dave] lol"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAlternating_NeverRepeatsRole(t *testing.T) {
	t.Parallel()

	now := time.Now()
	// Every author pattern over five turns drawn from {self, other}.
	for mask := 0; mask < 1<<5; mask++ {
		var turns []message.Turn
		for i := 0; i < 5; i++ {
			id := int64(1)
			if mask&(1<<i) != 0 {
				id = 42
			}
			turns = append(turns, at(now, time.Duration(5-i)*time.Second, id, "x", "msg"))
		}
		seq := Alternating(NewSnapshot(turns), 42, now)
		for i := 1; i < len(seq); i++ {
			if seq[i].Role == seq[i-1].Role {
				t.Fatalf("mask %05b: consecutive %s entries at %d", mask, seq[i].Role, i)
			}
		}
	}

	if got := Alternating(Snapshot{}, 42, now); got != nil {
		t.Errorf("empty Alternating() = %v, want nil", got)
	}
}
