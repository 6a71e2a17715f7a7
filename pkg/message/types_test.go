package message

import "testing"

func TestRoomKey_String(t *testing.T) {
	k := RoomKey{ServerID: 10, ChannelID: 20}
	if got := k.String(); got != "10/20" {
		t.Errorf("String() = %q, want %q", got, "10/20")
	}
}

func TestSpeaker_Display(t *testing.T) {
	tests := []struct {
		name    string
		speaker Speaker
		want    string
	}{
		{"display name wins", Speaker{Name: "dave_99", DisplayName: "Dave"}, "Dave"},
		{"falls back to name", Speaker{Name: "dave_99"}, "dave_99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.speaker.Display(); got != tt.want {
				t.Errorf("Display() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  line one\nline two  ", "line one line two"},
		{"", EmptyPlaceholder},
		{" \n ", EmptyPlaceholder},
	}
	for _, tt := range tests {
		if got := SingleLine(tt.in); got != tt.want {
			t.Errorf("SingleLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
