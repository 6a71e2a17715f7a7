package message

import "testing"

func TestTurn_StoredContent(t *testing.T) {
	if got := (Turn{}).StoredContent(); got != EmptyPlaceholder {
		t.Errorf("empty turn StoredContent() = %q, want placeholder", got)
	}
	if got := (Turn{Content: "hi"}).StoredContent(); got != "hi" {
		t.Errorf("StoredContent() = %q, want %q", got, "hi")
	}
}

func TestTurn_IsDirectMessage(t *testing.T) {
	if !(Turn{Type: ChatDM, Room: RoomKey{ServerID: 1}}).IsDirectMessage() {
		t.Error("DM type should be a direct message")
	}
	if !(Turn{Type: ChatGroup}).IsDirectMessage() {
		t.Error("turn without a server should be treated as a direct message")
	}
	if (Turn{Type: ChatGroup, Room: RoomKey{ServerID: 1, ChannelID: 2}}).IsDirectMessage() {
		t.Error("server channel turn should not be a direct message")
	}
}

func TestTurn_ResolveMentions(t *testing.T) {
	turn := Turn{
		Content: "hey <@42> and <@!7>, ask <@99>",
		Mentions: []Speaker{
			{ID: 42, Name: "sandy", DisplayName: "Sandy"},
			{ID: 7, Name: "dave"},
		},
	}
	want := "hey @Sandy and @dave, ask <@99>"
	if got := turn.ResolveMentions(); got != want {
		t.Errorf("ResolveMentions() = %q, want %q", got, want)
	}
}
