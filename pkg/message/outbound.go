package message

// MaxMessageLength is the longest text a single chat message may carry.
const MaxMessageLength = 2000

// Outbound is a text message to deliver to a channel.
type Outbound struct {
	ChannelID int64  `json:"channel_id"`
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}
