package discord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Gateway intents.
const (
	intentGuilds         = 1 << 0
	intentGuildMembers   = 1 << 1
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15

	defaultIntents = intentGuilds | intentGuildMembers | intentGuildMessages | intentMessageContent
)

// Dispatch event names.
const (
	eventReady         = "READY"
	eventGuildCreate   = "GUILD_CREATE"
	eventGuildUpdate   = "GUILD_UPDATE"
	eventChannelCreate = "CHANNEL_CREATE"
	eventChannelUpdate = "CHANNEL_UPDATE"
	eventMessageCreate = "MESSAGE_CREATE"
)

// payload is one gateway frame.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Snowflake is a Discord id, sent as a JSON string.
type Snowflake int64

// UnmarshalJSON accepts both string and number encodings.
func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = 0
		return nil
	}
	raw := string(b)
	if len(raw) >= 2 && raw[0] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	if raw == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("discord: invalid snowflake %s: %w", b, err)
	}
	*s = Snowflake(v)
	return nil
}

// MarshalJSON encodes the id as a string.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(s), 10) + `"`), nil
}

func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// User is a Discord account.
type User struct {
	ID         Snowflake `json:"id"`
	Username   string    `json:"username"`
	GlobalName string    `json:"global_name,omitempty"`
	Bot        bool      `json:"bot,omitempty"`
}

// Member is a user's per-guild profile.
type Member struct {
	Nick string `json:"nick,omitempty"`
	User *User  `json:"user,omitempty"`
}

// Channel is a guild channel.
type Channel struct {
	ID      Snowflake `json:"id"`
	GuildID Snowflake `json:"guild_id,omitempty"`
	Name    string    `json:"name"`
	Type    int       `json:"type"`
}

// Guild is the subset of GUILD_CREATE the adapter keeps.
type Guild struct {
	ID       Snowflake `json:"id"`
	Name     string    `json:"name"`
	Channels []Channel `json:"channels,omitempty"`
	Threads  []Channel `json:"threads,omitempty"`
}

type ready struct {
	User      User   `json:"user"`
	SessionID string `json:"session_id"`
}

// mentionUser is a mentioned user with the optional partial member.
type mentionUser struct {
	User
	Member *Member `json:"member,omitempty"`
}

// Message is a MESSAGE_CREATE payload.
type Message struct {
	ID        Snowflake     `json:"id"`
	ChannelID Snowflake     `json:"channel_id"`
	GuildID   Snowflake     `json:"guild_id,omitempty"`
	Author    User          `json:"author"`
	Member    *Member       `json:"member,omitempty"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Mentions  []mentionUser `json:"mentions,omitempty"`
	WebhookID Snowflake     `json:"webhook_id,omitempty"`
}

type createMessage struct {
	Content          string            `json:"content"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	AllowedMentions  allowedMentions   `json:"allowed_mentions"`
}

type messageReference struct {
	MessageID Snowflake `json:"message_id"`
}

type allowedMentions struct {
	Parse       []string `json:"parse"`
	RepliedUser bool     `json:"replied_user"`
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int     `json:"-"`
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Retry   float64 `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: api error %d (code %d): %s", e.Status, e.Code, e.Message)
}
