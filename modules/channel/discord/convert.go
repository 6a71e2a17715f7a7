package discord

import (
	"errors"

	"github.com/flemzord/sandy/pkg/message"
)

var errDirectMessage = errors.New("direct message")

// convertMessage turns a MESSAGE_CREATE payload into a turn. Direct
// messages are rejected. selfID marks the agent's own messages.
func convertMessage(m Message, names *guildCache, selfID Snowflake) (message.Turn, error) {
	if m.GuildID == 0 {
		return message.Turn{}, errDirectMessage
	}

	author := speaker(m.Author, m.Member)
	self := selfID != 0 && m.Author.ID == selfID
	if self {
		author.Bot = true
	}

	mentions := make([]message.Speaker, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, speaker(u.User, u.Member))
	}

	channelName := names.channelName(m.ChannelID)
	if channelName == "" {
		channelName = m.ChannelID.String()
	}

	return message.Turn{
		ID:          m.ID.String(),
		Room:        message.RoomKey{ServerID: int64(m.GuildID), ChannelID: int64(m.ChannelID)},
		Type:        message.ChatGroup,
		ServerName:  names.guildName(m.GuildID),
		ChannelName: channelName,
		Author:      author,
		Content:     m.Content,
		CreatedAt:   m.Timestamp,
		Self:        self,
		Mentions:    mentions,
	}, nil
}

// speaker maps a user and optional member to a Speaker. The display name
// prefers the guild nickname, then the global name, then the username.
func speaker(u User, m *Member) message.Speaker {
	s := message.Speaker{
		ID:   int64(u.ID),
		Name: u.Username,
		Bot:  u.Bot,
	}
	if m != nil {
		s.Nick = m.Nick
	}
	switch {
	case s.Nick != "":
		s.DisplayName = s.Nick
	case u.GlobalName != "":
		s.DisplayName = u.GlobalName
	default:
		s.DisplayName = u.Username
	}
	return s
}
