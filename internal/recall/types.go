// Package recall is the long-term message archive: the record and query
// types shared by the store, the HTTP API and the Client that talks to it.
package recall

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/sandy/pkg/message"
)

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
	MaxNameLen   = 255
	MaxSummary   = 1000
)

// Message is one archived chat message.
type Message struct {
	ID int64 `json:"id,omitempty"`
	// MessageID is the chat platform's id for the message, when known.
	MessageID   string    `json:"message_id,omitempty"`
	AuthorID    int64     `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	ChannelID   int64     `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	ServerID    int64     `json:"server_id"`
	ServerName  string    `json:"server_name"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Tags        []string  `json:"tags,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// FromTurn builds the archive record for a chat turn. Empty content is
// stored as the placeholder.
func FromTurn(t message.Turn, tags []string, summary string) Message {
	return Message{
		MessageID:   t.ID,
		AuthorID:    t.Author.ID,
		AuthorName:  t.Author.Display(),
		ChannelID:   t.Room.ChannelID,
		ChannelName: t.ChannelName,
		ServerID:    t.Room.ServerID,
		ServerName:  t.ServerName,
		Content:     t.StoredContent(),
		Timestamp:   t.CreatedAt,
		Tags:        tags,
		Summary:     summary,
	}
}

// Turn converts an archived record back into a chat turn, as used when
// re-seeding the history cache.
func (m Message) Turn() message.Turn {
	content := m.Content
	if content == message.EmptyPlaceholder {
		content = ""
	}
	return message.Turn{
		ID:          m.VectorKey(),
		Room:        message.RoomKey{ServerID: m.ServerID, ChannelID: m.ChannelID},
		Type:        message.ChatGroup,
		ServerName:  m.ServerName,
		ChannelName: m.ChannelName,
		Author:      message.Speaker{ID: m.AuthorID, Name: m.AuthorName, DisplayName: m.AuthorName},
		Content:     content,
		CreatedAt:   m.Timestamp,
	}
}

// VectorKey is the id the message is embedded under: the platform id when
// known, otherwise one derived from the archive id.
func (m Message) VectorKey() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return "recall-" + strconv.FormatInt(m.ID, 10)
}

// Validate checks a record before it is stored.
func (m Message) Validate() error {
	var problems []string
	for field, v := range map[string]string{
		"author_name":  m.AuthorName,
		"channel_name": m.ChannelName,
		"server_name":  m.ServerName,
	} {
		if n := len([]rune(v)); n < 1 || n > MaxNameLen {
			problems = append(problems, fmt.Sprintf("%s must be 1..%d characters", field, MaxNameLen))
		}
	}
	if m.Content == "" {
		problems = append(problems, "content must not be empty")
	}
	if len([]rune(m.Summary)) > MaxSummary {
		problems = append(problems, fmt.Sprintf("summary must be at most %d characters", MaxSummary))
	}
	if m.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// Stats summarises the archive.
type Stats struct {
	TotalMessages     int64      `json:"total_messages"`
	UniqueAuthors     int64      `json:"unique_authors"`
	LatestMessageTime *time.Time `json:"latest_message_time"`
}

// Query filters a listing. Id filters win over the matching name filter.
// HoursAgo wins over MinutesAgo; an explicit Since wins over both.
type Query struct {
	Limit  int
	Offset int

	AuthorID  int64
	ServerID  int64
	ChannelID int64
	Author    string
	Server    string
	Channel   string

	// Tag is a substring match over the stored tags.
	Tag string
	// Q is a stemmed full-text match over content and summary.
	Q string

	Since      time.Time
	Until      time.Time
	HoursAgo   int
	MinutesAgo int
}

// Normalize applies the default limit and checks ranges.
func (q *Query) Normalize() error {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be within 1..%d, got %d", ErrInvalid, MaxLimit, q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrInvalid)
	}
	if q.HoursAgo < 0 || q.MinutesAgo < 0 {
		return fmt.Errorf("%w: time windows must not be negative", ErrInvalid)
	}
	return nil
}

// LowerBound resolves the effective since bound relative to now.
func (q Query) LowerBound(now time.Time) time.Time {
	switch {
	case !q.Since.IsZero():
		return q.Since
	case q.HoursAgo > 0:
		return now.Add(-time.Duration(q.HoursAgo) * time.Hour)
	case q.MinutesAgo > 0:
		return now.Add(-time.Duration(q.MinutesAgo) * time.Minute)
	default:
		return time.Time{}
	}
}

// Values encodes the query as URL parameters. Zero fields are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	setInt := func(k string, n int64) {
		if n != 0 {
			v.Set(k, strconv.FormatInt(n, 10))
		}
	}
	setStr := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	setInt("limit", int64(q.Limit))
	setInt("offset", int64(q.Offset))
	setInt("author_id", q.AuthorID)
	setInt("server_id", q.ServerID)
	setInt("channel_id", q.ChannelID)
	setStr("author", q.Author)
	setStr("server", q.Server)
	setStr("channel", q.Channel)
	setStr("tag", q.Tag)
	setStr("q", q.Q)
	if !q.Since.IsZero() {
		v.Set("since", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		v.Set("until", q.Until.Format(time.RFC3339))
	}
	setInt("hours_ago", int64(q.HoursAgo))
	setInt("minutes_ago", int64(q.MinutesAgo))
	return v
}

// ParseQuery decodes URL parameters produced by Values (or typed by hand).
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	var err error

	ints := []struct {
		key string
		dst *int
	}{
		{"limit", &q.Limit}, {"offset", &q.Offset},
		{"hours_ago", &q.HoursAgo}, {"minutes_ago", &q.MinutesAgo},
	}
	for _, f := range ints {
		if s := v.Get(f.key); s != "" {
			if *f.dst, err = strconv.Atoi(s); err != nil {
				return Query{}, fmt.Errorf("%w: %s must be an integer", ErrInvalid, f.key)
			}
		}
	}

	ids := []struct {
		key string
		dst *int64
	}{
		{"author_id", &q.AuthorID}, {"server_id", &q.ServerID}, {"channel_id", &q.ChannelID},
	}
	for _, f := range ids {
		if s := v.Get(f.key); s != "" {
			if *f.dst, err = strconv.ParseInt(s, 10, 64); err != nil {
				return Query{}, fmt.Errorf("%w: %s must be an integer", ErrInvalid, f.key)
			}
		}
	}

	q.Author, q.Server, q.Channel = v.Get("author"), v.Get("server"), v.Get("channel")
	q.Tag, q.Q = v.Get("tag"), v.Get("q")

	if s := v.Get("since"); s != "" {
		if q.Since, err = ParseTime(s); err != nil {
			return Query{}, fmt.Errorf("%w: since: %w", ErrInvalid, err)
		}
	}
	if s := v.Get("until"); s != "" {
		if q.Until, err = ParseTime(s); err != nil {
			return Query{}, fmt.Errorf("%w: until: %w", ErrInvalid, err)
		}
	}

	if err := q.Normalize(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// timeLayouts are the ISO-8601 shapes accepted for since/until. Values
// without a zone are taken as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}
