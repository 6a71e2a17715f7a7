package recalltool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/tool"
)

// Default result sizes.
const (
	DefaultHistoryLimit = recall.DefaultLimit
	DefaultSearchLimit  = 50
)

// HistoryArgs are the arguments of get_chat_history.
type HistoryArgs struct {
	Author     string `json:"author,omitempty"`
	AuthorID   int64  `json:"author_id,omitempty"`
	Channel    string `json:"channel,omitempty"`
	ChannelID  int64  `json:"channel_id,omitempty"`
	Tag        string `json:"tag,omitempty"`
	HoursAgo   int    `json:"hours_ago,omitempty"`
	MinutesAgo int    `json:"minutes_ago,omitempty"`
	Since      string `json:"since,omitempty"`
	Until      string `json:"until,omitempty"`
	Limit      int    `json:"limit,omitempty"`

	ServerID int64  `json:"server_id,omitempty"`
	Server   string `json:"server,omitempty"`
}

// Validate checks ranges and timestamp formats.
func (a HistoryArgs) Validate() error {
	var errs []error
	errs = append(errs, validateLimit(a.Limit), validateWindow("hours_ago", a.HoursAgo),
		validateWindow("minutes_ago", a.MinutesAgo))
	if a.Since != "" {
		if _, err := recall.ParseTime(a.Since); err != nil {
			errs = append(errs, fmt.Errorf("since: %w", err))
		}
	}
	if a.Until != "" {
		if _, err := recall.ParseTime(a.Until); err != nil {
			errs = append(errs, fmt.Errorf("until: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Query converts validated args into an archive query.
func (a HistoryArgs) Query() recall.Query {
	q := recall.Query{
		Limit:      a.Limit,
		AuthorID:   a.AuthorID,
		Author:     a.Author,
		ChannelID:  a.ChannelID,
		Channel:    a.Channel,
		ServerID:   a.ServerID,
		Server:     a.Server,
		Tag:        a.Tag,
		HoursAgo:   a.HoursAgo,
		MinutesAgo: a.MinutesAgo,
	}
	if q.Limit == 0 {
		q.Limit = DefaultHistoryLimit
	}
	q.Since, _ = parseOptional(a.Since)
	q.Until, _ = parseOptional(a.Until)
	return q
}

// SearchArgs are the arguments of search_messages.
type SearchArgs struct {
	Query     string `json:"query"`
	Author    string `json:"author,omitempty"`
	AuthorID  int64  `json:"author_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	ChannelID int64  `json:"channel_id,omitempty"`
	HoursAgo  int    `json:"hours_ago,omitempty"`
	Limit     int    `json:"limit,omitempty"`

	ServerID int64  `json:"server_id,omitempty"`
	Server   string `json:"server,omitempty"`
}

// Validate checks the query text and ranges.
func (a SearchArgs) Validate() error {
	var errs []error
	if strings.TrimSpace(a.Query) == "" {
		errs = append(errs, errors.New("query must not be blank"))
	}
	errs = append(errs, validateLimit(a.Limit), validateWindow("hours_ago", a.HoursAgo))
	return errors.Join(errs...)
}

// RecallQuery converts validated args into an archive query.
func (a SearchArgs) RecallQuery() recall.Query {
	q := recall.Query{
		Limit:     a.Limit,
		Q:         a.Query,
		AuthorID:  a.AuthorID,
		Author:    a.Author,
		ChannelID: a.ChannelID,
		Channel:   a.Channel,
		ServerID:  a.ServerID,
		Server:    a.Server,
		HoursAgo:  a.HoursAgo,
	}
	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}
	return q
}

// decodeStrict decodes raw into v, rejecting unknown fields. Server fields
// are part of both argument structs, so injected scope always decodes.
func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
	}
	return nil
}

func validateLimit(n int) error {
	if n < 0 || n > recall.MaxLimit {
		return fmt.Errorf("limit must be within 0..%d, got %d", recall.MaxLimit, n)
	}
	return nil
}

func validateWindow(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", name, n)
	}
	return nil
}

func parseOptional(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return recall.ParseTime(s)
}
