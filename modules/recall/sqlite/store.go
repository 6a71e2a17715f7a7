package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/sandy/internal/recall"
)

const selectColumns = `id, message_id, author_id, author_name, channel_id, channel_name,
	server_id, server_name, content, timestamp, tags, summary`

// Create validates and archives m, returning the stored record.
func (s *Store) Create(ctx context.Context, m recall.Message) (recall.Message, error) {
	if err := m.Validate(); err != nil {
		return recall.Message{}, err
	}

	var tags sql.NullString
	if len(m.Tags) > 0 {
		raw, err := json.Marshal(m.Tags)
		if err != nil {
			return recall.Message{}, fmt.Errorf("recall.sqlite: marshal tags: %w", err)
		}
		tags = sql.NullString{String: string(raw), Valid: true}
	}
	summary := sql.NullString{String: m.Summary, Valid: m.Summary != ""}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (message_id, author_id, author_name, channel_id, channel_name,
			server_id, server_name, content, timestamp, tags, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sql.NullString{String: m.MessageID, Valid: m.MessageID != ""}, m.AuthorID, m.AuthorName, m.ChannelID, m.ChannelName,
		m.ServerID, m.ServerName, m.Content, formatTime(m.Timestamp), tags, summary,
	)
	if err != nil {
		return recall.Message{}, fmt.Errorf("recall.sqlite: insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return recall.Message{}, fmt.Errorf("recall.sqlite: last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns one message, or recall.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (recall.Message, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM chat_messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recall.Message{}, recall.ErrNotFound
	}
	return m, err
}

// Delete removes one message, or returns recall.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("recall.sqlite: delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recall.sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return recall.ErrNotFound
	}
	return nil
}

// List returns the messages matching q, newest first.
func (s *Store) List(ctx context.Context, q recall.Query) ([]recall.Message, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}

	switch {
	case q.AuthorID != 0:
		add("author_id = ?", q.AuthorID)
	case q.Author != "":
		add("author_name = ?", q.Author)
	}
	switch {
	case q.ServerID != 0:
		add("server_id = ?", q.ServerID)
	case q.Server != "":
		add("server_name = ?", q.Server)
	}
	switch {
	case q.ChannelID != 0:
		add("channel_id = ?", q.ChannelID)
	case q.Channel != "":
		add("channel_name = ?", q.Channel)
	}
	if q.Tag != "" {
		add("tags LIKE ? ESCAPE '\\'", "%"+escapeLike(q.Tag)+"%")
	}
	if since := q.LowerBound(time.Now()); !since.IsZero() {
		add("timestamp >= ?", formatTime(since))
	}
	if !q.Until.IsZero() {
		add("timestamp <= ?", formatTime(q.Until))
	}
	if match := ftsMatch(q.Q); match != "" {
		add("id IN (SELECT rowid FROM chat_messages_fts WHERE chat_messages_fts MATCH ?)", match)
	}

	query := "SELECT " + selectColumns + " FROM chat_messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall.sqlite: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// Stats returns archive totals.
func (s *Store) Stats(ctx context.Context) (recall.Stats, error) {
	var (
		st     recall.Stats
		latest sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT author_id), MAX(timestamp) FROM chat_messages",
	).Scan(&st.TotalMessages, &st.UniqueAuthors, &latest)
	if err != nil {
		return recall.Stats{}, fmt.Errorf("recall.sqlite: stats: %w", err)
	}
	if latest.Valid {
		t, err := parseTime(latest.String)
		if err != nil {
			return recall.Stats{}, err
		}
		st.LatestMessageTime = &t
	}
	return st, nil
}

// All calls fn for every archived message, oldest first, stopping at the
// first error.
func (s *Store) All(ctx context.Context, fn func(recall.Message) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM chat_messages ORDER BY timestamp ASC, id ASC")
	if err != nil {
		return fmt.Errorf("recall.sqlite: iterate messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Missing returns up to limit messages (0 means no limit), oldest first,
// whose vector key is not in have.
func (s *Store) Missing(ctx context.Context, have map[string]struct{}, limit int) ([]recall.Message, error) {
	var out []recall.Message
	errStop := errors.New("stop")
	err := s.All(ctx, func(m recall.Message) error {
		if _, ok := have[m.VectorKey()]; ok {
			return nil
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (recall.Message, error) {
	var (
		m       recall.Message
		msgID   sql.NullString
		ts      string
		tags    sql.NullString
		summary sql.NullString
	)
	if err := row.Scan(&m.ID, &msgID, &m.AuthorID, &m.AuthorName, &m.ChannelID, &m.ChannelName,
		&m.ServerID, &m.ServerName, &m.Content, &ts, &tags, &summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recall.Message{}, err
		}
		return recall.Message{}, fmt.Errorf("recall.sqlite: scan message: %w", err)
	}

	t, err := parseTime(ts)
	if err != nil {
		return recall.Message{}, err
	}
	m.Timestamp = t
	m.MessageID = msgID.String
	m.Summary = summary.String

	// Malformed tag JSON is treated as no tags.
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &m.Tags)
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]recall.Message, error) {
	out := []recall.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recall.sqlite: scan message rows: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		if t, err = recall.ParseTime(s); err != nil {
			return time.Time{}, fmt.Errorf("recall.sqlite: parse timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ftsMatch turns free text into an FTS5 expression: every word quoted and
// implicitly AND-ed, so user punctuation is never parsed as syntax.
func ftsMatch(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !(r == '\'' || r == '-' || r == '_' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') || r > 127)
	})
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
