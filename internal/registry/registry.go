// Package registry remembers the servers, channels and users the agent has
// seen, so names can be resolved without asking the chat platform.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/sandy/internal/sqlitedb"
	"github.com/flemzord/sandy/pkg/message"
)

var schema = sqlitedb.Schema{
	Name:    "registry",
	Version: 1,
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS servers (
			server_id   INTEGER PRIMARY KEY,
			server_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			channel_id   INTEGER PRIMARY KEY,
			channel_name TEXT NOT NULL DEFAULT '',
			server_id    INTEGER NOT NULL REFERENCES servers(server_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id   INTEGER PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS user_nicknames (
			user_id   INTEGER NOT NULL REFERENCES users(user_id),
			server_id INTEGER NOT NULL REFERENCES servers(server_id),
			nickname  TEXT,
			PRIMARY KEY (user_id, server_id)
		)`,
	},
}

// ChannelInfo describes a known channel and its server.
type ChannelInfo struct {
	ChannelID   int64
	ChannelName string
	ServerID    int64
	ServerName  string
}

// UserInfo describes a known user. Nickname and ServerName are only set
// when the lookup was made for a server.
type UserInfo struct {
	UserID     int64
	UserName   string
	Nickname   string
	ServerID   int64
	ServerName string
}

// Registry is the SQLite-backed lookup cache. Safe for concurrent use.
type Registry struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the registry database at path.
func Open(ctx context.Context, path string, opts sqlitedb.Options, logger *slog.Logger) (*Registry, error) {
	db, err := sqlitedb.Open(ctx, path, opts, schema)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: enable foreign keys: %w", err)
	}
	return &Registry{db: db, logger: logger}, nil
}

// Close releases the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// EnsureSeen records the server, channel and author of a turn. Known rows
// are left alone except the nickname, which always tracks the latest value.
// Direct messages carry no server and are ignored.
func (r *Registry) EnsureSeen(ctx context.Context, t message.Turn) error {
	if t.IsDirectMessage() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := func(query string, args ...any) (bool, error) {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}

	newServer, err := inserted("INSERT OR IGNORE INTO servers (server_id, server_name) VALUES (?, ?)",
		t.Room.ServerID, t.ServerName)
	if err != nil {
		return fmt.Errorf("registry: add server: %w", err)
	}
	newChannel, err := inserted("INSERT OR IGNORE INTO channels (channel_id, channel_name, server_id) VALUES (?, ?, ?)",
		t.Room.ChannelID, t.ChannelName, t.Room.ServerID)
	if err != nil {
		return fmt.Errorf("registry: add channel: %w", err)
	}
	newUser, err := inserted("INSERT OR IGNORE INTO users (user_id, user_name) VALUES (?, ?)",
		t.Author.ID, t.Author.Name)
	if err != nil {
		return fmt.Errorf("registry: add user: %w", err)
	}

	nick := sql.NullString{String: t.Author.Nick, Valid: t.Author.Nick != ""}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO user_nicknames (user_id, server_id, nickname) VALUES (?, ?, ?)",
		t.Author.ID, t.Room.ServerID, nick); err != nil {
		return fmt.Errorf("registry: set nickname: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: commit: %w", err)
	}

	if newServer {
		r.logger.Info("registry: new server seen", "server", t.ServerName, "server_id", t.Room.ServerID)
	}
	if newChannel {
		r.logger.Info("registry: new channel seen", "channel", t.ChannelName, "server", t.ServerName)
	}
	if newUser {
		r.logger.Info("registry: new user seen", "user", t.Author.Name, "user_id", t.Author.ID)
	}
	return nil
}

// ChannelInfo looks up a channel and its server.
func (r *Registry) ChannelInfo(ctx context.Context, channelID int64) (ChannelInfo, bool, error) {
	var info ChannelInfo
	err := r.db.QueryRowContext(ctx, `
		SELECT c.channel_id, c.channel_name, s.server_id, s.server_name
		FROM channels c
		JOIN servers s ON c.server_id = s.server_id
		WHERE c.channel_id = ?`, channelID,
	).Scan(&info.ChannelID, &info.ChannelName, &info.ServerID, &info.ServerName)
	if errors.Is(err, sql.ErrNoRows) {
		return ChannelInfo{}, false, nil
	}
	if err != nil {
		return ChannelInfo{}, false, fmt.Errorf("registry: channel info: %w", err)
	}
	return info, true, nil
}

// UserInfo looks up a user. With a non-zero serverID the nickname on that
// server is included when one is recorded.
func (r *Registry) UserInfo(ctx context.Context, userID, serverID int64) (UserInfo, bool, error) {
	var (
		info       UserInfo
		nick       sql.NullString
		sid        sql.NullInt64
		serverName sql.NullString
		err        error
	)
	if serverID != 0 {
		err = r.db.QueryRowContext(ctx, `
			SELECT u.user_id, u.user_name, un.nickname, s.server_id, s.server_name
			FROM users u
			LEFT JOIN user_nicknames un ON u.user_id = un.user_id AND un.server_id = ?
			LEFT JOIN servers s ON un.server_id = s.server_id
			WHERE u.user_id = ?`, serverID, userID,
		).Scan(&info.UserID, &info.UserName, &nick, &sid, &serverName)
	} else {
		err = r.db.QueryRowContext(ctx,
			"SELECT user_id, user_name FROM users WHERE user_id = ?", userID,
		).Scan(&info.UserID, &info.UserName)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return UserInfo{}, false, nil
	}
	if err != nil {
		return UserInfo{}, false, fmt.Errorf("registry: user info: %w", err)
	}
	info.Nickname = nick.String
	info.ServerID = sid.Int64
	info.ServerName = serverName.String
	return info, true, nil
}

// DisplayName resolves the name to show for a user on a server: the
// server nickname, then the account name, then fallback.
func (r *Registry) DisplayName(ctx context.Context, userID, serverID int64, fallback string) string {
	if r == nil || userID == 0 || serverID == 0 {
		return fallback
	}
	info, ok, err := r.UserInfo(ctx, userID, serverID)
	if err != nil {
		r.logger.Debug("registry: display name lookup failed", "user_id", userID, "error", err)
		return fallback
	}
	switch {
	case !ok:
		return fallback
	case info.Nickname != "":
		return info.Nickname
	case info.UserName != "":
		return info.UserName
	default:
		return fallback
	}
}

// Vacuum compacts the database file.
func (r *Registry) Vacuum(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("registry: vacuum: %w", err)
	}
	return nil
}
