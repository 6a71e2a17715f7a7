package sqlite

import "github.com/flemzord/sandy/internal/sqlitedb"

// timestampLayout is fixed-width UTC so timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

var schema = sqlitedb.Schema{
	Version: 1,
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id   TEXT,
			author_id    INTEGER NOT NULL,
			author_name  TEXT    NOT NULL,
			channel_id   INTEGER NOT NULL,
			channel_name TEXT    NOT NULL,
			server_id    INTEGER NOT NULL,
			server_name  TEXT    NOT NULL,
			content      TEXT    NOT NULL,
			timestamp    TEXT    NOT NULL,
			tags         TEXT,
			summary      TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_author_id ON chat_messages(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_server_id ON chat_messages(server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_id ON chat_messages(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timestamp ON chat_messages(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_server_channel_timestamp ON chat_messages(server_id, channel_id, timestamp DESC)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS chat_messages_fts USING fts5(
			content,
			summary,
			content=chat_messages,
			content_rowid=id,
			tokenize='porter'
		)`,

		`CREATE TRIGGER IF NOT EXISTS chat_messages_ai AFTER INSERT ON chat_messages BEGIN
			INSERT INTO chat_messages_fts(rowid, content, summary)
			VALUES (new.id, new.content, COALESCE(new.summary, ''));
		END`,

		`CREATE TRIGGER IF NOT EXISTS chat_messages_ad AFTER DELETE ON chat_messages BEGIN
			INSERT INTO chat_messages_fts(chat_messages_fts, rowid, content, summary)
			VALUES ('delete', old.id, old.content, COALESCE(old.summary, ''));
		END`,

		`CREATE TRIGGER IF NOT EXISTS chat_messages_au AFTER UPDATE ON chat_messages BEGIN
			INSERT INTO chat_messages_fts(chat_messages_fts, rowid, content, summary)
			VALUES ('delete', old.id, old.content, COALESCE(old.summary, ''));
			INSERT INTO chat_messages_fts(rowid, content, summary)
			VALUES (new.id, new.content, COALESCE(new.summary, ''));
		END`,
	},
}
