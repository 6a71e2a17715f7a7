package sqlite

import "github.com/flemzord/sandy/internal/sqlitedb"

const defaultDBFile = "recall.db"

// Config holds the archive store configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/recall.db.
	Path string `yaml:"path"`

	sqlitedb.Options `yaml:",inline"`
}
