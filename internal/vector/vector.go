// Package vector is a small persistent embedding index: a flat cosine
// search over vectors kept in SQLite, partitioned by server.
package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/flemzord/sandy/internal/sqlitedb"
)

// ErrDimension means a vector does not match the index dimension.
var ErrDimension = errors.New("vector: dimension mismatch")

var schema = sqlitedb.Schema{
	Name:    "vector",
	Version: 1,
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS vectors (
			id          TEXT PRIMARY KEY,
			server_id   INTEGER NOT NULL,
			author_name TEXT    NOT NULL DEFAULT '',
			timestamp   TEXT    NOT NULL DEFAULT '',
			document    TEXT    NOT NULL,
			embedding   BLOB    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_server ON vectors(server_id)`,
	},
}

// Record is one embedded message.
type Record struct {
	ID         string
	ServerID   int64
	AuthorName string
	Timestamp  time.Time
	Document   string
	Embedding  []float64
}

// Match is a search hit. Distance is cosine distance: 0 for identical
// direction, up to 2 for opposite.
type Match struct {
	Record
	Distance float64
}

// Store is the SQLite-backed index. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the index at path.
func Open(ctx context.Context, path string, opts sqlitedb.Options) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, opts, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a record.
func (s *Store) Upsert(ctx context.Context, r Record) error {
	if len(r.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimension)
	}
	var ts string
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vectors (id, server_id, author_name, timestamp, document, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ServerID, r.AuthorName, ts, r.Document, encode(r.Embedding),
	)
	if err != nil {
		return fmt.Errorf("vector: upsert %s: %w", r.ID, err)
	}
	return nil
}

// Query returns up to n records of serverID nearest to embedding, closest
// first. n is capped at the number of stored records.
func (s *Store) Query(ctx context.Context, embedding []float64, n int, serverID int64) ([]Match, error) {
	if n <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	n = min(n, total)
	if n == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, server_id, author_name, timestamp, document, embedding FROM vectors WHERE server_id = ?",
		serverID)
	if err != nil {
		return nil, fmt.Errorf("vector: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	queryNorm := floats.Norm(embedding, 2)
	var matches []Match
	for rows.Next() {
		var (
			r    Record
			ts   string
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.ServerID, &r.AuthorName, &ts, &r.Document, &blob); err != nil {
			return nil, fmt.Errorf("vector: scan: %w", err)
		}
		r.Embedding = decode(blob)
		if len(r.Embedding) != len(embedding) {
			continue
		}
		if ts != "" {
			r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}
		matches = append(matches, Match{Record: r, Distance: cosineDistance(embedding, queryNorm, r.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: rows: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("vector: count: %w", err)
	}
	return n, nil
}

// Has reports whether id is stored.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM vectors WHERE id = ?", id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("vector: has: %w", err)
	}
	return true, nil
}

// IDs returns the set of stored ids.
func (s *Store) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM vectors")
	if err != nil {
		return nil, fmt.Errorf("vector: ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("vector: scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func cosineDistance(q []float64, qNorm float64, v []float64) float64 {
	vNorm := floats.Norm(v, 2)
	if qNorm == 0 || vNorm == 0 {
		return 1
	}
	return 1 - floats.Dot(q, v)/(qNorm*vNorm)
}

// Embeddings are stored as little-endian float32.
func encode(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(f)))
	}
	return buf
}

func decode(b []byte) []float64 {
	v := make([]float64, len(b)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return v
}
