package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	id       TEXT PRIMARY KEY,
	dims     INTEGER NOT NULL,
	vals     BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
)`

// SQLiteIndex keeps vectors in a single SQLite table and answers queries by
// scanning every row. The knowledge base is a handful of clinical PDFs, so
// a full scan stays well under request latency budgets.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the index file at path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("vector index path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector index dir: %w", err)
		}
	}

	dsn := clean + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vectors table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteIndex) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (id, dims, vals, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dims = excluded.dims, vals = excluded.vals, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector id is required")
		}
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", v.ID, err)
		}
		if v.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, v.ID, len(v.Values), encodeVector(v.Values), string(meta)); err != nil {
			return fmt.Errorf("upsert %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, dims, vals, metadata FROM vectors WHERE dims = ?`, len(vector))
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var (
			id   string
			dims int
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &dims, &blob, &meta); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		values, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		score, err := Cosine(vector, values)
		if err != nil {
			return nil, err
		}
		m := Match{ID: id, Score: score}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return SortMatches(matches, topK), nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}

// encodeVector packs values as little-endian float32.
func encodeVector(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if len(buf) != 4*dims {
		return nil, ErrDimensionMismatch
	}
	out := make([]float32, dims)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
