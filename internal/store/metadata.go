package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/docrag/internal/chunk"
)

const metadataSchema = `
CREATE TABLE info (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	schema_version INTEGER NOT NULL,
	revision       TEXT NOT NULL,
	model          TEXT NOT NULL,
	dimensions     INTEGER NOT NULL,
	chunks         INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE chunks (
	key          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	doc_path     TEXT NOT NULL,
	revision     TEXT NOT NULL,
	title        TEXT NOT NULL,
	depth        INTEGER NOT NULL,
	ordinal      INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	text         TEXT NOT NULL,
	overlap      TEXT NOT NULL,
	metadata     TEXT NOT NULL
);

CREATE INDEX idx_chunks_doc_path ON chunks(doc_path);
`

// writeMetadata builds metadata.db at a temp path and renames it over path.
func writeMetadata(path string, info Info, chunks []*chunk.Chunk) error {
	tmpPath := path + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear stale temp metadata: %w", err)
	}

	if err := fillMetadata(tmpPath, info, chunks); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}
	return nil
}

func fillMetadata(path string, info Info, chunks []*chunk.Chunk) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open metadata db: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close metadata db", slog.String("error", err.Error()))
		}
	}()

	if _, err := db.Exec(metadataSchema); err != nil {
		return fmt.Errorf("failed to create metadata schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO info
		(id, schema_version, revision, model, dimensions, chunks, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		info.SchemaVersion, info.Revision, info.Model, info.Dimensions, len(chunks),
		info.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write index info: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks
		(key, id, doc_path, revision, title, depth, ordinal, start_offset, end_offset, text, overlap, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for key, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(key, c.ID, c.DocPath, c.Revision, c.Title, c.Depth, c.Ordinal,
			c.Start, c.End, c.Text, c.Overlap, string(meta)); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// openMetadata opens an existing metadata.db read-only after checking that
// SQLite considers it intact.
func openMetadata(path string) (*sql.DB, error) {
	// sqlite creates missing files, so existence is checked first.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("metadata db not found: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("cannot open metadata db: %w", err)
	}

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		db.Close()
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		db.Close()
		return nil, fmt.Errorf("database corrupted: %s", result)
	}
	return db, nil
}

func queryInfo(db *sql.DB) (Info, error) {
	var (
		info      Info
		createdAt string
	)
	err := db.QueryRow(`SELECT schema_version, revision, model, dimensions, chunks, created_at
		FROM info WHERE id = 1`).Scan(
		&info.SchemaVersion, &info.Revision, &info.Model, &info.Dimensions, &info.Chunks, &createdAt)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read index info: %w", err)
	}
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Info{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return info, nil
}

// readMetadata loads the info row and every chunk, ordered by graph key.
// Keys must be dense from zero.
func readMetadata(path string) (Info, []*chunk.Chunk, error) {
	db, err := openMetadata(path)
	if err != nil {
		return Info{}, nil, err
	}
	defer db.Close()

	info, err := queryInfo(db)
	if err != nil {
		return Info{}, nil, err
	}

	rows, err := db.Query(`SELECT key, id, doc_path, revision, title, depth, ordinal,
		start_offset, end_offset, text, overlap, metadata FROM chunks ORDER BY key`)
	if err != nil {
		return Info{}, nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*chunk.Chunk, 0, info.Chunks)
	for rows.Next() {
		var (
			key  int
			meta string
			c    chunk.Chunk
		)
		if err := rows.Scan(&key, &c.ID, &c.DocPath, &c.Revision, &c.Title, &c.Depth, &c.Ordinal,
			&c.Start, &c.End, &c.Text, &c.Overlap, &meta); err != nil {
			return Info{}, nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if key != len(chunks) {
			return Info{}, nil, fmt.Errorf("chunk key %d out of sequence (want %d)", key, len(chunks))
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return Info{}, nil, fmt.Errorf("invalid metadata for %s: %w", c.ID, err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return Info{}, nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	if len(chunks) != info.Chunks {
		return Info{}, nil, fmt.Errorf("info records %d chunks, table has %d", info.Chunks, len(chunks))
	}

	return info, chunks, nil
}

// ReadInfo returns the index info stored in dir without loading the graph.
func ReadInfo(dir string) (Info, error) {
	db, err := openMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return Info{}, err
	}
	defer db.Close()
	return queryInfo(db)
}
