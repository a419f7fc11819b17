// Package store persists the chunk vector index and publishes index
// generations on disk.
//
// A generation directory holds two artifacts: the HNSW graph (vectors.hnsw)
// and a SQLite side table (metadata.db) mapping graph keys to chunks plus the
// index info row. Generations are published by rewriting the CURRENT pointer
// file under the data directory.
package store

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
)

// Artifact and layout names inside the data directory.
const (
	VectorsFile    = "vectors.hnsw"
	MetadataFile   = "metadata.db"
	CurrentFile    = "CURRENT"
	GenerationsDir = "generations"
	LockFile       = "rebuild.lock"
)

// SchemaVersion is bumped whenever metadata.db changes shape.
const SchemaVersion = 1

// Default HNSW parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 64
)

// DefaultExactSearchMax is the largest index searched by a full scan. Larger
// indexes go through the HNSW graph.
const DefaultExactSearchMax = 20000

// Info describes a built index.
type Info struct {
	SchemaVersion int       `json:"schema_version"`
	Revision      string    `json:"revision"`
	Model         string    `json:"model"`
	Dimensions    int       `json:"dimensions"`
	Chunks        int       `json:"chunks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Candidate is one search hit. Vector is the stored (unit) embedding, kept so
// the diversifier can compare candidates with each other.
type Candidate struct {
	Chunk  *chunk.Chunk
	Score  float32
	Vector []float32
}

// Options configures a VectorIndex.
type Options struct {
	Dimensions int
	Model      string
	Revision   string
	M          int
	EfSearch   int
	// ExactSearchMax: 0 uses DefaultExactSearchMax, negative always uses the graph.
	ExactSearchMax int
}

// ErrDimensionMismatch is returned when a vector's length differs from the
// index dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
