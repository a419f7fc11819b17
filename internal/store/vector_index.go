package store

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/docrag/internal/chunk"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// VectorIndex maps chunks to unit-length embeddings in a cosine HNSW graph.
// Graph keys are positions in the chunk table, so the side mappings are
// slices. Indexes up to exactMax vectors are searched by a full scan, which
// returns the true nearest neighbours; the graph serves larger ones and is
// always the persisted form.
//
// Add is append-only; Search is read-only and safe for concurrent use.
type VectorIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	chunks   []*chunk.Chunk
	vectors  [][]float32
	info     Info
	efSearch int
	exactMax int
}

// NewVectorIndex creates an empty index.
func NewVectorIndex(opts Options) (*VectorIndex, error) {
	if opts.Dimensions <= 0 {
		return nil, docerrors.ValidationError(
			fmt.Sprintf("vector index needs positive dimensions, got %d", opts.Dimensions), nil)
	}
	if opts.M == 0 {
		opts.M = DefaultM
	}
	if opts.EfSearch == 0 {
		opts.EfSearch = DefaultEfSearch
	}

	return &VectorIndex{
		graph:    newGraph(opts.M, opts.EfSearch),
		efSearch: opts.EfSearch,
		exactMax: exactLimit(opts.ExactSearchMax),
		info: Info{
			SchemaVersion: SchemaVersion,
			Revision:      opts.Revision,
			Model:         opts.Model,
			Dimensions:    opts.Dimensions,
			CreatedAt:     time.Now().UTC(),
		},
	}, nil
}

func exactLimit(n int) int {
	if n == 0 {
		return DefaultExactSearchMax
	}
	return n
}

func newGraph(m, efSearch int) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = m
	graph.EfSearch = efSearch
	graph.Ml = 0.25
	return graph
}

// Add appends chunks with their embeddings. Duplicate chunk ids are stored
// twice.
func (x *VectorIndex) Add(chunks []*chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return docerrors.ValidationError(
			fmt.Sprintf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors)), nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, v := range vectors {
		if len(v) != x.info.Dimensions {
			return dimensionError(x.info.Dimensions, len(v))
		}
	}

	nodes := make([]hnsw.Node[uint64], len(chunks))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		normalizeVectorInPlace(vec)
		nodes[i] = hnsw.MakeNode(uint64(len(x.chunks)+i), vec)
		x.vectors = append(x.vectors, vec)
	}
	x.graph.Add(nodes...)
	x.chunks = append(x.chunks, chunks...)
	x.info.Chunks = len(x.chunks)

	return nil
}

// Search returns up to k chunks by descending cosine similarity to query.
// An empty index yields an empty slice.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(query) != x.info.Dimensions {
		return nil, dimensionError(x.info.Dimensions, len(query))
	}
	if k <= 0 || len(x.vectors) == 0 {
		return []Candidate{}, nil
	}
	k = min(k, len(x.vectors))

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	var results []Candidate
	if x.exactMax < 0 || len(x.vectors) > x.exactMax {
		results = x.graphCandidates(q, k)
	} else {
		results = x.scanCandidates(q)
	}
	sortCandidates(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// scanCandidates scores every stored vector. Callers hold mu.
func (x *VectorIndex) scanCandidates(q []float32) []Candidate {
	results := make([]Candidate, len(x.vectors))
	for key, vec := range x.vectors {
		results[key] = Candidate{Chunk: x.chunks[key], Score: dot(q, vec), Vector: vec}
	}
	return results
}

// graphCandidates asks the graph for at least efSearch nodes, since a
// search for exactly k stops early and misses true neighbours. Callers
// hold mu.
func (x *VectorIndex) graphCandidates(q []float32, k int) []Candidate {
	n := min(max(k, x.efSearch), len(x.vectors))
	nodes := x.graph.Search(q, n)
	results := make([]Candidate, 0, len(nodes))
	for _, node := range nodes {
		if node.Key >= uint64(len(x.chunks)) {
			continue
		}
		results = append(results, Candidate{
			Chunk:  x.chunks[node.Key],
			Score:  dot(q, node.Value),
			Vector: node.Value,
		})
	}
	return results
}

// sortCandidates orders by descending score; ties fall back to document
// path and ordinal so results are deterministic.
func sortCandidates(results []Candidate) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		a, b := results[i].Chunk, results[j].Chunk
		if a.DocPath != b.DocPath {
			return a.DocPath < b.DocPath
		}
		return a.Ordinal < b.Ordinal
	})
}

// tune overrides the search parameters of a loaded index; zero keeps the
// current value.
func (x *VectorIndex) tune(efSearch, exactMax int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if efSearch > 0 {
		x.efSearch = efSearch
		x.graph.EfSearch = efSearch
	}
	if exactMax != 0 {
		x.exactMax = exactMax
	}
}

// Len returns the number of stored vectors.
func (x *VectorIndex) Len() int {
	if x == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Info returns a copy of the index info.
func (x *VectorIndex) Info() Info {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.info
}

// Revision returns the document revision the index was built from.
func (x *VectorIndex) Revision() string {
	return x.Info().Revision
}

// IsStale reports whether the index must be rebuilt for revision.
// A nil or empty index is always stale.
func (x *VectorIndex) IsStale(revision string) bool {
	if x == nil || x.Len() == 0 {
		return true
	}
	return x.Revision() != revision
}

// Chunk returns the chunk with the given id, or nil.
func (x *VectorIndex) Chunk(id string) *chunk.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, c := range x.chunks {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Documents returns the distinct document paths in the index, sorted.
func (x *VectorIndex) Documents() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]struct{})
	var paths []string
	for _, c := range x.chunks {
		if _, ok := seen[c.DocPath]; ok {
			continue
		}
		seen[c.DocPath] = struct{}{}
		paths = append(paths, c.DocPath)
	}
	sort.Strings(paths)
	return paths
}

// DocumentChunks returns the chunks of one document in ordinal order.
func (x *VectorIndex) DocumentChunks(path string) []*chunk.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []*chunk.Chunk
	for _, c := range x.chunks {
		if c.DocPath == path {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Persist writes vectors.hnsw and metadata.db into dir. Each artifact is
// written to a temp file and renamed into place.
func (x *VectorIndex) Persist(dir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := x.writeGraph(filepath.Join(dir, VectorsFile)); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to persist vectors", err)
	}

	info := x.info
	info.Chunks = len(x.chunks)
	if err := writeMetadata(filepath.Join(dir, MetadataFile), info, x.chunks); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to persist metadata", err)
	}

	return nil
}

func (x *VectorIndex) writeGraph(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := x.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}

// Load opens the index persisted in dir. Any missing, unreadable or
// inconsistent artifact yields a CorruptIndex error.
func Load(dir string) (*VectorIndex, error) {
	vectorsPath := filepath.Join(dir, VectorsFile)
	metadataPath := filepath.Join(dir, MetadataFile)

	for _, p := range []string{vectorsPath, metadataPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, docerrors.CorruptIndex(
				fmt.Sprintf("missing index artifact %s", filepath.Base(p)), err).
				WithDetail("dir", dir)
		}
	}

	info, chunks, err := readMetadata(metadataPath)
	if err != nil {
		return nil, docerrors.CorruptIndex("unreadable index metadata", err).WithDetail("dir", dir)
	}
	if info.SchemaVersion != SchemaVersion {
		return nil, docerrors.CorruptIndex(
			fmt.Sprintf("schema version %d, expected %d", info.SchemaVersion, SchemaVersion), nil).
			WithDetail("dir", dir)
	}

	graph := newGraph(DefaultM, DefaultEfSearch)
	if len(chunks) > 0 {
		if graph, err = readGraph(vectorsPath); err != nil {
			return nil, docerrors.CorruptIndex("unreadable vector graph", err).WithDetail("dir", dir)
		}
	}

	if graph.Len() != len(chunks) {
		return nil, docerrors.CorruptIndex(
			fmt.Sprintf("graph holds %d vectors but metadata has %d chunks", graph.Len(), len(chunks)), nil).
			WithDetail("dir", dir)
	}
	vectors := make([][]float32, len(chunks))
	for key := range chunks {
		vec, ok := graph.Lookup(uint64(key))
		if !ok {
			return nil, docerrors.CorruptIndex(fmt.Sprintf("vector for chunk key %d missing", key), nil).
				WithDetail("dir", dir)
		}
		if len(vec) != info.Dimensions {
			return nil, docerrors.CorruptIndex("stored vector dimensions disagree with index info",
				ErrDimensionMismatch{Expected: info.Dimensions, Got: len(vec)}).WithDetail("dir", dir)
		}
		vectors[key] = vec
	}

	info.Chunks = len(chunks)
	return &VectorIndex{
		graph:    graph,
		chunks:   chunks,
		vectors:  vectors,
		info:     info,
		efSearch: DefaultEfSearch,
		exactMax: DefaultExactSearchMax,
	}, nil
}

func readGraph(path string) (*hnsw.Graph[uint64], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	graph := newGraph(DefaultM, DefaultEfSearch)
	// Import requires an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return graph, nil
}

func dimensionError(expected, got int) error {
	return docerrors.New(docerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector has %d dimensions, index expects %d", got, expected),
		ErrDimensionMismatch{Expected: expected, Got: got})
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// dot is the cosine similarity of two unit vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
