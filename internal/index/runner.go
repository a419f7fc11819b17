// Package index provides the ingestion Runner: load documents, chunk them,
// embed the chunks, and publish a new index generation.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// Document outcomes recorded in telemetry.IngestDocumentsTotal.
const (
	outcomeIndexed = "indexed"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Chunker splits one document into chunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *chunk.Document) ([]*chunk.Chunk, error)
}

// RunnerConfig configures one ingestion run.
type RunnerConfig struct {
	// Force rebuilds even when the published index matches the revision.
	Force bool

	// Revision overrides revision detection.
	Revision string
}

// RunnerResult contains the outcome of an ingestion run.
type RunnerResult struct {
	Revision   string
	Generation string

	// UpToDate is set when the run was skipped because the published
	// index already matches the document revision.
	UpToDate bool

	Documents       int
	Skipped         int
	FailedDocuments int
	Chunks          int
	FailedChunks    int
	Duration        time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded project configuration (required).
	Config *config.Config

	// Manager publishes generations (required).
	Manager *store.Manager

	// Embedder for chunk embeddings (required).
	Embedder embed.Embedder

	// Chunker defaults to a SectionChunker built from Config.Chunking.
	Chunker Chunker
}

// Runner executes ingestion with progress reporting.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	manager  *store.Manager
	embedder embed.Embedder
	chunker  Chunker
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("index manager is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewSectionChunkerWithOptions(chunk.Options{
			MaxChunkChars: deps.Config.Chunking.MaxChunkChars,
			OverlapChars:  deps.Config.Chunking.OverlapChars,
		})
	}

	return &Runner{
		renderer: deps.Renderer,
		config:   deps.Config,
		manager:  deps.Manager,
		embedder: deps.Embedder,
		chunker:  chunker,
	}, nil
}

// stageTiming tracks duration for each ingestion stage.
type stageTiming struct {
	load    time.Duration
	chunk   time.Duration
	embed   time.Duration
	publish time.Duration
}

// Run executes the full ingestion pipeline. The rebuild lock is held from
// chunking through publication, so a concurrent ingest fails fast with
// RebuildInProgress instead of doing the work twice.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	startTime := time.Now()
	var timing stageTiming

	loadStart := time.Now()
	snap, err := r.load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	timing.load = time.Since(loadStart)

	result := &RunnerResult{
		Revision:  snap.Revision,
		Documents: len(snap.Documents),
		Skipped:   len(snap.Skipped),
	}
	telemetry.IngestDocumentsTotal.WithLabelValues(outcomeSkipped).Add(float64(len(snap.Skipped)))

	if !cfg.Force && r.upToDate(snap.Revision) {
		result.UpToDate = true
		result.Duration = time.Since(startTime)
		slog.Info("ingest_up_to_date", slog.String("revision", snap.Revision))
		r.complete(result, timing)
		return result, nil
	}

	gen, err := r.manager.Rebuild(ctx, func(ctx context.Context) (*store.VectorIndex, error) {
		chunkStart := time.Now()
		chunks, failedDocs, err := r.chunkDocuments(ctx, snap.Documents)
		timing.chunk = time.Since(chunkStart)
		result.FailedDocuments = failedDocs
		if err != nil {
			return nil, err
		}

		embedStart := time.Now()
		kept, vectors, failedChunks, err := r.embedChunks(ctx, chunks)
		timing.embed = time.Since(embedStart)
		result.FailedChunks = failedChunks
		if err != nil {
			return nil, err
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StagePublishing,
			Message: fmt.Sprintf("Publishing %d chunks...", len(kept)),
		})
		publishStart := time.Now()
		defer func() { timing.publish = time.Since(publishStart) }()

		idx, err := store.NewVectorIndex(store.Options{
			Dimensions:     r.embedder.Dimensions(),
			Model:          r.embedder.ModelName(),
			Revision:       snap.Revision,
			M:              r.config.Index.M,
			EfSearch:       r.config.Index.EfSearch,
			ExactSearchMax: r.config.Index.ExactSearchMax,
		})
		if err != nil {
			return nil, err
		}
		if err := idx.Add(kept, vectors); err != nil {
			return nil, err
		}
		result.Chunks = idx.Len()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}

	result.Generation = gen.Name
	result.Duration = time.Since(startTime)
	r.complete(result, timing)

	slog.Info("ingest_complete",
		slog.String("revision", result.Revision),
		slog.String("generation", result.Generation),
		slog.Int("documents", result.Documents),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed_documents", result.FailedDocuments),
		slog.Int("chunks", result.Chunks),
		slog.Int("failed_chunks", result.FailedChunks),
		slog.Int64("duration_load_ms", timing.load.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_publish_ms", timing.publish.Milliseconds()),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()))

	return result, nil
}

// load reads the document tree.
func (r *Runner) load(ctx context.Context, cfg RunnerConfig) (*source.Snapshot, error) {
	docs := r.config.Docs
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Message: fmt.Sprintf("Loading %s...", docs.Root),
	})
	slog.Info("ingest_load_started", slog.String("root", docs.Root))

	snap, err := source.Load(ctx, source.OptionsFromConfig(docs, cfg.Revision))
	if err != nil {
		return nil, err
	}
	for _, s := range snap.Skipped {
		r.renderer.AddError(ui.ErrorEvent{
			File:   s.Path,
			Err:    fmt.Errorf("skipped: %s", s.Reason),
			IsWarn: true,
		})
	}
	if len(snap.Documents) == 0 {
		slog.Warn("ingest_no_documents", slog.String("root", snap.Root))
	}
	return snap, nil
}

// upToDate reports whether the served index already covers revision with
// the current embedding model.
func (r *Runner) upToDate(revision string) bool {
	idx, err := r.manager.Index()
	if err != nil || idx == nil {
		return false
	}
	return !idx.IsStale(revision) && idx.Info().Model == r.embedder.ModelName()
}

// chunkDocuments chunks docs on a bounded worker pool. Output keeps
// document order. A document that fails to chunk is skipped and reported;
// only the failure of every document is an error.
func (r *Runner) chunkDocuments(ctx context.Context, docs []*chunk.Document) ([]*chunk.Chunk, int, error) {
	total := len(docs)
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Total: total})

	workers := r.config.Docs.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	perDoc := make([][]*chunk.Chunk, total)
	errs := make([]error, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			chunks, err := r.chunker.Chunk(gctx, doc)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			perDoc[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("chunking interrupted: %w", err)
	}

	var all []*chunk.Chunk
	failed := 0
	var lastErr error
	for i, doc := range docs {
		if err := errs[i]; err != nil {
			failed++
			lastErr = err
			telemetry.IngestDocumentsTotal.WithLabelValues(outcomeFailed).Inc()
			slog.Warn("ingest_document_failed",
				slog.String("path", doc.Path),
				slog.String("error", err.Error()))
			r.renderer.AddError(ui.ErrorEvent{File: doc.Path, Err: err, IsWarn: true})
			continue
		}
		telemetry.IngestDocumentsTotal.WithLabelValues(outcomeIndexed).Inc()
		all = append(all, perDoc[i]...)
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     i + 1,
			Total:       total,
			CurrentFile: doc.Path,
		})
	}

	if total > 0 && failed == total {
		return nil, failed, errors.New(errors.ErrCodeChunkingFailed,
			fmt.Sprintf("all %d documents failed to chunk", total), lastErr)
	}

	slog.Info("ingest_chunking_complete",
		slog.Int("documents", total-failed),
		slog.Int("failed", failed),
		slog.Int("chunks", len(all)))
	return all, failed, nil
}

// batchSize returns the configured ingestion batch size.
func (r *Runner) batchSize() int {
	n := r.config.Embeddings.BatchSize
	if n <= 0 {
		n = embed.DefaultBatchSize
	}
	return min(n, embed.MaxBatchSize)
}

// embedChunks embeds chunks in batches. A failed batch is retried one chunk
// at a time; chunks that still fail are dropped and counted. Returns the
// embedded chunks and their vectors, aligned.
func (r *Runner) embedChunks(ctx context.Context, chunks []*chunk.Chunk) ([]*chunk.Chunk, [][]float32, int, error) {
	total := len(chunks)
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: total})

	kept := make([]*chunk.Chunk, 0, total)
	vectors := make([][]float32, 0, total)
	failed := 0
	var lastErr error

	size := r.batchSize()
	for start := 0; start < total; start += size {
		if err := ctx.Err(); err != nil {
			slog.Info("ingest_interrupted", slog.Int("embedded", len(kept)), slog.Int("total", total))
			return nil, nil, failed, fmt.Errorf("ingestion interrupted at %d/%d chunks: %w", start, total, err)
		}

		end := min(start+size, total)
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.EmbeddingText()
		}

		batchVectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err == nil && len(batchVectors) != len(batch) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(batchVectors), len(batch))
		}
		if err == nil {
			kept = append(kept, batch...)
			vectors = append(vectors, batchVectors...)
		} else {
			if ctx.Err() != nil {
				return nil, nil, failed, ctx.Err()
			}
			slog.Warn("ingest_batch_failed",
				slog.Int("start", start),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()))

			for i, c := range batch {
				vec, err := r.embedder.Embed(ctx, texts[i])
				if err != nil {
					failed++
					lastErr = err
					slog.Warn("ingest_chunk_failed", slog.String("chunk", c.ID), slog.String("error", err.Error()))
					r.renderer.AddError(ui.ErrorEvent{File: c.DocPath, Err: fmt.Errorf("embed %s: %w", c.ID, err), IsWarn: true})
					continue
				}
				kept = append(kept, c)
				vectors = append(vectors, vec)
			}
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: end,
			Total:   total,
		})
	}

	if total > 0 && failed == total {
		return nil, nil, failed, errors.EmbeddingFailure(fmt.Sprintf("all %d chunks failed to embed", total), lastErr)
	}
	return kept, vectors, failed, nil
}

// complete reports the final summary to the renderer.
func (r *Runner) complete(result *RunnerResult, timing stageTiming) {
	info := embed.GetInfo(context.Background(), r.embedder)
	r.renderer.Complete(ui.CompletionStats{
		Revision:   result.Revision,
		Generation: result.Generation,
		UpToDate:   result.UpToDate,
		Documents:  result.Documents,
		Chunks:     result.Chunks,
		Duration:   result.Duration,
		Errors:     result.FailedDocuments,
		Warnings:   result.Skipped + result.FailedChunks,
		Stages: ui.StageTimings{
			Load:    timing.load,
			Chunk:   timing.chunk,
			Embed:   timing.embed,
			Publish: timing.publish,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
	})
}
