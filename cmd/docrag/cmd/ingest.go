package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

type ingestOptions struct {
	force    bool
	revision string
	docs     string
	plain    bool
	watch    bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build or refresh the document index",
		Long: `Walk the documentation tree, split it into sections, embed them and
publish a new index generation.

Ingestion is skipped when the published generation already matches the
documentation revision (the git HEAD of the tree, or a content hash).
Use --force to rebuild anyway. Running servers pick up the new generation
without a restart.

With --watch, ingest stays running and rebuilds whenever a document
under the tree is created, edited or removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Cancellation must reach the embedding batches on Ctrl+C.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.docs != "" {
				cfg.Docs.Root = opts.docs
			}
			return runIngest(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Rebuild even when the index matches the document revision")
	cmd.Flags().StringVar(&opts.revision, "revision", "", "Record this revision instead of detecting it")
	cmd.Flags().StringVar(&opts.docs, "docs", "", "Documentation directory (overrides docs.root)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable the TUI, use plain text output")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep running and re-ingest when documents change")

	return cmd
}

func runIngest(ctx context.Context, out io.Writer, cfg *config.Config, opts ingestOptions) error {
	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	manager := store.NewManager(cfg.Index.DataDir, cfg.Index.KeepGenerations)
	manager.SetSearchOptions(cfg.Index.EfSearch, cfg.Index.ExactSearchMax)
	if err := manager.Open(); err != nil {
		// A corrupt generation is exactly what a rebuild repairs.
		output.New(out).Warningf("Published index is unreadable, rebuilding: %v", err)
		opts.force = true
	}

	if err := ingestOnce(ctx, out, cfg, manager, embedder, opts); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watchDocs(ctx, out, cfg, manager, embedder, opts)
}

func ingestOnce(ctx context.Context, out io.Writer, cfg *config.Config, manager *store.Manager, embedder embed.Embedder, opts ingestOptions) error {
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithDocsRoot(cfg.Docs.Root)))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Manager:  manager,
		Embedder: embedder,
	})
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx, index.RunnerConfig{
		Force:    opts.force,
		Revision: opts.revision,
	})
	return err
}

// watchDocs re-ingests on every debounced batch of document changes until
// ctx is done. Failed runs are reported and the previous generation stays
// published.
func watchDocs(ctx context.Context, out io.Writer, cfg *config.Config, manager *store.Manager, embedder embed.Embedder, opts ingestOptions) error {
	w, err := watcher.New(cfg.Docs.Root, watcher.Options{
		Source: source.OptionsFromConfig(cfg.Docs, ""),
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	if err := w.Start(ctx); err != nil {
		return err
	}

	o := output.New(out)
	o.Statusf("👀", "Watching %s for changes (Ctrl+C to stop)", w.Root())

	// The revision of a git tree does not move with uncommitted edits.
	opts.force = true
	opts.plain = true
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			o.Statusf("↻", "%d document change(s): %s", len(batch), describeBatch(batch))
			if err := ingestOnce(ctx, out, cfg, manager, embedder, opts); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				o.Errorf("Ingestion failed, keeping the published index: %v", err)
			}
		case err, ok := <-w.Errors():
			if ok {
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	}
}

func describeBatch(batch []watcher.FileEvent) string {
	const shown = 3
	parts := make([]string, 0, shown+1)
	for i, ev := range batch {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(batch)-shown))
			break
		}
		parts = append(parts, strings.ToLower(ev.Operation.String())+" "+ev.Path)
	}
	return strings.Join(parts, ", ")
}
