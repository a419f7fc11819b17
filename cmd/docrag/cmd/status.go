package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display the published generation: revision, chunk count, embedding
model, storage sizes and retained generations, plus embedder availability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cfg, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, out io.Writer, cfg *config.Config, jsonOutput bool) error {
	info := collectStatus(ctx, cfg)

	renderer := ui.NewStatusRenderer(out, ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus never fails; problems are reported in the returned info.
func collectStatus(ctx context.Context, cfg *config.Config) ui.StatusInfo {
	info := ui.StatusInfo{DataDir: cfg.Index.DataDir}

	manager := store.NewManager(cfg.Index.DataDir, cfg.Index.KeepGenerations)
	if err := manager.Open(); err != nil {
		info.Error = err.Error()
	}
	if gen := manager.Current(); gen != nil {
		meta := gen.Index.Info()
		info.Generation = gen.Name
		info.Revision = meta.Revision
		info.Model = meta.Model
		info.Dimensions = meta.Dimensions
		info.Chunks = meta.Chunks
		info.CreatedAt = meta.CreatedAt
		info.VectorSize = fileSize(filepath.Join(gen.Dir, store.VectorsFile))
		info.MetadataSize = fileSize(filepath.Join(gen.Dir, store.MetadataFile))
	}
	if gens, err := manager.Generations(); err == nil {
		info.Generations = gens
	}

	info.EmbedderType = cfg.Embeddings.Provider
	info.EmbedderModel = cfg.Embeddings.Model
	info.EmbedderStatus = "offline"
	if e, err := embed.New(ctx, cfg.Embeddings); err == nil {
		ei := embed.GetInfo(ctx, e)
		info.EmbedderType = string(ei.Provider)
		info.EmbedderModel = ei.Model
		if ei.Available {
			info.EmbedderStatus = "ready"
		}
		_ = e.Close()
	}
	return info
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
