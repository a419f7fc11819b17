package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that docrag can ingest and serve",
		Long: `Check the document tree, the data directory (permissions and free
space), the embedding provider and the published index.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, verbose, jsonOutput bool) error {
	opts := []preflight.Option{preflight.WithOutput(out), preflight.WithVerbose(verbose)}
	if e, err := embed.New(ctx, cfg.Embeddings); err == nil {
		defer func() { _ = e.Close() }()
		opts = append(opts, preflight.WithEmbedder(e))
	}

	checker := preflight.New(cfg, opts...)
	results := checker.RunAll(ctx)

	if jsonOutput {
		if err := encodeJSON(out, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("required checks failed")
	}
	return nil
}
