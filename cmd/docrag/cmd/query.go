package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/api"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/output"
)

type queryOptions struct {
	topK         int
	jsonOutput   bool
	retrieveOnly bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed documentation",
		Long: `Classify the question, retrieve the most relevant sections and
answer from them. The answer cites its sources in rank order.

Use --retrieve-only to list the retrieved sections without answering.`,
		Example: `  docrag query "How do I undo a commit?"
  docrag query --top-k 6 --json "difference between merge and rebase"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of sections to use (0 = per-intent default)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.retrieveOnly, "retrieve-only", false, "List retrieved sections without answering")

	return cmd
}

func runQuery(ctx context.Context, out io.Writer, cfg *config.Config, question string, opts queryOptions) error {
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	w := output.New(out)

	if opts.retrieveOnly {
		result, err := svc.retriever.Retrieve(ctx, question, opts.topK)
		if err != nil {
			return err
		}
		if opts.jsonOutput {
			return encodeJSON(out, api.ToRetrieveResponse(result))
		}
		w.Retrieval(result)
		return nil
	}

	resp, err := svc.answerer.Ask(ctx, question, opts.topK)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return encodeJSON(out, resp)
	}
	w.Answer(resp)
	return nil
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
