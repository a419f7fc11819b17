package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/api"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve retrieve, ask and index_status tools over MCP stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Stdout carries JSON-RPC only; logs go to the file under the data
directory. Indexed documents are exposed as docrag://docs/ resources.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runMCP(ctx, cfg)
		},
	}
}

func runMCP(ctx context.Context, cfg *config.Config) error {
	cleanup, err := logging.SetupStdioSafe(cfg.Index.DataDir)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if cfg.Server.WatchIndex {
		go func() {
			if err := svc.manager.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("index_watch_failed", slog.String("error", err.Error()))
			}
		}()
	}

	server, err := mcp.NewServer(mcp.Dependencies{
		Asker:      svc.answerer,
		Retriever:  svc.retriever,
		Index:      svc.manager,
		Generation: api.GenerationName(svc.manager),
		Embedder:   svc.embedder,
	})
	if err != nil {
		return err
	}

	err = server.Serve(ctx, "stdio")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
