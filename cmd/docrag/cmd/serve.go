package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/api"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/output"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve /chat, /retrieve, /healthz and /metrics over HTTP.

The server watches the data directory and swaps in newly published
generations without dropping in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			lis, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
			}
			return runServe(ctx, cmd.ErrOrStderr(), cfg, lis)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

// runServe serves on lis until ctx is cancelled, then drains in-flight
// requests for up to server.shutdown_timeout.
func runServe(ctx context.Context, stderr io.Writer, cfg *config.Config, lis net.Listener) error {
	if !debugMode {
		logCfg := logging.DefaultConfig(cfg.Index.DataDir)
		logCfg.Level = cfg.Server.LogLevel
		logCfg.WriteToStderr = true
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
		slog.SetDefault(logger)
	}

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

	server, err := api.NewServer(api.Dependencies{
		Asker:      svc.answerer,
		Retriever:  svc.retriever,
		Index:      svc.manager,
		Generation: api.GenerationName(svc.manager),
	})
	if err != nil {
		return err
	}

	srv := api.NewHTTPServer(lis.Addr().String(), server.Routes(),
		config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		config.Duration(cfg.Server.WriteTimeout, 90*time.Second))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	output.New(stderr).Successf("Serving on http://%s", lis.Addr())
	slog.Info("server_started",
		slog.String("addr", lis.Addr().String()),
		slog.String("data_dir", cfg.Index.DataDir),
		slog.String("generation", api.GenerationName(svc.manager)()))

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("server_stopped")
	return nil
}
