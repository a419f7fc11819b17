// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/profiling"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// Global flags shared by every subcommand.
var (
	projectDir string
	debugMode  bool
	envFile    string
	profile    profiling.Options

	loggingCleanup func()
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Retrieval-augmented answers over a documentation tree",
		Long: `docrag indexes a documentation tree (git's manual pages by default)
into a versioned vector index and answers questions from it.

  docrag ingest          build or refresh the index
  docrag query "..."     answer a question from the command line
  docrag serve           run the HTTP API
  docrag mcp             serve tools to MCP clients over stdio`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .docrag.yaml")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().StringVar(&profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging loads the env file, then starts debug logging
// and profiling when requested.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	if debugMode {
		cfg := logging.DefaultConfig("")
		cfg.Level = "debug"
		cfg.WriteToStderr = true
		logger, cleanup, err := logging.Setup(cfg)
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}

	if profile.Enabled() {
		s, err := profiling.Start(profile)
		if err != nil {
			return err
		}
		profileSession = s
	}
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// loadEnvFile applies KEY=value pairs from path without overriding the
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command and prints a failure with its code and hint.
func Execute() error {
	root := NewRootCmd()
	cmd, err := root.ExecuteC()
	if err != nil {
		slog.Error("command_failed", docerrors.LogAttrs(err)...)
		reportError(cmd.ErrOrStderr(), cmd, err)
	}
	return err
}

// reportError prints err for humans, or as a JSON object when the failed
// command was asked for JSON output.
func reportError(w io.Writer, cmd *cobra.Command, err error) {
	if f := cmd.Flags().Lookup("json"); f != nil && f.Value.String() == "true" {
		if data, jerr := docerrors.FormatJSON(err); jerr == nil {
			_, _ = fmt.Fprintln(w, string(data))
			return
		}
	}
	_, _ = fmt.Fprint(w, docerrors.FormatForCLI(err))
}
