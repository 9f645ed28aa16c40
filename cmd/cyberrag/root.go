package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/cyberrag/internal/config"
	"github.com/scrypster/cyberrag/internal/observability"
)

// app carries the state shared by all subcommands. It is populated by the
// root command's PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	shutdown observability.ShutdownFunc
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cyberrag",
		Short: "Compare traditional RAG with knowledge graph augmented RAG",
		Long: `cyberrag answers cybersecurity questions two ways and measures the
difference: traditional RAG prompts the model with the nearest documents,
agentic graph RAG also adds entities, relationships and mitigations from a
cybersecurity knowledge graph.

Configuration is read from defaults, then the --config YAML file, then
CYBERRAG_* environment variables.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to YAML config file (default: $CYBERRAG_CONFIG)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text, json")

	cmd.AddCommand(
		newExperimentCmd(a),
		newMultiCmd(a),
		newDemoCmd(a),
		newGraphCmd(),
		newServeCmd(a),
	)
	return cmd
}

// setup loads configuration and builds the logger and tracer.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("CYBERRAG_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" || a.logFormat != "" {
		if a.logLevel != "" {
			cfg.Logging.Level = strings.ToLower(a.logLevel)
		}
		if a.logFormat != "" {
			cfg.Logging.Format = strings.ToLower(a.logFormat)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	tp, shutdown, err := observability.NewTracerProvider(cmd.Context(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = observability.Tracer(tp)
	a.shutdown = shutdown

	a.logger.Debug("configuration loaded",
		"config", path,
		"llm_provider", cfg.LLM.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"storage", cfg.Storage.Engine,
		"tracing", cfg.Tracing.Enabled)
	return nil
}

// close flushes pending spans.
func (a *app) close() {
	if a.shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil && a.logger != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
	a.shutdown = nil
}
