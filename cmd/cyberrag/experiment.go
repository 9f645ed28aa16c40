package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/report"
	"github.com/scrypster/cyberrag/internal/storage"
)

type experimentOptions struct {
	provider string
	model    string
	demo     bool
	workers  int
	topK     int
	output   string
	dataset  string
	quiet    bool
}

func newExperimentCmd(a *app) *cobra.Command {
	var opts experimentOptions
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run both retrieval methods over the dataset and write reports",
		Long: `Run every dataset query through traditional RAG and agentic graph RAG,
score the answers against the ground truth and compare the methods.

results.json, report.md and report.html are written to the output directory
and the run is saved to the configured run history store.

Without an API key for the provider the run falls back to demo mode:
documents are retrieved and the graph is consulted, but answers are canned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runExperiment(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.provider, "provider", "", "LLM provider: openai, anthropic, ollama, demo (default from config)")
	f.StringVar(&opts.model, "model", "", "LLM model name (default from config)")
	f.BoolVar(&opts.demo, "demo", false, "Run without LLM calls")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent queries per method (default from config)")
	f.IntVar(&opts.topK, "top-k", 0, "Documents retrieved per query (default from config)")
	f.StringVarP(&opts.output, "output", "o", "", "Report directory (default from config)")
	f.StringVar(&opts.dataset, "dataset", "", "YAML dataset file (default: built-in corpus)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print per-query progress")
	return cmd
}

func (a *app) runExperiment(cmd *cobra.Command, opts experimentOptions) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	provider := firstNonEmpty(opts.provider, a.cfg.LLM.Provider)
	model := firstNonEmpty(opts.model, a.cfg.LLM.Model)

	ds, err := a.loadDataset(opts.dataset)
	if err != nil {
		return err
	}
	enc, err := a.newEncoder()
	if err != nil {
		return err
	}
	gen, cleanup, err := a.generatorOrDemo(ctx, provider, model, opts.demo)
	if err != nil {
		return err
	}
	defer cleanup()

	runOpts := []experiment.Option{
		experiment.WithLogger(a.logger),
		experiment.WithTracer(a.tracer),
		experiment.WithGraph(graph.New()),
	}
	if !opts.quiet {
		runOpts = append(runOpts, experiment.WithProgress(progressPrinter(errOut)))
	}
	runner, err := experiment.NewRunner(ds, gen, enc, a.runConfig(provider, model, opts.topK, opts.workers), runOpts...)
	if err != nil {
		return err
	}

	if runner.Demo() {
		fmt.Fprintln(out, "Running in DEMO mode (no LLM API calls)")
	} else {
		fmt.Fprintf(out, "Running experiment with %s/%s\n", provider, model)
	}
	fmt.Fprintf(out, "Dataset: %d documents, %d queries\n\n", len(ds.Documents), len(ds.Queries))

	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, report.Table(rep))
	outDir := firstNonEmpty(opts.output, a.cfg.Experiment.OutputDir)
	paths, err := report.WriteAll(outDir, rep)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Wrote %s\n", p)
	}

	if err := a.saveRuns(cmd, rep); err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s completed\n", rep.RunID)
	return nil
}

// saveRuns stores reports in the run history when storage is enabled.
func (a *app) saveRuns(cmd *cobra.Command, reps ...*experiment.Report) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	if store == nil {
		return nil
	}
	defer closeStore(store, a)

	for _, rep := range reps {
		if err := store.SaveRun(cmd.Context(), rep); err != nil {
			return fmt.Errorf("save run %s: %w", rep.RunID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s to %s history\n", rep.RunID, a.cfg.Storage.Engine)
	}
	return nil
}

func closeStore(store storage.RunStore, a *app) {
	if err := store.Close(); err != nil {
		a.logger.Warn("failed to close run store", "error", err)
	}
}

// progressPrinter writes one line per answered query.
func progressPrinter(w io.Writer) func(experiment.Event) {
	return func(e experiment.Event) {
		fmt.Fprintf(w, "[%s] %d/%d %.2fs docs=%d kg=%d  %s\n",
			e.Method, e.Index, e.Total, e.Elapsed.Seconds(), e.NumRetrieved, e.NumKGEntities, e.Query)
	}
}
