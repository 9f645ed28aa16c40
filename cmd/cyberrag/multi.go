package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/report"
)

// multiResultsFile is written into the output directory by the multi command.
const multiResultsFile = "multi_llm_results.json"

type multiOptions struct {
	pairs   []string
	demo    bool
	workers int
	topK    int
	output  string
	dataset string
}

// multiSummary is the JSON document written by the multi command.
type multiSummary struct {
	Timestamp time.Time               `json:"timestamp"`
	Rows      []experiment.SummaryRow `json:"results"`
	Best      map[string]bestPair     `json:"best"`
	Runs      []multiRun              `json:"runs"`
}

type bestPair struct {
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	SemanticSimilarity float64 `json:"semantic_similarity"`
}

type multiRun struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	RunID    string `json:"run_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newMultiCmd(a *app) *cobra.Command {
	var opts multiOptions
	cmd := &cobra.Command{
		Use:   "multi",
		Short: "Compare both methods across several provider/model pairs",
		Long: `Run the experiment once per provider/model pair and summarise semantic
similarity and response time per pair and method.

A pair that cannot be run (unknown provider, missing credentials, provider
failure) is reported and skipped.`,
		Example: `  cyberrag multi --pair openai/gpt-3.5-turbo --pair anthropic:claude-3-haiku-20240307`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMulti(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.pairs, "pair", nil, "provider/model to compare, repeatable (default: openai/gpt-3.5-turbo and openai/gpt-4)")
	f.BoolVar(&opts.demo, "demo", false, "Run every pair without LLM calls")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent queries per method (default from config)")
	f.IntVar(&opts.topK, "top-k", 0, "Documents retrieved per query (default from config)")
	f.StringVarP(&opts.output, "output", "o", "", "Output directory (default from config)")
	f.StringVar(&opts.dataset, "dataset", "", "YAML dataset file (default: built-in corpus)")
	return cmd
}

func (a *app) runMulti(cmd *cobra.Command, opts multiOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pairs := experiment.DefaultPairs()
	if len(opts.pairs) > 0 {
		pairs = pairs[:0:0]
		for _, s := range opts.pairs {
			p, err := experiment.ParsePair(s)
			if err != nil {
				return err
			}
			pairs = append(pairs, p)
		}
	}

	ds, err := a.loadDataset(opts.dataset)
	if err != nil {
		return err
	}
	enc, err := a.newEncoder()
	if err != nil {
		return err
	}

	var cleanups []func()
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()
	newGen := func(p experiment.Pair) (llm.TextGenerator, error) {
		if opts.demo {
			return nil, nil
		}
		gen, cleanup, err := a.newGenerator(ctx, p.Provider, p.Model)
		cleanups = append(cleanups, cleanup)
		return gen, err
	}

	fmt.Fprintf(out, "Testing %d LLM configurations\n\n", len(pairs))
	results, err := experiment.RunMulti(ctx, ds, pairs, newGen, enc,
		a.runConfig("", "", opts.topK, opts.workers),
		experiment.WithLogger(a.logger),
		experiment.WithTracer(a.tracer),
		experiment.WithGraph(graph.New()),
	)
	if err != nil {
		return err
	}

	summary := multiSummary{Timestamp: time.Now().UTC(), Best: map[string]bestPair{}}
	var reps []*experiment.Report
	for _, res := range results {
		run := multiRun{Provider: res.Pair.Provider, Model: res.Pair.Model}
		if res.Err != nil {
			run.Error = res.Err.Error()
			fmt.Fprintf(out, "✗ %s: %v\n", res.Pair, res.Err)
		} else {
			run.RunID = res.Report.RunID
			reps = append(reps, res.Report)
			fmt.Fprintf(out, "✓ %s: run %s\n", res.Pair, res.Report.RunID)
		}
		summary.Runs = append(summary.Runs, run)
	}
	if len(reps) == 0 {
		return fmt.Errorf("all %d runs failed", len(results))
	}

	summary.Rows = experiment.Summarize(results)
	fmt.Fprintln(out)
	fmt.Fprintln(out, report.SummaryTable(summary.Rows))

	fmt.Fprintln(out, "\nBest Performers:")
	for _, m := range []struct{ key, name string }{
		{experiment.KeyPlain, "Traditional RAG"},
		{experiment.KeyGraph, "Agentic Graph RAG"},
	} {
		p, score, ok := experiment.BestPair(results, m.key)
		if !ok {
			continue
		}
		summary.Best[m.key] = bestPair{Provider: p.Provider, Model: p.Model, SemanticSimilarity: score}
		fmt.Fprintf(out, "  %s: %s (semantic similarity %.4f)\n", m.name, p, score)
	}

	path := filepath.Join(firstNonEmpty(opts.output, a.cfg.Experiment.OutputDir), multiResultsFile)
	if err := writeJSON(path, summary); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWrote %s\n", path)

	return a.saveRuns(cmd, reps...)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
