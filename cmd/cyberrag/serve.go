package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/cyberrag/internal/config"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/notify"
	"github.com/scrypster/cyberrag/internal/server"
)

type serveOptions struct {
	host    string
	port    int
	demo    bool
	dataset string
	watch   bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph, both engines and the run history over HTTP",
		Long: `Start the HTTP API. Both engines index the dataset at startup.

Without an API key for the configured provider, /api/query answers with
canned demo responses. Run history endpoints need storage.engine sqlite or
postgres. Progress of runs started with POST /api/runs is streamed on /ws.

With --watch, edits to the --dataset file are re-indexed without a restart.
A file that fails to load leaves the previous corpus in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "Listen host (default from config)")
	f.IntVar(&opts.port, "port", -1, "Listen port, 0 picks a free port (default from config)")
	f.BoolVar(&opts.demo, "demo", false, "Answer queries without LLM calls")
	f.StringVar(&opts.dataset, "dataset", "", "YAML dataset file (default: built-in corpus)")
	f.BoolVar(&opts.watch, "watch", false, "Reload the --dataset file when it changes")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx := cmd.Context()
	if opts.watch && opts.dataset == "" {
		return fmt.Errorf("%w: --watch requires --dataset", config.ErrInvalidConfig)
	}

	srvCfg := a.cfg.Server
	if opts.host != "" {
		srvCfg.Host = opts.host
	}
	if opts.port >= 0 {
		srvCfg.Port = opts.port
	}

	ds, err := a.loadDataset(opts.dataset)
	if err != nil {
		return err
	}
	enc, err := a.newEncoder()
	if err != nil {
		return err
	}
	provider, model := a.cfg.LLM.Provider, a.cfg.LLM.Model
	gen, cleanup, err := a.generatorOrDemo(ctx, provider, model, opts.demo)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	if store != nil {
		defer closeStore(store, a)
	}

	srv, err := server.New(ctx, srvCfg, server.Deps{
		Dataset:   ds,
		Encoder:   enc,
		Generator: gen,
		Graph:     graph.New(),
		Store:     store,
		Run:       a.runConfig(provider, model, 0, 0),
	}, server.WithLogger(a.logger), server.WithTracer(a.tracer))
	if err != nil {
		return err
	}

	addr, err := srv.Start(ctx)
	if err != nil {
		srv.Close()
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s (demo: %t)\n", addr, gen == nil)

	if opts.watch {
		fw := notify.NewFileWatcher(opts.dataset, 0, func(path string) {
			ds, err := a.loadDataset(path)
			if err != nil {
				a.logger.Error("dataset reload failed, keeping previous corpus", "path", path, "error", err)
				return
			}
			if err := srv.Reload(ctx, ds); err != nil {
				a.logger.Error("dataset reindex failed", "path", path, "error", err)
			}
		}, a.logger)
		if err := fw.Start(); err != nil {
			a.logger.Warn("dataset watch disabled", "error", err)
		} else {
			defer fw.Stop()
		}
	}

	<-srv.Done()
	return nil
}
