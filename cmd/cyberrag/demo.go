package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/pkg/types"
)

const (
	defaultDemoEntity = "Phishing"
	defaultDemoQuery  = "What is phishing and how can I protect against it?"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#667eea"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

type demoOptions struct {
	entity  string
	query   string
	topK    int
	dataset string
}

func newDemoCmd(a *app) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through the knowledge graph and both retrieval paths",
		Long: `Show the cybersecurity knowledge graph (statistics, one entity's
neighbourhood, its mitigations, all threats and mitigations) and then
retrieve context for one question with both methods. No LLM is called.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.entity, "entity", defaultDemoEntity, "Entity to inspect")
	f.StringVar(&opts.query, "query", defaultDemoQuery, "Question to retrieve context for")
	f.IntVar(&opts.topK, "top-k", 0, "Documents retrieved (default from config)")
	f.StringVar(&opts.dataset, "dataset", "", "YAML dataset file (default: built-in corpus)")
	return cmd
}

func (a *app) runDemo(cmd *cobra.Command, opts demoOptions) error {
	out := cmd.OutOrStdout()
	kg := graph.New()

	fmt.Fprintln(out, titleStyle.Render("CYBERSECURITY KNOWLEDGE GRAPH DEMO"))
	printStats(out, kg.Statistics())

	heading(out, fmt.Sprintf("Entity: %s", opts.entity))
	ec, ok := kg.EntityContext(opts.entity)
	if !ok {
		return fmt.Errorf("entity %q is not in the knowledge graph", opts.entity)
	}
	printEntity(out, ec)

	heading(out, fmt.Sprintf("Mitigations for %s", opts.entity))
	printMitigations(out, kg.MitigationPath(opts.entity))

	heading(out, "All Threats")
	printList(out, kg.EntitiesOfType(types.EntityTypeThreat))
	heading(out, "All Mitigations")
	printList(out, kg.EntitiesOfType(types.EntityTypeMitigation))

	return a.demoRetrieval(cmd, kg, opts)
}

// demoRetrieval indexes the dataset with both engines and shows what each
// would put in front of the model for opts.query.
func (a *app) demoRetrieval(cmd *cobra.Command, kg *graph.KnowledgeGraph, opts demoOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ds, err := a.loadDataset(opts.dataset)
	if err != nil {
		return err
	}
	enc, err := a.newEncoder()
	if err != nil {
		return err
	}
	cfg := ragConfig(a.cfg, a.cfg.LLM.Model)
	engOpts := []rag.Option{rag.WithLogger(a.logger), rag.WithTracer(a.tracer)}
	plain, err := rag.NewPlainEngine(enc, cfg, engOpts...)
	if err != nil {
		return err
	}
	augmented, err := rag.NewGraphEngine(enc, kg, cfg, engOpts...)
	if err != nil {
		return err
	}
	if err := plain.AddDocuments(ctx, ds.Documents); err != nil {
		return err
	}
	if err := augmented.AddDocuments(ctx, ds.Documents); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("RAG COMPARISON DEMO"))
	fmt.Fprintf(out, "Query: %s\n", opts.query)

	heading(out, "1. "+plain.Name())
	docs, err := plain.Retrieve(ctx, opts.query, opts.topK)
	if err != nil {
		return err
	}
	printDocs(out, docs)

	heading(out, "2. "+augmented.Name())
	docs, err = augmented.Retrieve(ctx, opts.query, opts.topK)
	if err != nil {
		return err
	}
	printDocs(out, docs)
	bundle := augmented.Expand(ctx, opts.query, docs)
	fmt.Fprintf(out, "\nIdentified entities: %s\n", joinOrNone(bundle.IdentifiedEntities))
	fmt.Fprintf(out, "Related threats:     %s\n", joinOrNone(bundle.RelatedThreats))
	fmt.Fprintf(out, "Vulnerabilities:     %s\n", joinOrNone(bundle.Vulnerabilities))
	fmt.Fprintln(out, "Mitigations:")
	printMitigations(out, bundle.Mitigations)
	return nil
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render(title))
	fmt.Fprintln(w, strings.Repeat("-", 60))
}

func printStats(w io.Writer, stats types.GraphStatistics) {
	fmt.Fprintf(w, "\nKnowledge Graph Statistics:\n")
	fmt.Fprintf(w, "  Nodes: %d\n", stats.NumNodes)
	fmt.Fprintf(w, "  Edges: %d\n", stats.NumEdges)
	fmt.Fprintf(w, "  Average Degree: %.2f\n", stats.AvgDegree)
	fmt.Fprintf(w, "\nNode Types:\n")
	for _, t := range types.ValidEntityTypes {
		if n, ok := stats.NodeTypes[t]; ok {
			fmt.Fprintf(w, "  %s: %d\n", t, n)
		}
	}
}

func printEntity(w io.Writer, ec *types.EntityContext) {
	fmt.Fprintf(w, "Type: %s\n", ec.Type())
	if sev, ok := ec.Attributes["severity"]; ok {
		fmt.Fprintf(w, "Severity: %v\n", sev)
	}
	fmt.Fprintf(w, "Description: %s\n", ec.Description())

	fmt.Fprintln(w, "\nDirect Relationships:")
	direct := ec.Related.Direct
	if len(direct) > 5 {
		direct = direct[:5]
	}
	if len(direct) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, rel := range direct {
		fmt.Fprintf(w, "  - %s %s\n", rel.Relation, rel.Entity)
	}
	if len(ec.Related.Indirect) > 0 {
		fmt.Fprintln(w, "Indirect Relationships:")
	}
	for _, rel := range ec.Related.Indirect {
		fmt.Fprintf(w, "  - %s %s (via %s)\n", rel.Relation, rel.Entity, rel.Via)
	}
}

func printMitigations(w io.Writer, paths []types.MitigationPath) {
	if len(paths) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, m := range paths {
		fmt.Fprintf(w, "  - %s (effectiveness: %s, path: %s)\n", m.Mitigation, m.Effectiveness, m.Path)
	}
}

func printList(w io.Writer, names []string) {
	for _, n := range names {
		fmt.Fprintf(w, "  - %s\n", n)
	}
}

func printDocs(w io.Writer, docs []types.RetrievalResult) {
	for _, d := range docs {
		fmt.Fprintf(w, "  %d. [%.4f] %s\n", d.Rank, d.Similarity, truncate(d.Document, 90))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
