// Package report renders experiment reports as JSON, Markdown, HTML and
// terminal tables.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
)

// ErrUnknownFormat is returned by ExporterFor for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// Exporter renders a report in one format. Implementations are safe for
// concurrent use.
type Exporter interface {
	Export(rep *experiment.Report) ([]byte, error)

	// Format returns the format identifier ("json", "markdown", "html").
	Format() string

	// ContentType returns the MIME type for HTTP responses.
	ContentType() string
}

// ExporterFor returns the exporter for format. "md" is accepted for markdown.
func ExporterFor(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSONExporter{}, nil
	case "markdown", "md":
		return MarkdownExporter{}, nil
	case "html":
		return HTMLExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSONExporter writes the report as indented JSON.
type JSONExporter struct{}

func (JSONExporter) Export(rep *experiment.Report) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

func (JSONExporter) Format() string      { return "json" }
func (JSONExporter) ContentType() string { return "application/json" }

// Output file names written by WriteAll.
const (
	ResultsFile  = "experiment_results.json"
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
)

// WriteJSON writes rep as indented JSON to path, creating parent directories.
func WriteJSON(path string, rep *experiment.Report) error {
	return write(path, JSONExporter{}, rep)
}

// WriteAll writes the JSON results, Markdown report and HTML report into dir
// and returns the paths written.
func WriteAll(dir string, rep *experiment.Report) ([]string, error) {
	files := []struct {
		name string
		exp  Exporter
	}{
		{ResultsFile, JSONExporter{}},
		{MarkdownFile, MarkdownExporter{}},
		{HTMLFile, HTMLExporter{}},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := write(path, f.exp, rep); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func write(path string, exp Exporter, rep *experiment.Report) error {
	data, err := exp.Export(rep)
	if err != nil {
		return fmt.Errorf("render %s report: %w", exp.Format(), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// summary is the view of a report shared by the text renderers.
type summary struct {
	Plain, Graph         evaluation.Aggregate
	PlainName, GraphName string
	AvgKGEntities        float64
	TotalKGEntities      int
	Winners              map[string]string // metric -> method name, "-" when none
	SimilarityChange     *float64          // percent, nil when the baseline is 0
	RetrievalChange      *float64
	TimeOverhead         float64 // seconds per query
}

func summarize(rep *experiment.Report) summary {
	s := summary{
		PlainName: "Traditional RAG",
		GraphName: "Agentic Graph RAG",
		Winners:   map[string]string{},
	}
	if m := rep.Methods[experiment.KeyPlain]; m != nil {
		s.PlainName = m.Method
		if m.Evaluation != nil {
			s.Plain = m.Evaluation.Aggregated
		}
	}
	if m := rep.Methods[experiment.KeyGraph]; m != nil {
		s.GraphName = m.Method
		if m.Evaluation != nil {
			s.Graph = m.Evaluation.Aggregated
		}
		if m.AvgKGEntities != nil {
			s.AvgKGEntities = *m.AvgKGEntities
		}
		for _, n := range m.KGEntities {
			s.TotalKGEntities += n
		}
	}

	for _, metric := range []string{
		evaluation.MetricSemanticSimilarity,
		evaluation.MetricResponseTime,
		evaluation.MetricRetrievalScore,
	} {
		s.Winners[metric] = "-"
		if key := rep.Comparison.Winners[metric]; key != "" {
			if m := rep.Methods[key]; m != nil {
				s.Winners[metric] = m.Method
			}
		}
	}

	s.SimilarityChange = percentChange(s.Plain.AvgSemanticSimilarity, s.Graph.AvgSemanticSimilarity)
	s.RetrievalChange = percentChange(s.Plain.AvgRetrievalScore, s.Graph.AvgRetrievalScore)
	s.TimeOverhead = s.Graph.AvgResponseTime - s.Plain.AvgResponseTime
	return s
}

func percentChange(base, v float64) *float64 {
	if base <= 0 || math.IsNaN(base) {
		return nil
	}
	p := (v - base) / base * 100
	return &p
}
