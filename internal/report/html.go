package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/pkg/types"
)

// HTMLExporter renders a standalone HTML report.
type HTMLExporter struct{}

func (HTMLExporter) Format() string      { return "html" }
func (HTMLExporter) ContentType() string { return "text/html; charset=utf-8" }

func (HTMLExporter) Export(rep *experiment.Report) ([]byte, error) {
	return HTML(rep)
}

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"f4": f4,
	"f1": f1,
	"pct": func(p *float64) string {
		if p == nil {
			return "n/a"
		}
		return fmt.Sprintf("%+.1f%%", *p)
	},
}).Parse(htmlTemplate))

type htmlRow struct {
	Metric    string
	Plain     string
	Graph     string
	Winner    string
	HasWinner bool
}

type htmlData struct {
	Report  *experiment.Report
	Summary summary
	Rows    []htmlRow
	KG      *types.GraphStatistics
}

// HTML renders rep as an HTML page. All report text is escaped.
func HTML(rep *experiment.Report) ([]byte, error) {
	s := summarize(rep)
	row := func(metric, key string, plain, graph float64) htmlRow {
		w := s.Winners[key]
		return htmlRow{
			Metric:    metric,
			Plain:     f4(plain),
			Graph:     f4(graph),
			Winner:    w,
			HasWinner: w != "-",
		}
	}
	data := htmlData{
		Report:  rep,
		Summary: s,
		KG:      rep.KGStats,
		Rows: []htmlRow{
			row("Semantic Similarity", evaluation.MetricSemanticSimilarity, s.Plain.AvgSemanticSimilarity, s.Graph.AvgSemanticSimilarity),
			row("Response Time (s)", evaluation.MetricResponseTime, s.Plain.AvgResponseTime, s.Graph.AvgResponseTime),
			row("Retrieval Score", evaluation.MetricRetrievalScore, s.Plain.AvgRetrievalScore, s.Graph.AvgRetrievalScore),
			{
				Metric: "Response Length (words)",
				Plain:  f1(s.Plain.AvgResponseLength),
				Graph:  f1(s.Graph.AvgResponseLength),
				Winner: "-",
			},
		},
	}

	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute html template: %w", err)
	}
	return buf.Bytes(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Agentic Graph RAG Experiment Report</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 10px; margin-bottom: 30px; }
.card { background: white; padding: 20px; border-radius: 10px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); margin-bottom: 20px; }
.metrics { display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 20px; margin-bottom: 30px; }
.metric-card { background: white; padding: 20px; border-radius: 10px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); text-align: center; }
.metric-value { font-size: 2em; font-weight: bold; color: #667eea; }
.metric-label { color: #666; margin-top: 10px; }
table { width: 100%; border-collapse: collapse; margin: 20px 0; }
th, td { padding: 12px; text-align: left; border-bottom: 1px solid #ddd; }
th { background: #667eea; color: white; }
.winner { color: #27ae60; font-weight: bold; }
.demo { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; border-radius: 5px; }
h2 { color: #333; border-bottom: 2px solid #667eea; padding-bottom: 10px; }
</style>
</head>
<body>
<div class="header">
  <h1>Agentic Graph RAG Experiment Report</h1>
  <p>{{.Summary.PlainName}} vs {{.Summary.GraphName}}</p>
  <p>Run {{.Report.RunID}} &middot; {{.Report.Provider}} / {{.Report.Model}} &middot; {{.Report.Timestamp.Format "2006-01-02 15:04:05 MST"}}</p>
</div>
{{if .Report.Demo}}<div class="card demo">Demo mode: answers are placeholders and similarity scores are not meaningful.</div>{{end}}
<div class="metrics">
  <div class="metric-card"><div class="metric-value">{{.Summary.Plain.NumQueries}}</div><div class="metric-label">Test Queries</div></div>
  <div class="metric-card"><div class="metric-value">{{f4 .Summary.Graph.AvgSemanticSimilarity}}</div><div class="metric-label">{{.Summary.GraphName}} Similarity</div></div>
  <div class="metric-card"><div class="metric-value">{{f1 .Summary.AvgKGEntities}}</div><div class="metric-label">Avg KG Entities Used</div></div>
</div>
<div class="card">
  <h2>Performance Comparison</h2>
  <table>
    <tr><th>Metric</th><th>{{.Summary.PlainName}}</th><th>{{.Summary.GraphName}}</th><th>Winner</th></tr>
    {{range .Rows}}<tr><td>{{.Metric}}</td><td>{{.Plain}}</td><td>{{.Graph}}</td><td{{if .HasWinner}} class="winner"{{end}}>{{.Winner}}</td></tr>
    {{end}}
  </table>
  <p>Semantic similarity change: {{pct .Summary.SimilarityChange}}. Retrieval score change: {{pct .Summary.RetrievalChange}}.</p>
</div>
{{with .KG}}<div class="card">
  <h2>Knowledge Graph</h2>
  <p>{{.NumNodes}} nodes, {{.NumEdges}} edges, average degree {{printf "%.2f" .AvgDegree}}.</p>
</div>{{end}}
<div class="card">
  <h2>Queries</h2>
  <ol>{{range .Report.Queries}}<li>{{.}}</li>{{end}}</ol>
</div>
</body>
</html>
`
