package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
)

// MarkdownExporter renders a GitHub-flavored Markdown report.
type MarkdownExporter struct{}

func (MarkdownExporter) Format() string      { return "markdown" }
func (MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }

func (MarkdownExporter) Export(rep *experiment.Report) ([]byte, error) {
	return Markdown(rep), nil
}

// Markdown renders rep as a Markdown document.
func Markdown(rep *experiment.Report) []byte {
	s := summarize(rep)
	var buf bytes.Buffer

	buf.WriteString("# Agentic Graph RAG Experiment Report\n\n")
	fmt.Fprintf(&buf, "**Run:** `%s`  \n", rep.RunID)
	fmt.Fprintf(&buf, "**Generated:** %s  \n", rep.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&buf, "**Provider:** %s  \n", orNA(rep.Provider))
	fmt.Fprintf(&buf, "**Model:** %s\n\n", orNA(rep.Model))
	if rep.Demo {
		buf.WriteString("> Demo mode: answers are placeholders and similarity scores are not meaningful.\n\n")
	}

	buf.WriteString("## Summary\n\n")
	fmt.Fprintf(&buf, "- **%s** reached %.4f semantic similarity vs %.4f for %s\n",
		s.GraphName, s.Graph.AvgSemanticSimilarity, s.Plain.AvgSemanticSimilarity, s.PlainName)
	fmt.Fprintf(&buf, "- The knowledge graph contributed %.1f entities per query on average\n", s.AvgKGEntities)
	fmt.Fprintf(&buf, "- Queries processed: %d\n\n", s.Plain.NumQueries)

	buf.WriteString("## Results\n\n")
	buf.WriteString("| Metric | " + s.PlainName + " | " + s.GraphName + " | Winner |\n")
	buf.WriteString("|--------|------|------|--------|\n")
	fmt.Fprintf(&buf, "| **Semantic Similarity** | %.4f | %.4f | %s |\n",
		s.Plain.AvgSemanticSimilarity, s.Graph.AvgSemanticSimilarity, s.Winners[evaluation.MetricSemanticSimilarity])
	fmt.Fprintf(&buf, "| **Response Time (s)** | %.4f | %.4f | %s |\n",
		s.Plain.AvgResponseTime, s.Graph.AvgResponseTime, s.Winners[evaluation.MetricResponseTime])
	fmt.Fprintf(&buf, "| **Retrieval Score** | %.4f | %.4f | %s |\n",
		s.Plain.AvgRetrievalScore, s.Graph.AvgRetrievalScore, s.Winners[evaluation.MetricRetrievalScore])
	fmt.Fprintf(&buf, "| **Response Length** | %.1f words | %.1f words | - |\n",
		s.Plain.AvgResponseLength, s.Graph.AvgResponseLength)
	fmt.Fprintf(&buf, "| **KG Entities Used** | N/A | %.1f | - |\n\n", s.AvgKGEntities)

	buf.WriteString("### Change vs " + s.PlainName + "\n\n")
	if s.SimilarityChange != nil {
		fmt.Fprintf(&buf, "- **Semantic similarity**: %+.1f%%\n", *s.SimilarityChange)
	}
	if s.RetrievalChange != nil {
		fmt.Fprintf(&buf, "- **Retrieval score**: %+.1f%%\n", *s.RetrievalChange)
	}
	fmt.Fprintf(&buf, "- **Time overhead**: %+.2fs per query\n\n", s.TimeOverhead)

	if kg := rep.KGStats; kg != nil {
		buf.WriteString("## Knowledge Graph\n\n")
		fmt.Fprintf(&buf, "- **Nodes**: %d\n", kg.NumNodes)
		fmt.Fprintf(&buf, "- **Edges**: %d\n", kg.NumEdges)
		fmt.Fprintf(&buf, "- **Average degree**: %.2f\n", kg.AvgDegree)
		nodeTypes := make([]string, 0, len(kg.NodeTypes))
		for t, n := range kg.NodeTypes {
			nodeTypes = append(nodeTypes, fmt.Sprintf("%s: %d", t, n))
		}
		sort.Strings(nodeTypes)
		fmt.Fprintf(&buf, "- **Node types**: %s\n\n", strings.Join(nodeTypes, ", "))
	}

	buf.WriteString("## Conclusion\n\n")
	if s.Graph.AvgSemanticSimilarity > s.Plain.AvgSemanticSimilarity && s.SimilarityChange != nil {
		fmt.Fprintf(&buf, "%s improved semantic similarity by %+.1f%% at a cost of %.2fs per query.\n\n",
			s.GraphName, *s.SimilarityChange, s.TimeOverhead)
	} else {
		buf.WriteString("Both methods performed comparably on semantic similarity.\n\n")
	}

	buf.WriteString("## Details\n\n")
	fmt.Fprintf(&buf, "- **Queries**: %d\n", s.Plain.NumQueries)
	fmt.Fprintf(&buf, "- **Total time (%s)**: %.2fs\n", s.PlainName, s.Plain.TotalTime)
	fmt.Fprintf(&buf, "- **Total time (%s)**: %.2fs\n", s.GraphName, s.Graph.TotalTime)
	fmt.Fprintf(&buf, "- **KG entities used**: %d\n", s.TotalKGEntities)
	fmt.Fprintf(&buf, "- **Dataset**: %s\n", orNA(rep.Dataset))

	return buf.Bytes()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
