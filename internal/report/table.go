package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
)

var (
	accent      = lipgloss.Color("#667eea")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	winnerStyle = cellStyle.Foreground(lipgloss.Color("#27ae60")).Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(accent)
)

// Table renders the comparison as a terminal table.
func Table(rep *experiment.Report) string {
	s := summarize(rep)
	rows := [][]string{
		{"Semantic Similarity", f4(s.Plain.AvgSemanticSimilarity), f4(s.Graph.AvgSemanticSimilarity), s.Winners[evaluation.MetricSemanticSimilarity]},
		{"Avg Response Time (s)", f4(s.Plain.AvgResponseTime), f4(s.Graph.AvgResponseTime), s.Winners[evaluation.MetricResponseTime]},
		{"Avg Retrieval Score", f4(s.Plain.AvgRetrievalScore), f4(s.Graph.AvgRetrievalScore), s.Winners[evaluation.MetricRetrievalScore]},
		{"Avg Response Length", f1(s.Plain.AvgResponseLength), f1(s.Graph.AvgResponseLength), "-"},
		{"Avg KG Entities Used", "-", f1(s.AvgKGEntities), "-"},
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Metric", s.PlainName, s.GraphName, "Winner").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && rows[row][3] != "-":
				return winnerStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

// SummaryTable renders one row per provider, model and method.
func SummaryTable(rows []experiment.SummaryRow) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Provider + "/" + r.Model, r.Method, f4(r.AvgSemanticSimilarity), f4(r.AvgResponseTime)}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Model", "Method", "Sem. Similarity", "Avg Time (s)").
		Rows(data...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func f4(v float64) string { return fmt.Sprintf("%.4f", v) }
func f1(v float64) string { return fmt.Sprintf("%.1f", v) }
