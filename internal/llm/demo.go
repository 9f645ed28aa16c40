package llm

import (
	"context"
	"strings"
)

// DemoGenerator answers without network access. It echoes the question
// found in the user prompt, which keeps offline runs deterministic.
type DemoGenerator struct {
	model string
}

// NewDemoGenerator creates a demo generator reporting model as its model name.
func NewDemoGenerator(model string) *DemoGenerator {
	if model == "" {
		model = "demo"
	}
	return &DemoGenerator{model: model}
}

// Generate returns a canned answer naming the question.
func (d *DemoGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := ""
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			question = extractQuestion(m.Content)
		}
	}
	return "[Demo Response] " + question, nil
}

// GetModel returns the configured model name.
func (d *DemoGenerator) GetModel() string {
	return d.model
}

var _ TextGenerator = (*DemoGenerator)(nil)

// extractQuestion pulls the text after the last "Question:" marker, up to the
// end of that line. Prompts without a marker are returned whole.
func extractQuestion(prompt string) string {
	idx := strings.LastIndex(prompt, "Question:")
	if idx < 0 {
		return strings.TrimSpace(prompt)
	}
	rest := prompt[idx+len("Question:"):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}
