package experiment

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/cybersecurity.yaml
var defaultDataset []byte

// ErrInvalidDataset is returned when a dataset fails validation.
var ErrInvalidDataset = errors.New("invalid dataset")

// QueryCase is a test query and the answer it is scored against.
type QueryCase struct {
	Query       string `yaml:"query" json:"query"`
	GroundTruth string `yaml:"ground_truth" json:"ground_truth"`
}

// Dataset is a document corpus plus evaluation queries.
type Dataset struct {
	Name      string      `yaml:"name" json:"name"`
	Documents []string    `yaml:"documents" json:"documents"`
	Queries   []QueryCase `yaml:"queries" json:"queries"`
}

// DefaultDataset returns the built-in cybersecurity corpus: 15 documents and
// 10 queries with ground truth answers.
func DefaultDataset() *Dataset {
	ds, err := ParseDataset(defaultDataset)
	if err != nil {
		panic(fmt.Sprintf("experiment: embedded dataset: %v", err))
	}
	return ds
}

// LoadDataset reads a YAML dataset from path. An empty path returns the
// built-in dataset.
func LoadDataset(path string) (*Dataset, error) {
	if path == "" {
		return DefaultDataset(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks that the dataset has documents and that every query is
// non-empty.
func (d *Dataset) Validate() error {
	if len(d.Documents) == 0 {
		return fmt.Errorf("%w: no documents", ErrInvalidDataset)
	}
	for i, doc := range d.Documents {
		if strings.TrimSpace(doc) == "" {
			return fmt.Errorf("%w: document %d is empty", ErrInvalidDataset, i)
		}
	}
	if len(d.Queries) == 0 {
		return fmt.Errorf("%w: no queries", ErrInvalidDataset)
	}
	for i, q := range d.Queries {
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("%w: query %d is empty", ErrInvalidDataset, i)
		}
	}
	return nil
}

// QueryTexts returns the query strings in order.
func (d *Dataset) QueryTexts() []string {
	out := make([]string, len(d.Queries))
	for i, q := range d.Queries {
		out[i] = q.Query
	}
	return out
}
