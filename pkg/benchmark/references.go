// Package benchmark compares candidate models against human references and
// reports averaged scores per model.
package benchmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
)

// ErrNoReferences is returned when the reference file lists no documents.
var ErrNoReferences = errors.New("no reference documents")

// Reference is one human-annotated report.
type Reference struct {
	ID                chain.FlexString `json:"id"`
	Title             string           `json:"title"`
	ReferenceSummary  string           `json:"reference_summary"`
	ReferenceCategory string           `json:"reference_category"`
	ReferenceNumbers  json.RawMessage  `json:"reference_numbers"`

	// FilePath is Title resolved under the reports directory.
	FilePath string `json:"-"`
}

// Numbers decodes the reference facts; absent or invalid data is an empty object.
func (r Reference) Numbers() any {
	var v any
	if len(r.ReferenceNumbers) == 0 || json.Unmarshal(r.ReferenceNumbers, &v) != nil || v == nil {
		return map[string]any{}
	}
	return v
}

// LoadReferences reads {"documents": [...]} and resolves each file under reportsDir.
func LoadReferences(path, reportsDir string) ([]Reference, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	var doc struct {
		Documents []Reference `json:"documents"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode references %s: %w", path, err)
	}
	if len(doc.Documents) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoReferences, path)
	}
	for i := range doc.Documents {
		doc.Documents[i].FilePath = filepath.Join(reportsDir, doc.Documents[i].Title)
	}
	return doc.Documents, nil
}

// Plan describes a benchmark campaign.
type Plan struct {
	Experiment     string   `yaml:"experiment"`
	Provider       string   `yaml:"provider"`
	Models         []string `yaml:"models"`
	ReferenceFile  string   `yaml:"reference_file"`
	ReportsDir     string   `yaml:"reports_dir"`
	DiagnosticFile string   `yaml:"diagnostic_file"`
}

// DefaultPlan mirrors the historical campaign layout.
func DefaultPlan() Plan {
	return Plan{
		Experiment:     "ecoSynthesIA_Benchmark",
		Provider:       "ollama",
		Models:         []string{"mistral", "llama3.1"},
		ReferenceFile:  "references_data.json",
		ReportsDir:     "reports",
		DiagnosticFile: "diagnostic_extraction.jsonl",
	}
}

// LoadPlan overlays a YAML file on DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	p := DefaultPlan()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read plan: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if len(p.Models) == 0 {
		return p, fmt.Errorf("plan %s lists no models", path)
	}
	return p, nil
}
