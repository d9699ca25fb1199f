package benchmark

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/evaluation"
)

// snippetLen bounds the raw output kept for unparseable extractions.
const snippetLen = 500

// DiagnosticRow is one JSONL line of the extraction diagnostic file.
type DiagnosticRow struct {
	Model              string `json:"Model"`
	DocID              string `json:"Doc_ID"`
	Key                string `json:"Key,omitempty"`
	Value              string `json:"Value,omitempty"`
	Unit               string `json:"Unit,omitempty"`
	RawOutputSnippet   string `json:"Raw_Output_Snippet,omitempty"`
	ParsedSuccessfully bool   `json:"Parsed_Successfully"`
}

// Diagnostics appends rows as JSON lines.
type Diagnostics struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewDiagnostics(w io.Writer) *Diagnostics {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Diagnostics{enc: enc}
}

// DiagnosticRows turns one extraction output into rows: a single failure row
// when nothing parses or no facts were found, otherwise one row per fact.
func DiagnosticRows(model, docID, extracted string) []DiagnosticRow {
	data := evaluation.SafeJSONParse(extracted)
	facts := evaluation.NormalizeFacts(data)
	if data == nil || len(facts) == 0 {
		snippet := []rune(extracted)
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		raw := strings.NewReplacer("\n", " ", "\r", "").Replace(string(snippet))
		return []DiagnosticRow{{Model: model, DocID: docID, RawOutputSnippet: raw}}
	}
	rows := make([]DiagnosticRow, 0, len(facts))
	for _, f := range evaluation.SortedFacts(facts) {
		rows = append(rows, DiagnosticRow{Model: model, DocID: docID, Key: f.Key, Value: f.Value, Unit: f.Unit, ParsedSuccessfully: true})
	}
	return rows
}

// Record writes the rows for one extraction.
func (d *Diagnostics) Record(model, docID, extracted string) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range DiagnosticRows(model, docID, extracted) {
		if err := d.enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
