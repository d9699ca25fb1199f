package benchmark

import (
	"context"
	"encoding/json"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

// Fact is a single data point in the benchmark's one-shot extraction format.
type Fact struct {
	Key     string `json:"key" jsonschema:"required" jsonschema_description:"The specific environmental or financial metric (e.g. 'deforestation_rate', 'climate_finance_amount')."`
	Value   string `json:"value" jsonschema:"required" jsonschema_description:"The numerical or descriptive value of the metric (e.g. '3.2 billion', 'data not provided')."`
	Unit    string `json:"unit" jsonschema:"required" jsonschema_description:"The unit of the value (e.g. 'people/year', '%', '$')."`
	Context string `json:"context,omitempty" jsonschema_description:"A brief phrase from the text providing context for the fact."`
}

// Facts is the complete set of facts for a document.
type Facts struct {
	Facts []Fact `json:"facts" jsonschema:"required"`
}

type looseFact struct {
	Key     chain.FlexString `json:"key"`
	Value   chain.FlexString `json:"value"`
	Unit    chain.FlexString `json:"unit"`
	Context chain.FlexString `json:"context"`
}

const factsSystemPrompt = `You are an expert data extraction assistant. Your task is to identify and extract key numerical data and facts from a document. The output must be a single JSON object. Do not include any text outside the JSON.

{{.format_instructions}}`

const factsUserPrompt = "Extract the data from the following document chunk:\n{{.text_chunk}}"

var factsPrompt = chain.MustChatPrompt("benchmark_extraction", factsSystemPrompt, factsUserPrompt)

// extractFacts runs the one-shot structured extraction and returns the
// serialized facts.
func extractFacts(ctx context.Context, llm models.LLM, text string) (string, error) {
	resp, err := chain.Step{LLM: llm, Prompt: factsPrompt, JSON: true}.Invoke(ctx, chain.Vars{
		"text_chunk":          text,
		"format_instructions": chain.FormatInstructions[Facts](),
	})
	if err != nil {
		return "", err
	}
	loose, err := chain.ParseJSON[struct {
		Facts []looseFact `json:"facts"`
	}](resp.Text)
	if err != nil {
		return "", err
	}
	out := Facts{Facts: make([]Fact, 0, len(loose.Facts))}
	for _, f := range loose.Facts {
		out.Facts = append(out.Facts, Fact{Key: string(f.Key), Value: string(f.Value), Unit: string(f.Unit), Context: string(f.Context)})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
