package categorize

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

// SystemPrompt describes every category to the model.
const SystemPrompt = `You are an expert in the classification of environmental documents. Your task is to analyze the provided text and assign it to the SINGLE best-fitting category.

Rules:
1. You must select only one category from the 8 provided.
2. You must generate the response strictly in JSON format: {"category": "<CATEGORY NAME>"}.

Categories and Descriptions:
[CLIMATE AND EMISSIONS]: Global warming, greenhouse gases, COP conferences, carbon accounting, mitigation targets.
[BIODIVERSITY AND ECOSYSTEMS]: Species protection, deforestation, natural habitats, ocean health, fauna and flora.
[POLLUTION AND ENVIRONMENTAL QUALITY]: Air quality, water pollution, soil contamination, waste management, plastic or noise pollution.
[NATURAL RESOURCES]: Water management (drought), forestry, sustainable fishing, agriculture, land use.
[ENERGY AND TRANSITION]: Renewable energies (solar, wind), nuclear power, energy efficiency, fossil fuel phase-out policies.
[POLICIES AND REGULATION]: National laws, international treaties, government policies, ecological taxes, regulatory actions.
[SOCIO-ECONOMIC IMPACT]: Environmental justice, human health impacts, economic consequences, green jobs, social inequalities.
[RISKS AND DISASTERS]: Floods, wildfires, extreme weather events, industrial catastrophes with an environmental impact.
`

// UserPrompt carries the text to classify.
const UserPrompt = `Classify the following text into exactly one category.

Text:
{{.text}}
`

var prompt = chain.MustChatPrompt("classification", SystemPrompt, UserPrompt)

// ErrUnknownCategory is returned when the model answers with an unknown label.
var ErrUnknownCategory = errors.New("model returned an unknown category")

type answer struct {
	Category string `json:"category"`
}

// LLMClassifier asks a chat model for a label.
type LLMClassifier struct {
	LLM models.LLM
}

// Raw returns the model's unparsed answer, as recorded by the benchmark.
func (c LLMClassifier) Raw(ctx context.Context, text string) (string, error) {
	resp, err := chain.Step{LLM: c.LLM, Prompt: prompt, JSON: true}.Invoke(ctx, chain.Vars{"text": text})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ParseAnswer reads a category from JSON or free text.
func ParseAnswer(raw string) (Category, error) {
	if a, err := chain.ParseJSON[answer](raw); err == nil {
		if cat, ok := Parse(a.Category); ok {
			return cat, nil
		}
	}
	if cat, ok := Parse(raw); ok {
		return cat, nil
	}
	return "", fmt.Errorf("%w: %.80q", ErrUnknownCategory, raw)
}

func (c LLMClassifier) Classify(ctx context.Context, summary string) (Category, error) {
	raw, err := c.Raw(ctx, summary)
	if err != nil {
		return "", err
	}
	return ParseAnswer(raw)
}

// Fallback tries Primary and falls back to Secondary on error.
type Fallback struct {
	Primary   Classifier
	Secondary Classifier
}

func (f Fallback) Classify(ctx context.Context, summary string) (Category, error) {
	cat, err := f.Primary.Classify(ctx, summary)
	if err == nil {
		return cat, nil
	}
	if f.Secondary == nil || ctx.Err() != nil {
		return Undetermined, err
	}
	clog.FromContext(ctx).Warnf("primary classifier failed, using fallback: %v", err)
	if cat, err2 := f.Secondary.Classify(ctx, summary); err2 == nil {
		return cat, nil
	}
	return Undetermined, err
}
