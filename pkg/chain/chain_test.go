package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in, want string
		err      error
	}{
		"plain":     {in: `{"a":1}`, want: `{"a":1}`},
		"fenced":    {in: "Here you go:\n```json\n{\"a\": [1,2]}\n```\nThanks", want: `{"a": [1,2]}`},
		"prose":     {in: `Sure! {"k":"v with } brace"} hope that helps`, want: `{"k":"v with } brace"}`},
		"array":     {in: `result: [{"x":1}]`, want: `[{"x":1}]`},
		"none":      {in: "NO VALID DATA FOUND", err: ErrNoJSON},
		"truncated": {in: `{"a": [1, 2`, err: ErrNoJSON},
		"bracketed prose": {
			in:   "Assessment (score range [0, 1]):\n{\"confidence_score\": 0.8, \"justification\": \"ok\"}",
			want: `{"confidence_score": 0.8, "justification": "ok"}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

type sample struct {
	Key   string     `json:"key" jsonschema:"required"`
	Value FlexString `json:"value"`
	Score FlexFloat  `json:"score"`
}

func TestParseJSONFlexibleScalars(t *testing.T) {
	got, err := ParseJSON[sample]("```\n{\"key\":\"k\",\"value\":12.5,\"score\":\"85%\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, FlexString("12.5"), got.Value)
	assert.InDelta(t, 0.85, float64(got.Score), 1e-9)
}

func TestValidator(t *testing.T) {
	v, err := NewValidator[sample]()
	require.NoError(t, err)
	require.NoError(t, v.Validate([]byte(`{"key":"x","value":"1"}`)))
	assert.Error(t, v.Validate([]byte(`{"value":"1"}`)), "key is required")
	assert.Error(t, v.Validate([]byte(`{"key":"x","extra":true}`)), "unknown keys are rejected")
}

func TestFormatInstructionsContainsSchema(t *testing.T) {
	s := FormatInstructions[sample]()
	assert.Contains(t, s, `"key"`)
	assert.Contains(t, s, "JSON schema")
}

func TestStepRendersAndCalls(t *testing.T) {
	p := MustChatPrompt("greet", "You are {{.role}}.", "Say hi to {{.name}}")
	llm := models.NewScriptedLLM("m", func(req models.Request) models.Reply {
		return models.Reply{Text: "hi " + strings.TrimPrefix(models.LastUser(req), "Say hi to ")}
	})
	resp, err := Step{LLM: llm, Prompt: p, JSON: true, NumCtx: 8192}.Invoke(context.Background(), Vars{"role": "kind", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "hi Ada", resp.Text)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].JSON)
	assert.Equal(t, models.RoleSystem, calls[0].Messages[0].Role)
	assert.Equal(t, "You are kind.", calls[0].Messages[0].Content)
}

func TestStepMissingVariable(t *testing.T) {
	p := MustChatPrompt("x", "", "{{.missing}}")
	llm := models.NewScriptedLLM("m", func(models.Request) models.Reply { return models.Reply{Text: "unused"} })
	_, err := Step{LLM: llm, Prompt: p}.Invoke(context.Background(), Vars{})
	require.Error(t, err)
	assert.Empty(t, llm.Calls())
}

func TestStepWrapsModelError(t *testing.T) {
	boom := errors.New("boom")
	p := MustChatPrompt("named", "", "q")
	llm := models.NewScriptedLLM("m", func(models.Request) models.Reply { return models.Reply{Err: boom} })
	_, err := Step{LLM: llm, Prompt: p}.Invoke(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "named")
}
