package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	sjson "github.com/santhosh-tekuri/jsonschema/v5"
)

var reflector = jsonschema.Reflector{
	Anonymous:                  true,
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// SchemaFor reflects the JSON schema of T.
func SchemaFor[T any]() *jsonschema.Schema {
	var zero T
	return reflector.Reflect(&zero)
}

// FormatInstructions tells the model to answer with JSON matching T.
func FormatInstructions[T any]() string {
	b, err := json.MarshalIndent(SchemaFor[T](), "", "  ")
	if err != nil {
		return ""
	}
	return "The output should be formatted as a JSON instance that conforms to the JSON schema below.\n\n" +
		"Here is the output schema:\n```\n" + string(b) + "\n```"
}

// Validator checks decoded JSON against a compiled schema.
type Validator struct {
	schema *sjson.Schema
}

// NewValidator compiles the schema of T.
func NewValidator[T any]() (*Validator, error) {
	b, err := json.Marshal(SchemaFor[T]())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := sjson.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate checks raw JSON.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateValue marshals v and validates it, used to re-check sanitized output.
func (v *Validator) ValidateValue(val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return v.Validate(b)
}

// LazyValidator compiles on first use and caches the result.
func LazyValidator[T any]() func() (*Validator, error) {
	return sync.OnceValues(NewValidator[T])
}
