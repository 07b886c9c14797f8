package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildResultJSONSchema returns a JSON-Schema (draft 2020-12 subset) for the
// extraction service response, as a generic map. Every payload crossing the
// service boundary is validated against it before the store sees it.
func BuildResultJSONSchema() map[string]any {
	fieldProps := map[string]any{
		"key":        map[string]any{"type": "string", "minLength": 1},
		"value":      map[string]any{"type": "string"},
		"confidence": confidenceProp(),
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoiceId": map[string]any{"type": "string", "format": "uuid"},
			"fields": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           fieldProps,
					"required":             []string{"key", "value", "confidence"},
				},
			},
			"overallConfidence": confidenceProp(),
		},
		"required": []string{"invoiceId", "fields", "overallConfidence"},
	}
}

func confidenceProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0}
}

// ValidateResult checks a raw service response against the result schema.
func ValidateResult(data []byte) error {
	return validateAgainstSchema(BuildResultJSONSchema(), data)
}

// validateAgainstSchema validates "data" against "schemaMap".
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
