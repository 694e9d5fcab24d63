package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Guardrails masks credentials before text is written to run artifacts.
type Guardrails struct {
	outputFilters []*regexp.Regexp // regex patterns for filtering output
}

// NewGuardrails creates guardrails with the default secret patterns.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
			regexp.MustCompile(`\bxai-[A-Za-z0-9]{20,}\b`),
			regexp.MustCompile(`\bsk-(?:or-)?[A-Za-z0-9_-]{20,}\b`),
			regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`),
		},
	}
}

// SanitizeOutput masks sensitive values.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

// SchemaValidator validates JSON documents against a precompiled schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles schema once for repeated validation.
func NewSchemaValidator(schema []byte) (*SchemaValidator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}
	return &SchemaValidator{schema: s}, nil
}

// Validate checks if data conforms to the schema.
func (v *SchemaValidator) Validate(data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
