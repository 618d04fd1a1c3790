package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates documents against a compiled JSON Schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a validator from schema bytes.
func NewValidator(schemaData []byte) (*Validator, error) {
	RegisterCustomFormats()
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaData))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate validates a Go value (maps, structs with json tags) against the schema.
func (v *Validator) Validate(data interface{}) error {
	return v.check(gojsonschema.NewGoLoader(data))
}

// ValidateBytes validates raw JSON bytes.
func (v *Validator) ValidateBytes(data []byte) error {
	return v.check(gojsonschema.NewBytesLoader(data))
}

func (v *Validator) check(doc gojsonschema.JSONLoader) error {
	result, err := v.schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
