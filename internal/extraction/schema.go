package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResourceURL = "output.schema.json"

// SchemaValidator checks extraction output against a JSON schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles a JSON schema document.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaResourceURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("%w: adding schema: %v", ErrInvalidConfig, err)
	}
	schema, err := compiler.Compile(schemaResourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling schema: %v", ErrInvalidConfig, err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// LoadSchemaValidator reads and compiles the schema at path.
func LoadSchemaValidator(path string) (*SchemaValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading schema %s: %v", ErrInvalidConfig, path, err)
	}
	return NewSchemaValidator(data)
}

// Validate checks the JSON document doc. Failures wrap ErrSchemaMismatch and
// name only schema locations, never document values.
func (v *SchemaValidator) Validate(doc json.RawMessage) error {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("%w: output is not JSON", ErrSchemaMismatch)
	}

	if err := v.schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, describeValidation(err))
	}
	return nil
}

// describeValidation lists the failing instance locations of a validation error.
func describeValidation(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return "validation failed"
	}

	var locations []string
	seen := make(map[string]bool)
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			if !seen[loc] {
				seen[loc] = true
				locations = append(locations, loc)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return "invalid at " + strings.Join(locations, ", ")
}
