package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dshills/agentgraph-go/graph/model"
)

const schemaURL = "mem:///tool.json"

var printer = message.NewPrinter(language.English)

// Schema is a compiled tool input schema.
type Schema struct {
	tool   string
	schema *jsonschema.Schema
}

// CompileSchema compiles the JSON schema of spec. A spec without a schema
// accepts any input.
func CompileSchema(spec model.ToolSpec) (*Schema, error) {
	s := &Schema{tool: spec.Name}
	if len(spec.Schema) == 0 {
		return s, nil
	}
	doc, err := normalize(spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encode schema: %w", spec.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("tool %s: %w", spec.Name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("tool %s: invalid schema: %w", spec.Name, err)
	}
	s.schema = compiled
	return s, nil
}

// Validate checks input against the schema. A nil input is validated as
// an empty object.
func (s *Schema) Validate(input map[string]interface{}) error {
	if s == nil || s.schema == nil {
		return nil
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	inst, err := normalize(input)
	if err != nil {
		return &ValidationError{Tool: s.tool, Problems: []string{"arguments are not JSON encodable: " + err.Error()}}
	}
	err = s.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Tool: s.tool, Problems: []string{err.Error()}}
	}
	out := &ValidationError{Tool: s.tool}
	out.collect(verr)
	return out
}

// Validate checks input against the tool's JSON schema: required
// arguments, types, enums and every other keyword the schema uses.
func Validate(spec model.ToolSpec, input map[string]interface{}) error {
	s, err := CompileSchema(spec)
	if err != nil {
		return err
	}
	return s.Validate(input)
}

// ValidationError reports tool input that does not satisfy the tool's schema.
type ValidationError struct {
	Tool string

	// Missing lists required arguments that were not supplied.
	Missing []string

	// Problems describes every other violation, prefixed with the JSON
	// pointer of the offending value.
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required arguments %v", e.Missing))
	}
	parts = append(parts, e.Problems...)
	return fmt.Sprintf("tool %s: %s", e.Tool, strings.Join(parts, "; "))
}

func (e *ValidationError) collect(verr *jsonschema.ValidationError) {
	if len(verr.Causes) > 0 {
		for _, c := range verr.Causes {
			e.collect(c)
		}
		return
	}
	if req, ok := verr.ErrorKind.(*kind.Required); ok && len(verr.InstanceLocation) == 0 {
		e.Missing = append(e.Missing, req.Missing...)
		return
	}
	loc := "/" + strings.Join(verr.InstanceLocation, "/")
	e.Problems = append(e.Problems, fmt.Sprintf("at %s: %s", loc, verr.ErrorKind.LocalizedString(printer)))
}

// normalize round-trips v through JSON so Go literals such as []string
// reach the validator as the generic values it expects.
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
