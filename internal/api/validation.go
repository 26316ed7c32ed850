package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const labelRequestSchemaJSON = `{
	"type": "object",
	"required": ["text"],
	"properties": {
		"text": {"type": "string", "minLength": 1},
		"maxSpans": {"type": "integer", "minimum": 0},
		"minConfidence": {"type": "number", "minimum": 0, "maximum": 1},
		"policy": {"type": ["object", "null"]},
		"templateVersion": {"type": "string"}
	}
}`

var labelRequestSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(labelRequestSchemaJSON))
})

// validateLabelRequest checks a POST /api/v1/spans body
func validateLabelRequest(body []byte) error {
	if len(body) == 0 {
		return errors.New("request body is empty")
	}

	schema, err := labelRequestSchema()
	if err != nil {
		return fmt.Errorf("compile request schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("request is not valid json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
