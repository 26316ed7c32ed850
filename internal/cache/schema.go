// internal/cache/schema.go
package cache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const entrySchemaJSON = `{
	"type": "object",
	"required": ["spans", "signature", "formatVersion", "createdAtMs"],
	"properties": {
		"spans": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["start", "end", "category"],
				"properties": {
					"start": {"type": "integer"},
					"end": {"type": "integer"},
					"category": {"type": "string"},
					"confidence": {"type": "number"}
				}
			}
		},
		"meta": {"type": ["object", "null"]},
		"signature": {"type": "string"},
		"formatVersion": {"type": "string"},
		"createdAtMs": {"type": "integer"},
		"textPreview": {"type": "string"}
	}
}`

var entrySchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(entrySchemaJSON))
})

// validateEntry checks a raw persisted entry before it is decoded
func validateEntry(raw []byte) error {
	schema, err := entrySchema()
	if err != nil {
		return fmt.Errorf("compile entry schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("entry is not valid json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid entry: %s", strings.Join(msgs, "; "))
	}
	return nil
}
