// internal/labeling/types.go
package labeling

import (
	"context"
)

// Span is a labeled sub-phrase of a prompt
type Span struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text,omitempty"`
}

// Payload is a labeling request. Only the fields below take part in the cache key.
type Payload struct {
	Text            string         `json:"text"`
	MaxSpans        int            `json:"maxSpans,omitempty"`
	MinConfidence   float64        `json:"minConfidence,omitempty"`
	Policy          map[string]any `json:"policy,omitempty"`
	TemplateVersion string         `json:"templateVersion,omitempty"`
}

// Result is what the labeler returns for a payload
type Result struct {
	Spans     []Span         `json:"spans"`
	Meta      map[string]any `json:"meta,omitempty"`
	Signature string         `json:"signature,omitempty"`
}

// LabelFunc performs the expensive labeling call the cache exists to avoid
type LabelFunc func(ctx context.Context, payload Payload) (Result, error)
