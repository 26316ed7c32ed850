package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FairForge/spancache/internal/labeling"
)

func TestOf(t *testing.T) {
	base := labeling.Payload{
		Text:            "A neon city skyline",
		MaxSpans:        20,
		MinConfidence:   0.5,
		TemplateVersion: "v1",
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Of(base), Of(base))
		assert.Len(t, string(Of(base)), 64)
	})

	t.Run("policy key order does not matter", func(t *testing.T) {
		a := base
		a.Policy = map[string]any{"nonTechnicalWordLimit": 6, "allowOverlap": false}
		b := base
		b.Policy = map[string]any{"allowOverlap": false, "nonTechnicalWordLimit": 6}
		assert.Equal(t, Of(a), Of(b))
	})

	tests := []struct {
		name   string
		mutate func(p *labeling.Payload)
	}{
		{"text", func(p *labeling.Payload) { p.Text = "A neon city skyline at dusk" }},
		{"max spans", func(p *labeling.Payload) { p.MaxSpans = 10 }},
		{"min confidence", func(p *labeling.Payload) { p.MinConfidence = 0.6 }},
		{"template version", func(p *labeling.Payload) { p.TemplateVersion = "v2" }},
		{"policy", func(p *labeling.Payload) { p.Policy = map[string]any{"allowOverlap": true} }},
	}
	for _, tt := range tests {
		t.Run("different "+tt.name+" changes key", func(t *testing.T) {
			p := base
			tt.mutate(&p)
			assert.NotEqual(t, Of(base), Of(p))
		})
	}
}

func TestOf_UnencodablePayload(t *testing.T) {
	t.Run("nan confidence keeps max spans in the key", func(t *testing.T) {
		// Arrange
		a := labeling.Payload{Text: "red car", MaxSpans: 1, MinConfidence: math.NaN()}
		b := labeling.Payload{Text: "red car", MaxSpans: 2, MinConfidence: math.NaN()}

		// Act & Assert
		assert.Equal(t, Of(a), Of(a))
		assert.NotEqual(t, Of(a), Of(b))
	})

	t.Run("unencodable policy keeps min confidence in the key", func(t *testing.T) {
		policy := map[string]any{"hook": make(chan int)}
		a := labeling.Payload{Text: "red car", MinConfidence: 0.5, Policy: policy}
		b := labeling.Payload{Text: "red car", MinConfidence: 0.6, Policy: policy}

		assert.NotEqual(t, Of(a), Of(b))
	})
}

func TestSignature(t *testing.T) {
	assert.Equal(t, Signature("hello"), Signature("hello"))
	assert.NotEqual(t, Signature("hello"), Signature("hello "))
	assert.NotEmpty(t, Signature(""))
}

func TestPatternKey(t *testing.T) {
	t.Run("normalizes case and whitespace", func(t *testing.T) {
		assert.Equal(t,
			PatternKey("A  Neon\tCity", nil, "v1"),
			PatternKey("a neon city", nil, "v1"))
	})

	t.Run("template version separates patterns", func(t *testing.T) {
		assert.NotEqual(t,
			PatternKey("a neon city", nil, "v1"),
			PatternKey("a neon city", nil, "v2"))
	})

	t.Run("policy separates patterns", func(t *testing.T) {
		assert.NotEqual(t,
			PatternKey("a neon city", map[string]any{"x": 1}, "v1"),
			PatternKey("a neon city", nil, "v1"))
	})
}
