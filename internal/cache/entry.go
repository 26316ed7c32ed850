// internal/cache/entry.go
package cache

import (
	"github.com/FairForge/spancache/internal/fingerprint"
	"github.com/FairForge/spancache/internal/labeling"
)

const previewRunes = 60

// Entry is one cached labeling result. Entries are immutable once stored.
type Entry struct {
	Key           fingerprint.Fingerprint `json:"-"`
	Spans         []labeling.Span         `json:"spans"`
	Meta          map[string]any          `json:"meta"`
	Signature     string                  `json:"signature"`
	FormatVersion string                  `json:"formatVersion"`
	CreatedAtMs   int64                   `json:"createdAtMs"`
	TextPreview   string                  `json:"textPreview,omitempty"`
}

// SnapshotItem describes one live entry for diagnostics
type SnapshotItem struct {
	Key         string `json:"key"`
	TextPreview string `json:"textPreview"`
}

// Stats holds cache statistics
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Hydrated  int64 `json:"hydrated"`
}

// HitRate calculates the cache hit rate
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes])
}

// clone copies the entry so callers cannot reorder or edit cached spans
func (e *Entry) clone() *Entry {
	out := *e
	out.Spans = make([]labeling.Span, len(e.Spans))
	copy(out.Spans, e.Spans)
	return &out
}
