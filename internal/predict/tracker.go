// internal/predict/tracker.go
package predict

import (
	"strings"
	"sync"
	"time"

	"github.com/FairForge/spancache/internal/fingerprint"
)

// Request is one labeling request as seen by the tracker
type Request struct {
	Text            string         `json:"text"`
	Policy          map[string]any `json:"policy,omitempty"`
	TemplateVersion string         `json:"templateVersion,omitempty"`
	CacheHit        bool           `json:"cacheHit"`
	Priority        bool           `json:"priority"`
}

// HistoryEntry is a request kept in the bounded history
type HistoryEntry struct {
	Text            string
	Policy          map[string]any
	TemplateVersion string
	TimestampMs     int64
	CacheHit        bool
}

// PatternRecord counts repeats of one normalized request
type PatternRecord struct {
	Key             string
	Count           int
	LastSeenMs      int64
	Text            string
	Policy          map[string]any
	TemplateVersion string
}

// Tracker keeps recent request history and per-pattern frequency
type Tracker struct {
	mu         sync.RWMutex
	history    []HistoryEntry
	patterns   map[string]*PatternRecord
	maxHistory int
	minCount   int
	ttl        time.Duration

	totalRequests    int64
	patternsDetected int64
}

// NewTracker creates a tracker
func NewTracker(maxHistory, minFrequency int, ttl time.Duration) *Tracker {
	return &Tracker{
		patterns:   make(map[string]*PatternRecord),
		maxHistory: maxHistory,
		minCount:   minFrequency,
		ttl:        ttl,
	}
}

// Track records a request at now. Blank text is ignored. It reports whether the request
// was tracked.
func (t *Tracker) Track(req Request, now time.Time) bool {
	if strings.TrimSpace(req.Text) == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	nowMs := now.UnixMilli()
	t.totalRequests++

	t.history = append(t.history, HistoryEntry{
		Text:            req.Text,
		Policy:          req.Policy,
		TemplateVersion: req.TemplateVersion,
		TimestampMs:     nowMs,
		CacheHit:        req.CacheHit,
	})
	if over := len(t.history) - t.maxHistory; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}

	key := fingerprint.PatternKey(req.Text, req.Policy, req.TemplateVersion)
	if record, exists := t.patterns[key]; exists {
		record.Count++
		record.LastSeenMs = nowMs
		record.Text = req.Text
		if record.Count == t.minCount {
			t.patternsDetected++
		}
	} else {
		t.patterns[key] = &PatternRecord{
			Key:             key,
			Count:           1,
			LastSeenMs:      nowMs,
			Text:            req.Text,
			Policy:          req.Policy,
			TemplateVersion: req.TemplateVersion,
		}
		if t.minCount <= 1 {
			t.patternsDetected++
		}
	}

	t.cleanupLocked(nowMs)
	return true
}

// cleanupLocked drops patterns not seen within the ttl
func (t *Tracker) cleanupLocked(nowMs int64) {
	cutoff := nowMs - t.ttl.Milliseconds()
	for key, record := range t.patterns {
		if record.LastSeenMs < cutoff {
			delete(t.patterns, key)
		}
	}
}

// State is a consistent copy of tracker state for ranking
type State struct {
	Patterns    []PatternRecord
	Latest      *HistoryEntry
	HistorySize int
}

// State copies the tracked patterns and the most recent request
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v := State{
		Patterns:    make([]PatternRecord, 0, len(t.patterns)),
		HistorySize: len(t.history),
	}
	for _, record := range t.patterns {
		v.Patterns = append(v.Patterns, *record)
	}
	if n := len(t.history); n > 0 {
		latest := t.history[n-1]
		v.Latest = &latest
	}
	return v
}

// Pattern returns a copy of the record for a request shape
func (t *Tracker) Pattern(text string, policy map[string]any, templateVersion string) (PatternRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.patterns[fingerprint.PatternKey(text, policy, templateVersion)]
	if !ok {
		return PatternRecord{}, false
	}
	return *record, true
}

// Sizes returns the history length and the number of tracked patterns
func (t *Tracker) Sizes() (history, patterns int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history), len(t.patterns)
}

// Counters returns total tracked requests and patterns that reached the minimum frequency
func (t *Tracker) Counters() (totalRequests, patternsDetected int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalRequests, t.patternsDetected
}

// Reset forgets all history, patterns and counters
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
	t.patterns = make(map[string]*PatternRecord)
	t.totalRequests = 0
	t.patternsDetected = 0
}
