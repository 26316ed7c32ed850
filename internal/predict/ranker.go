// internal/predict/ranker.go
package predict

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Reasons a candidate was predicted
const (
	ReasonFrequentPattern = "frequent_pattern"
	ReasonSimilarPattern  = "similar_pattern"
)

// Candidate is a request predicted to come next
type Candidate struct {
	Key             string         `json:"key"`
	Text            string         `json:"text"`
	Policy          map[string]any `json:"policy,omitempty"`
	TemplateVersion string         `json:"templateVersion,omitempty"`
	Confidence      float64        `json:"confidence"`
	Reason          string         `json:"reason"`
}

// Strategy proposes candidates from tracker state. selected holds pattern keys already
// chosen by earlier strategies.
type Strategy interface {
	Name() string
	Candidates(v State, now time.Time, selected map[string]bool) []Candidate
}

// FrequencyStrategy picks patterns seen often and recently
type FrequencyStrategy struct {
	MinFrequency int
	Limit        int
	Decay        time.Duration
}

func (s *FrequencyStrategy) Name() string { return ReasonFrequentPattern }

func (s *FrequencyStrategy) Candidates(v State, now time.Time, selected map[string]bool) []Candidate {
	type scored struct {
		record PatternRecord
		score  float64
	}

	var ranked []scored
	for _, record := range v.Patterns {
		if record.Count < s.MinFrequency || selected[record.Key] {
			continue
		}
		score := float64(record.Count) * RecencyScore(record.LastSeenMs, now, s.Decay)
		ranked = append(ranked, scored{record, score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].record.Key < ranked[j].record.Key
	})

	out := make([]Candidate, 0, s.Limit)
	for i := 0; i < len(ranked) && i < s.Limit; i++ {
		r := ranked[i].record
		out = append(out, Candidate{
			Key:             r.Key,
			Text:            r.Text,
			Policy:          r.Policy,
			TemplateVersion: r.TemplateVersion,
			Confidence:      math.Min(float64(r.Count)/10, 1),
			Reason:          ReasonFrequentPattern,
		})
	}
	return out
}

// SimilarityStrategy picks patterns whose wording is close to the latest request
type SimilarityStrategy struct {
	Threshold float64
}

func (s *SimilarityStrategy) Name() string { return ReasonSimilarPattern }

func (s *SimilarityStrategy) Candidates(v State, _ time.Time, selected map[string]bool) []Candidate {
	if v.Latest == nil {
		return nil
	}
	latest := wordSet(v.Latest.Text)

	patterns := append([]PatternRecord(nil), v.Patterns...)
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Key < patterns[j].Key })

	var out []Candidate
	for _, record := range patterns {
		if selected[record.Key] {
			continue
		}
		similarity := jaccard(latest, wordSet(record.Text))
		if similarity <= s.Threshold {
			continue
		}
		out = append(out, Candidate{
			Key:             record.Key,
			Text:            record.Text,
			Policy:          record.Policy,
			TemplateVersion: record.TemplateVersion,
			Confidence:      similarity,
			Reason:          ReasonSimilarPattern,
		})
	}
	return out
}

// Ranker merges strategy output into one list, most confident first
type Ranker struct {
	strategies []Strategy
	window     int
}

// NewRanker creates a ranker returning at most window candidates
func NewRanker(window int, strategies ...Strategy) *Ranker {
	return &Ranker{strategies: strategies, window: window}
}

// Rank runs every strategy in order; a pattern picked by one is skipped by the rest
func (r *Ranker) Rank(v State, now time.Time) []Candidate {
	selected := make(map[string]bool)
	var merged []Candidate

	for _, strategy := range r.strategies {
		for _, c := range strategy.Candidates(v, now, selected) {
			if selected[c.Key] {
				continue
			}
			selected[c.Key] = true
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > r.window {
		merged = merged[:r.window]
	}
	return merged
}

// RecencyScore is exp(-age/decay): 1 when just seen, falling towards 0
func RecencyScore(lastSeenMs int64, now time.Time, decay time.Duration) float64 {
	age := now.UnixMilli() - lastSeenMs
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(decay.Milliseconds()))
}

// Jaccard returns |A∩B| / |A∪B| over the lowercase whitespace-separated words of a and b
func Jaccard(a, b string) float64 {
	return jaccard(wordSet(a), wordSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
