// Package fingerprint derives cache keys and content signatures from labeling requests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/FairForge/spancache/internal/labeling"
)

// Fingerprint is the cache key of a labeling request
type Fingerprint string

// keyShape holds the fields that change the labeler's answer. encoding/json sorts
// map keys, so the policy serializes deterministically.
type keyShape struct {
	Text            string         `json:"t"`
	MaxSpans        int            `json:"m"`
	MinConfidence   float64        `json:"c"`
	Policy          map[string]any `json:"p,omitempty"`
	TemplateVersion string         `json:"v"`
}

// Of returns the fingerprint of a payload
func Of(p labeling.Payload) Fingerprint {
	data, err := json.Marshal(keyShape{
		Text:            p.Text,
		MaxSpans:        p.MaxSpans,
		MinConfidence:   p.MinConfidence,
		Policy:          p.Policy,
		TemplateVersion: p.TemplateVersion,
	})
	if err != nil {
		// NaN confidences and unencodable policy values fall back to a text form.
		data = []byte(strings.Join([]string{
			p.Text,
			strconv.Itoa(p.MaxSpans),
			strconv.FormatFloat(p.MinConfidence, 'g', -1, 64),
			p.TemplateVersion,
			policyString(p.Policy),
		}, "\x00"))
	}
	sum := blake2b.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Signature is a content hash of the raw prompt text only
func Signature(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// PatternKey identifies a usage pattern: normalized text, policy and template version
func PatternKey(text string, policy map[string]any, templateVersion string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(text)))
	h.Write([]byte{0})
	h.Write([]byte(policyString(policy)))
	h.Write([]byte{0})
	h.Write([]byte(templateVersion))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Normalize lowercases text and collapses whitespace runs
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func policyString(policy map[string]any) string {
	if len(policy) == 0 {
		return ""
	}
	data, err := json.Marshal(policy)
	if err != nil {
		return fmt.Sprint(policy)
	}
	return string(data)
}
