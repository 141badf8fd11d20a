// Package judge turns a chunk's analysis bundle plus the call's context into
// a risk verdict. Scoring is two-layer: a deterministic, exactly-reproducible
// keyword-and-signal layer sets the floor, and an LLM reasoner refines it
// with cross-chunk context. The reasoner can move the level by at most one
// step and its unavailability degrades, never fails, a chunk.
package judge

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Default indicator sets. High severity covers direct financial or
// credential compromise; medium severity covers the pressure, authority,
// and pretext vocabulary that surrounds it. Both lists are configuration,
// not policy: deployments extend them freely, only the threshold table is
// fixed.
var (
	DefaultHighSeverity = []string{
		"bank details",
		"bank account",
		"wire transfer",
		"transfer",
		"payment",
		"credit card",
		"gift card",
		"bitcoin",
		"social security",
		"ssn",
		"password",
		"pin number",
		"remote access",
		"arrest warrant",
		"mother's maiden name",
	}

	DefaultMediumSeverity = []string{
		"urgent",
		"immediately",
		"right now",
		"quickly",
		"hurry",
		"deadline",
		"expires",
		"police",
		"irs",
		"government",
		"legal action",
		"court",
		"officer",
		"lawsuit",
		"suspended",
		"frozen",
		"virus",
		"malware",
		"microsoft",
		"tech support",
		"winner",
		"prize",
		"lottery",
		"sweepstakes",
		"congratulations",
		"verify",
		"confirm",
		"validate",
		"authenticate",
		"security check",
	}
)

// maxEditDistance is the Levenshtein budget for fuzzy single-word matches,
// absorbing transcription slips like "goverment" or "mcirosoft".
const maxEditDistance = 1

// Keywords holds the two severity-tiered indicator sets in lower case.
type Keywords struct {
	high   []string
	medium []string
}

// NewKeywords builds a matcher from the given lists. Empty lists fall back
// to the defaults.
func NewKeywords(high, medium []string) *Keywords {
	if len(high) == 0 {
		high = DefaultHighSeverity
	}
	if len(medium) == 0 {
		medium = DefaultMediumSeverity
	}
	return &Keywords{
		high:   lowered(high),
		medium: lowered(medium),
	}
}

// Matches holds the outcome of scanning one transcript.
type Matches struct {
	// High and Medium list the distinct matched keywords per tier.
	High   []string
	Medium []string

	// RiskScore is the legacy aggregate: 0.1 per distinct match, capped at
	// 1.0. Carried into the reasoner prompt, not into the threshold table.
	RiskScore float64
}

// All returns every matched keyword, high severity first.
func (m Matches) All() []string {
	out := make([]string, 0, len(m.High)+len(m.Medium))
	out = append(out, m.High...)
	out = append(out, m.Medium...)
	return out
}

// Scan matches the transcript against both tiers. Phrases match by
// substring, exactly like a keyword appearing mid-word ("urgently" matches
// "urgent"); single words additionally match tokens within one edit. Each
// keyword counts at most once per chunk.
func (k *Keywords) Scan(transcript string) Matches {
	var m Matches
	if strings.TrimSpace(transcript) == "" {
		return m
	}

	lower := strings.ToLower(transcript)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	})

	m.High = scanTier(k.high, lower, tokens)
	m.Medium = scanTier(k.medium, lower, tokens)

	m.RiskScore = 0.1 * float64(len(m.High)+len(m.Medium))
	if m.RiskScore > 1 {
		m.RiskScore = 1
	}
	return m
}

// scanTier returns the distinct keywords of one tier found in the
// transcript, in list order.
func scanTier(keywords []string, lower string, tokens []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
			continue
		}
		// Fuzzy matching only for single-word keywords long enough that one
		// edit cannot turn an unrelated word into a hit.
		if !strings.ContainsRune(kw, ' ') && len(kw) > 4 && fuzzyToken(kw, tokens) {
			found = append(found, kw)
		}
	}
	return found
}

// fuzzyToken reports whether any transcript token is within the edit budget
// of the keyword.
func fuzzyToken(kw string, tokens []string) bool {
	for _, tok := range tokens {
		if abs(len(tok)-len(kw)) > maxEditDistance {
			continue
		}
		if matchr.Levenshtein(kw, tok) <= maxEditDistance {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
