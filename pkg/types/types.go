// Package types defines the shared types used across all Ringguard packages.
//
// These types form the lingua franca between the audio normalizer, the stage
// adapters, the pipeline orchestrator, the risk judge, and the call session
// registry. They are intentionally minimal — each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is the ordered verdict scale produced by the risk judge.
// Ordering matters: Low < Medium < High, and the registry uses the order to
// decide whether a verdict is worth alerting on.
type RiskLevel int

const (
	// RiskLow means no actionable scam indicators were found for the chunk.
	RiskLow RiskLevel = iota

	// RiskMedium means the chunk carries enough indicators to warrant a
	// cautionary alert to the call receiver.
	RiskMedium

	// RiskHigh means the chunk matches strong scam patterns and the receiver
	// should be alerted immediately.
	RiskHigh
)

// String returns the lowercase wire name of the risk level.
func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the level as its lowercase string name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a lowercase level name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseRiskLevel converts a wire name back into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return RiskLow, fmt.Errorf("types: unknown risk level %q", s)
}

// AudioChunk is one short (~10 s) segment of call audio submitted for
// analysis. The pipeline owns a chunk only for the duration of one run.
type AudioChunk struct {
	// CallID identifies the call this chunk belongs to.
	CallID string

	// Sequence is the chunk's position within the call. It increases
	// monotonically per call, but chunks may arrive and complete out of order.
	Sequence int

	// Data is the raw encoded audio as received from the bridge.
	Data []byte

	// Encoding is the asserted codec tag ("wav", "opus", "pcm16"). When empty
	// the normalizer sniffs the format from the byte stream.
	Encoding string

	// CapturedAt is when the chunk was recorded on the client side.
	CapturedAt time.Time
}

// Role identifies a call participant's perspective on the call.
type Role string

const (
	// RoleReceiver marks the participant the call was placed TO — the
	// potential scam victim and the only valid notification target.
	RoleReceiver Role = "receiver"

	// RoleCaller marks the participant who initiated the call. Caller
	// registrations are tracked but never notified.
	RoleCaller Role = "caller"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleReceiver || r == RoleCaller
}

// RiskVerdict is the immutable output of the risk judge for one chunk.
type RiskVerdict struct {
	// ID uniquely identifies this verdict (UUID).
	ID string `json:"id"`

	// CallID identifies the call the verdict belongs to.
	CallID string `json:"call_id"`

	// ChunkSequence is the sequence number of the judged chunk.
	ChunkSequence int `json:"chunk_sequence"`

	// Level is the discrete risk verdict.
	Level RiskLevel `json:"risk_level"`

	// Degraded is true when the reasoning stage was unavailable and the
	// verdict rests on the deterministic scoring layer alone.
	Degraded bool `json:"degraded,omitempty"`

	// Evidence lists the indicators that triggered this verdict.
	Evidence []string `json:"evidence"`

	// RecommendedActions is advice for the call receiver, in priority order.
	RecommendedActions []string `json:"recommended_actions"`

	// ScamType is the most likely scam category, or "none".
	ScamType string `json:"scam_type,omitempty"`

	// Rationale is the reasoning stage's free-text explanation. Empty on
	// degraded verdicts.
	Rationale string `json:"rationale,omitempty"`

	// ProducedAt is when the judge finished this verdict.
	ProducedAt time.Time `json:"produced_at"`
}

// EvidenceSummary is the bounded per-chunk record appended to a call's
// context history. It deliberately carries key evidence only — never full
// transcripts — so that long calls stay within a fixed memory envelope.
type EvidenceSummary struct {
	// ChunkSequence is the sequence number of the summarised chunk.
	ChunkSequence int `json:"chunk_sequence"`

	// Level is the risk level the chunk was judged at.
	Level RiskLevel `json:"risk_level"`

	// Degraded mirrors the verdict's degraded flag.
	Degraded bool `json:"degraded,omitempty"`

	// Indicators lists the triggering evidence for the chunk.
	Indicators []string `json:"indicators,omitempty"`

	// TranscriptSnippet is a short excerpt (bounded length) for reasoning
	// context across chunks.
	TranscriptSnippet string `json:"transcript_snippet,omitempty"`

	// ScamType is the reasoning stage's category guess for the chunk.
	ScamType string `json:"scam_type,omitempty"`

	// SyntheticVoice is true when the synthetic-voice signal crossed the
	// judge's confidence threshold for this chunk.
	SyntheticVoice bool `json:"synthetic_voice,omitempty"`

	// JudgedAt is when the verdict behind this summary was produced.
	JudgedAt time.Time `json:"judged_at"`
}

// snippetLimit bounds TranscriptSnippet length in bytes.
const snippetLimit = 200

// Snippet truncates s to the bounded snippet length on a rune boundary.
func Snippet(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}

// CallContext is the mutable, call-scoped store of accumulated evidence.
// It spans the whole call: created on the first chunk, updated after every
// judge invocation, evicted after idle expiry or an explicit call-end signal.
//
// Mutation is owned exclusively by the risk judge (via the context cache's
// per-call serialised update); other components only read.
type CallContext struct {
	// CallID identifies the call.
	CallID string `json:"call_id"`

	// History is the append log of per-chunk evidence summaries, in arrival
	// order. It is never re-sorted by sequence number.
	History []EvidenceSummary `json:"history"`

	// CreatedAt is when the context was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastUpdate is when the judge last wrote to this context.
	LastUpdate time.Time `json:"last_update"`
}

// NewCallContext creates a fresh context for callID.
func NewCallContext(callID string) *CallContext {
	now := time.Now()
	return &CallContext{
		CallID:     callID,
		CreatedAt:  now,
		LastUpdate: now,
	}
}

// AppendHistory appends a summary in arrival order and bumps LastUpdate.
// When the history exceeds maxLen, the oldest entries are dropped.
func (c *CallContext) AppendHistory(s EvidenceSummary, maxLen int) {
	c.History = append(c.History, s)
	if maxLen > 0 && len(c.History) > maxLen {
		c.History = c.History[len(c.History)-maxLen:]
	}
	c.LastUpdate = time.Now()
}

// Recent returns up to n of the most recent history entries, oldest first.
func (c *CallContext) Recent(n int) []EvidenceSummary {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// HighestLevel returns the maximum risk level recorded in the history, or
// RiskLow for an empty history.
func (c *CallContext) HighestLevel() RiskLevel {
	level := RiskLow
	for _, s := range c.History {
		if s.Level > level {
			level = s.Level
		}
	}
	return level
}

// Notification is the payload pushed to a registered receiver connection when
// a verdict crosses the alert threshold.
type Notification struct {
	CallID          string    `json:"call_id"`
	ChunkSequence   int       `json:"chunk_sequence"`
	Level           RiskLevel `json:"level"`
	Message         string    `json:"message"`
	Recommendations []string  `json:"recommendations,omitempty"`
	SentAt          time.Time `json:"sent_at"`
}
