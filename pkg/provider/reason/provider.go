// Package reason defines the provider abstraction for the LLM risk
// reasoner: the model that weighs a chunk's combined analysis signals
// against the call's history and produces a contextual scam assessment.
//
// The reasoner refines the deterministic keyword-and-signal verdict, it
// never replaces it. Its output level is clamped to within one step of the
// deterministic level by the judgement layer, and when the reasoner is
// unreachable the pipeline degrades to the deterministic verdict alone.
package reason

import (
	"context"

	"github.com/ringguard/ringguard/pkg/types"
)

// Escalation levels reported by the reasoner.
const (
	EscalationLow    = "low"
	EscalationMedium = "medium"
	EscalationHigh   = "high"
)

// SpeakerEmotion carries one speaker's emotional profile into the prompt.
type SpeakerEmotion struct {
	TopEmotion  string
	Confidence  float64
	StressLevel float64
}

// Signals is the aggregated per-chunk evidence handed to the reasoner.
type Signals struct {
	// Transcript is the chunk's full transcript text.
	Transcript string

	// Language is the detected transcript language.
	Language string

	// Keywords lists the scam-keyword matches found in the transcript.
	Keywords []string

	// KeywordRisk is the deterministic keyword risk score.
	KeywordRisk float64

	// SyntheticVoice reports whether the voice detector flagged the audio,
	// with its raw confidence.
	SyntheticVoice      bool
	SyntheticConfidence float64

	// BackgroundTags and BackgroundScore describe the acoustic environment.
	BackgroundTags       []string
	BackgroundScore      float64
	BackgroundSuspicious bool

	// SpeakerCount is the number of distinct speakers diarization found.
	SpeakerCount int

	// SpeakerEmotions maps speaker labels to their emotional profile,
	// computed from separated audio only.
	SpeakerEmotions map[string]SpeakerEmotion
}

// Request is one assessment request.
type Request struct {
	CallID        string
	ChunkSequence int

	// DeterministicLevel is the rule-based verdict for this chunk, computed
	// before the reasoner runs.
	DeterministicLevel types.RiskLevel

	// Signals is the current chunk's evidence.
	Signals Signals

	// History holds the call's prior per-chunk summaries in arrival order.
	// Implementations include only the most recent entries in the prompt.
	History []types.EvidenceSummary
}

// Assessment is the reasoner's verdict for one chunk.
type Assessment struct {
	// Level is the reasoner's risk level before any clamping.
	Level types.RiskLevel

	// Confidence is the reasoner's self-reported confidence in [0, 1].
	Confidence float64

	// RedFlags lists the specific indicators the reasoner called out.
	RedFlags []string

	// ScamType names the most likely scam category, or "none".
	ScamType string

	// Rationale is the reasoner's free-text explanation.
	Rationale string

	// RecommendedAction is advice for the call receiver.
	RecommendedAction string

	// Escalation is the reasoner's read of the call trajectory: one of the
	// Escalation constants.
	Escalation string

	// ImmediateRisk reports whether the reasoner believes harm is imminent
	// in this chunk.
	ImmediateRisk bool
}

// Provider produces a contextual scam assessment for one chunk.
//
// Assess must honor ctx cancellation. Implementations must be safe for
// concurrent use.
type Provider interface {
	Assess(ctx context.Context, req Request) (Assessment, error)
}
