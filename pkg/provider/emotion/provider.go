// Package emotion defines the provider abstraction for speech emotion
// recognition. Implementations score a single speaker's separated audio for
// emotional state; the pipeline uses elevated fear and distress as a signal
// that the receiver is being pressured.
//
// Emotion analysis runs on diarized per-speaker segments only, never on the
// mixed chunk, because crosstalk between speakers corrupts the scores.
package emotion

import (
	"context"
	"errors"

	"github.com/ringguard/ringguard/pkg/audio"
)

// ErrSegmentTooShort is returned when the waveform is too short for the
// model to produce a meaningful score. Callers should skip the segment
// rather than fail the speaker.
var ErrSegmentTooShort = errors.New("emotion: segment too short for analysis")

// Canonical emotion labels. Models with richer vocabularies map their
// classes onto these.
const (
	EmotionNeutral  = "neutral"
	EmotionHappy    = "happy"
	EmotionSad      = "sad"
	EmotionAngry    = "angry"
	EmotionFear     = "fear"
	EmotionSurprise = "surprise"
	EmotionDisgust  = "disgust"
)

// stressWeights maps emotion labels to their contribution to the stress
// level. Fear dominates; anger and sadness contribute less.
var stressWeights = map[string]float64{
	EmotionFear:  1.0,
	EmotionAngry: 0.6,
	EmotionSad:   0.4,
}

// Result is the outcome of analyzing one speaker's audio.
type Result struct {
	// TopEmotion is the label with the highest score.
	TopEmotion string

	// Confidence is the score of TopEmotion in [0, 1].
	Confidence float64

	// Scores holds the full distribution over emotion labels.
	Scores map[string]float64

	// StressLevel aggregates the distress-associated emotions into a single
	// [0, 1] figure.
	StressLevel float64
}

// ComputeStress derives the stress level from a score distribution. Exposed
// so implementations share one definition.
func ComputeStress(scores map[string]float64) float64 {
	var stress float64
	for label, weight := range stressWeights {
		stress += scores[label] * weight
	}
	if stress > 1 {
		stress = 1
	}
	if stress < 0 {
		stress = 0
	}
	return stress
}

// Provider analyzes a single speaker's waveform for emotional state.
//
// Analyze returns ErrSegmentTooShort for waveforms below the model's minimum
// duration. It must honor ctx cancellation and must not retain the waveform
// after returning. Implementations must be safe for concurrent use.
type Provider interface {
	Analyze(ctx context.Context, w audio.Waveform) (Result, error)
}
