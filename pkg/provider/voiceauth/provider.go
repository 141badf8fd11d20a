// Package voiceauth defines the provider abstraction for synthetic-voice
// detection. Implementations score a waveform for the likelihood that the
// speech was machine-generated (TTS, voice cloning) rather than produced by
// a human speaker.
//
// Providers report a raw confidence and never apply a decision threshold;
// thresholding is a risk-policy concern and lives with the judgement layer.
package voiceauth

import (
	"context"

	"github.com/ringguard/ringguard/pkg/audio"
)

// Label values reported by detectors. Detectors with richer vocabularies may
// report other labels; consumers must treat the set as open.
const (
	LabelHuman     = "human"
	LabelSynthetic = "synthetic"
)

// Result is the outcome of a synthetic-voice analysis.
type Result struct {
	// Confidence is the probability in [0, 1] that the voice is synthetic.
	// 0 means certainly human, 1 means certainly machine-generated.
	Confidence float64

	// Label is the detector's top class, typically LabelHuman or
	// LabelSynthetic.
	Label string

	// RawProbabilities holds the detector's full class distribution when
	// available, keyed by class label. May be nil.
	RawProbabilities map[string]float64
}

// Synthetic reports whether the detector's top class is the synthetic one.
func (r Result) Synthetic() bool {
	return r.Label == LabelSynthetic
}

// Provider analyzes a waveform for machine-generated speech.
//
// Detect must honor ctx cancellation and must not retain the waveform after
// returning. Implementations must be safe for concurrent use.
type Provider interface {
	Detect(ctx context.Context, w audio.Waveform) (Result, error)
}
