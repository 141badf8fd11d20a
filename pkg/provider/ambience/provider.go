// Package ambience defines the provider abstraction for background-sound
// classification. Implementations tag the acoustic environment of a call
// chunk and score how strongly it resembles a staged operation such as a
// boiler-room call center.
//
// The tag vocabulary is open: audio-tagging models report hundreds of
// classes and heuristic fallbacks invent their own. Consumers must not
// assume a fixed set.
package ambience

import (
	"context"

	"github.com/ringguard/ringguard/pkg/audio"
)

// Tag is a single detected environment sound.
type Tag struct {
	// Label names the sound, e.g. "Typing", "Chatter", "Office".
	Label string

	// Confidence is the model's score for this tag in [0, 1].
	Confidence float64
}

// Result is the outcome of a background classification.
type Result struct {
	// Tags lists the detected environment sounds that contributed to the
	// suspicion score, highest confidence first.
	Tags []Tag

	// SuspicionScore is the weighted aggregate of call-center-like tags,
	// clamped to [0, 1].
	SuspicionScore float64

	// Suspicious reports whether SuspicionScore crossed the classifier's
	// decision threshold.
	Suspicious bool

	// Method names the technique that produced the result, e.g. "panns" or
	// "spectral".
	Method string
}

// Provider classifies the background environment of a waveform.
//
// Classify must honor ctx cancellation and must not retain the waveform
// after returning. Implementations must be safe for concurrent use.
type Provider interface {
	Classify(ctx context.Context, w audio.Waveform) (Result, error)
}

// SuspiciousWeights maps call-center-associated sound labels to their
// contribution weight in the suspicion score. Shared by implementations that
// work from an AudioSet-style tag vocabulary.
var SuspiciousWeights = map[string]float64{
	"Computer keyboard": 0.4,
	"Typing":            0.5,
	"Printer":           0.3,
	"Chatter":           0.6,
	"Telephone":         0.4,
	"Office":            0.7,
	"White noise":       0.5,
	"Air conditioning":  0.4,
	"Click":             0.3,
	"Writing":           0.3,
	"Background music":  0.6,
	"Crowd":             0.5,
	"Traffic":           0.4,
}
