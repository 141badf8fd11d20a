// Package transcribe defines the Provider interface for speech-to-text
// backends.
//
// A transcription provider wraps a batch speech-recognition engine (a local
// whisper-server, or the whisper.cpp CGO bindings) and exposes a single
// per-chunk operation: waveform in, text plus per-segment timing out.
// Unlike a streaming call assistant, the scam pipeline works on discrete
// ~10 s chunks, so there is no session handle — each call is independent.
//
// Implementations must be safe for concurrent use; the orchestrator runs
// transcriptions for many calls in parallel.
package transcribe

import (
	"context"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
)

// Segment is one timed span of recognised speech within a chunk.
type Segment struct {
	// Text is the recognised speech for this span.
	Text string

	// Start and End are offsets relative to the start of the chunk.
	Start time.Duration
	End   time.Duration

	// Confidence is the span-level confidence (0.0–1.0). Zero when the
	// backend does not report one.
	Confidence float64
}

// Result is the output of one transcription call.
type Result struct {
	// Text is the full recognised transcript. May be non-empty even when some
	// segments failed — partial output is preferred over none.
	Text string

	// Language is the detected (or configured) BCP-47 language tag.
	Language string

	// Segments carries per-span timing detail when the backend provides it.
	Segments []Segment

	// AverageConfidence is the mean segment confidence, or zero when the
	// backend reports none.
	AverageConfidence float64
}

// Provider is the abstraction over any transcription backend.
//
// Transcribe must never block indefinitely: implementations enforce their own
// internal timeout and return an error rather than hanging the pipeline. The
// orchestrator additionally wraps every call in a stage-level deadline.
type Provider interface {
	Transcribe(ctx context.Context, w audio.Waveform) (Result, error)
}
