// Package diarize defines the provider abstraction for speaker diarization:
// partitioning a call chunk into per-speaker time segments so that
// downstream analysis can score each voice independently.
//
// A chunk with no detectable speech diarizes to zero segments; that is a
// successful result, not an error. Segments attributed to the same speaker
// never overlap in time, but segments of different speakers may (crosstalk).
package diarize

import (
	"context"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
)

// Segment is one contiguous stretch of speech attributed to a single
// speaker.
type Segment struct {
	// Speaker is a chunk-local label such as "SPEAKER_00". Labels are stable
	// within one diarization result but carry no identity across chunks.
	Speaker string

	// Start and End bound the segment relative to the start of the chunk.
	Start time.Duration
	End   time.Duration
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Result is the outcome of diarizing one chunk.
type Result struct {
	// Segments lists detected speech segments in start-time order. Empty for
	// silence.
	Segments []Segment

	// SpeakerCount is the number of distinct speaker labels in Segments.
	SpeakerCount int
}

// Speakers returns the distinct speaker labels in first-appearance order.
func (r Result) Speakers() []string {
	seen := make(map[string]bool, r.SpeakerCount)
	var out []string
	for _, s := range r.Segments {
		if !seen[s.Speaker] {
			seen[s.Speaker] = true
			out = append(out, s.Speaker)
		}
	}
	return out
}

// SegmentsFor returns the segments attributed to one speaker, preserving
// order.
func (r Result) SegmentsFor(speaker string) []Segment {
	var out []Segment
	for _, s := range r.Segments {
		if s.Speaker == speaker {
			out = append(out, s)
		}
	}
	return out
}

// Provider partitions a waveform into per-speaker segments.
//
// Diarize must honor ctx cancellation and must not retain the waveform after
// returning. Implementations must be safe for concurrent use.
type Provider interface {
	Diarize(ctx context.Context, w audio.Waveform) (Result, error)
}
