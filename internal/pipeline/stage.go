// Package pipeline runs the per-chunk analysis fan-out: one audio chunk in,
// one [Bundle] of stage results out.
//
// A chunk is normalized once, then the four primary stages (transcription,
// synthetic-voice detection, background classification, diarization) run in
// parallel, each under its own timeout. Emotion analysis runs afterwards,
// one call per diarized speech segment, because mixed-speaker audio corrupts
// emotion scores. Stage failures never abort siblings: a failed stage is
// recorded in the bundle and the rest of the chunk proceeds. Only
// normalization failure rejects a chunk outright.
package pipeline

import (
	"errors"
	"time"

	"github.com/ringguard/ringguard/pkg/provider/ambience"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
)

// Stage names as they appear in StageResult, logs, and metrics.
const (
	StageTranscribe = "transcribe"
	StageVoiceAuth  = "voiceauth"
	StageAmbience   = "ambience"
	StageDiarize    = "diarize"
	StageEmotion    = "emotion"
)

// ErrStageTimeout marks a stage that exceeded its individual budget. Wrapped
// into the stage's recorded error.
var ErrStageTimeout = errors.New("pipeline: stage timed out")

// ErrChunkDeadline marks a chunk whose overall deadline forced early
// aggregation of partial results.
var ErrChunkDeadline = errors.New("pipeline: chunk deadline exceeded")

// ErrAllStagesFailed is returned by [Bundle.Err] when not a single stage
// produced a result.
var ErrAllStagesFailed = errors.New("pipeline: all analysis stages failed")

// StageResult records one stage's outcome, success or not.
type StageResult struct {
	// Stage is one of the Stage constants.
	Stage string

	// Success reports whether the stage produced a usable result.
	Success bool

	// Err holds the failure cause when Success is false.
	Err error

	// Elapsed is the stage's wall time, including gate wait.
	Elapsed time.Duration
}

// TimedOut reports whether the stage failed on its own timeout or the chunk
// deadline.
func (r StageResult) TimedOut() bool {
	return errors.Is(r.Err, ErrStageTimeout) || errors.Is(r.Err, ErrChunkDeadline)
}

// Bundle aggregates every stage result for one chunk. Nil result pointers
// mean the corresponding stage failed or was skipped; consult Stages for the
// cause.
type Bundle struct {
	CallID        string
	ChunkSequence int

	// AudioDuration is the normalized chunk duration.
	AudioDuration time.Duration

	Transcription *transcribe.Result
	VoiceAuth     *voiceauth.Result
	Ambience      *ambience.Result
	Diarization   *diarize.Result

	// Emotions holds one entry per diarized segment that met the model's
	// minimum length, in segment start order.
	Emotions []SegmentEmotion

	// Stages records per-stage outcomes in completion order.
	Stages []StageResult

	// Partial reports that the chunk deadline forced early aggregation.
	Partial bool
}

// SegmentEmotion pairs one diarized speech segment with its emotion result.
type SegmentEmotion struct {
	// Speaker is the segment's chunk-local speaker label.
	Speaker string

	// Start and End bound the analyzed slice relative to the chunk start.
	Start time.Duration
	End   time.Duration

	Result emotion.Result
}

// SpeakerEmotions reduces the per-segment results to one profile per
// speaker, keeping each speaker's most stressed segment.
func (b *Bundle) SpeakerEmotions() map[string]emotion.Result {
	if len(b.Emotions) == 0 {
		return nil
	}
	out := make(map[string]emotion.Result)
	for _, se := range b.Emotions {
		cur, ok := out[se.Speaker]
		if !ok || se.Result.StressLevel > cur.StressLevel {
			out[se.Speaker] = se.Result
		}
	}
	return out
}

// StageOutcome returns the recorded result for one stage name. The second
// return is false when the stage never ran.
func (b *Bundle) StageOutcome(stage string) (StageResult, bool) {
	for _, s := range b.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageResult{}, false
}

// Err returns ErrAllStagesFailed when no primary stage succeeded, nil
// otherwise. A bundle with at least one usable result is judgeable.
func (b *Bundle) Err() error {
	for _, s := range b.Stages {
		if s.Stage == StageEmotion {
			continue
		}
		if s.Success {
			return nil
		}
	}
	return ErrAllStagesFailed
}

// Transcript returns the transcript text, or "" when transcription failed.
func (b *Bundle) Transcript() string {
	if b.Transcription == nil {
		return ""
	}
	return b.Transcription.Text
}
