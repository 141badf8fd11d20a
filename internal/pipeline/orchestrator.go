package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
	"github.com/ringguard/ringguard/pkg/types"
)

// StageTimeouts carries the per-stage budgets. Zero values fall back to the
// stage defaults.
type StageTimeouts struct {
	Transcribe time.Duration
	VoiceAuth  time.Duration
	Ambience   time.Duration
	Diarize    time.Duration
	Emotion    time.Duration
}

// withDefaults fills zero fields with the standard budgets.
func (t StageTimeouts) withDefaults() StageTimeouts {
	def := func(d *time.Duration, fallback time.Duration) {
		if *d <= 0 {
			*d = fallback
		}
	}
	def(&t.Transcribe, 15*time.Second)
	def(&t.VoiceAuth, 10*time.Second)
	def(&t.Ambience, 10*time.Second)
	def(&t.Diarize, 20*time.Second)
	def(&t.Emotion, 10*time.Second)
	return t
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// StageTimeouts bounds each stage individually.
	StageTimeouts StageTimeouts

	// ChunkDeadline bounds the whole chunk; stages still running when it
	// expires are abandoned and the bundle is marked Partial. Defaults to
	// 30 s.
	ChunkDeadline time.Duration

	// MaxInference bounds concurrent heavy-inference calls across all
	// chunks. Defaults to 8.
	MaxInference int
}

// Providers collects the model backends the orchestrator fans out to.
// Transcriber, VoiceAuth, Ambience, and Diarizer are required; Emotion may
// be nil to disable per-speaker emotion analysis.
type Providers struct {
	Transcriber transcribe.Provider
	VoiceAuth   voiceauth.Provider
	Ambience    ambience.Provider
	Diarizer    diarize.Provider
	Emotion     emotion.Provider
}

// Orchestrator normalizes chunks and runs the analysis fan-out. Safe for
// concurrent use; chunks of any call may be analyzed simultaneously subject
// to the inference gate.
type Orchestrator struct {
	providers  Providers
	normalizer audio.Normalizer
	timeouts   StageTimeouts
	deadline   time.Duration
	gate       *Gate
}

// New creates an Orchestrator.
func New(p Providers, cfg Config) (*Orchestrator, error) {
	if p.Transcriber == nil || p.VoiceAuth == nil || p.Ambience == nil || p.Diarizer == nil {
		return nil, errors.New("pipeline: all primary providers must be set")
	}
	if cfg.ChunkDeadline <= 0 {
		cfg.ChunkDeadline = 30 * time.Second
	}
	return &Orchestrator{
		providers:  p,
		normalizer: audio.Normalizer{TargetRate: audio.CanonicalRate},
		timeouts:   cfg.StageTimeouts.withDefaults(),
		deadline:   cfg.ChunkDeadline,
		gate:       NewGate(cfg.MaxInference),
	}, nil
}

// Gate exposes the shared inference gate, mainly for readiness reporting.
func (o *Orchestrator) Gate() *Gate {
	return o.gate
}

// Analyze runs the full fan-out for one chunk and returns its bundle.
//
// The only hard failures are normalization errors (audio.ErrDecode,
// audio.ErrEmptyAudio), which reject the chunk. Everything downstream is
// recorded per stage in the bundle; callers decide judgeability via
// [Bundle.Err].
func (o *Orchestrator) Analyze(ctx context.Context, chunk types.AudioChunk) (*Bundle, error) {
	w, err := o.normalizer.Normalize(chunk.Data, chunk.Encoding)
	if err != nil {
		return nil, fmt.Errorf("pipeline: normalize chunk %d of call %s: %w", chunk.Sequence, chunk.CallID, err)
	}

	bundle := &Bundle{
		CallID:        chunk.CallID,
		ChunkSequence: chunk.Sequence,
		AudioDuration: w.Duration(),
	}

	chunkCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(r StageResult) {
		mu.Lock()
		bundle.Stages = append(bundle.Stages, r)
		mu.Unlock()
	}

	run := func(stage string, timeout time.Duration, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(o.runStage(chunkCtx, stage, timeout, fn))
		}()
	}

	run(StageTranscribe, o.timeouts.Transcribe, func(sc context.Context) error {
		res, err := o.providers.Transcriber.Transcribe(sc, w)
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Transcription = &res
		mu.Unlock()
		return nil
	})
	run(StageVoiceAuth, o.timeouts.VoiceAuth, func(sc context.Context) error {
		res, err := o.providers.VoiceAuth.Detect(sc, w)
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.VoiceAuth = &res
		mu.Unlock()
		return nil
	})
	run(StageAmbience, o.timeouts.Ambience, func(sc context.Context) error {
		res, err := o.providers.Ambience.Classify(sc, w)
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Ambience = &res
		mu.Unlock()
		return nil
	})
	run(StageDiarize, o.timeouts.Diarize, func(sc context.Context) error {
		res, err := o.providers.Diarizer.Diarize(sc, w)
		if err != nil {
			return err
		}
		mu.Lock()
		bundle.Diarization = &res
		mu.Unlock()
		return nil
	})

	wg.Wait()

	// Emotion runs only on per-speaker separated audio, so it is gated on a
	// successful diarization and a live chunk deadline.
	if o.providers.Emotion != nil && bundle.Diarization != nil && chunkCtx.Err() == nil {
		o.analyzeEmotions(chunkCtx, w, bundle, record)
	}

	if chunkCtx.Err() != nil {
		bundle.Partial = true
		slog.Warn("chunk deadline exceeded, aggregating partial results",
			"call_id", chunk.CallID,
			"chunk_sequence", chunk.Sequence,
			"stages", len(bundle.Stages))
	}
	return bundle, nil
}

// runStage executes one stage under the gate and its own timeout, converting
// every failure into a recorded StageResult.
func (o *Orchestrator) runStage(chunkCtx context.Context, stage string, timeout time.Duration, fn func(context.Context) error) StageResult {
	start := time.Now()
	res := StageResult{Stage: stage}

	if err := o.gate.Acquire(chunkCtx); err != nil {
		res.Err = o.classify(chunkCtx, nil, err)
		res.Elapsed = time.Since(start)
		return res
	}
	defer o.gate.Release()

	stageCtx, cancel := context.WithTimeout(chunkCtx, timeout)
	defer cancel()

	err := fn(stageCtx)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = o.classify(chunkCtx, stageCtx, err)
		slog.Warn("analysis stage failed",
			"stage", stage,
			"elapsed", res.Elapsed,
			"error", res.Err)
		return res
	}
	res.Success = true
	return res
}

// classify maps a raw stage error onto the timeout sentinels. Chunk deadline
// takes precedence: a stage cut off because the whole chunk ran out of time
// is not the stage's own fault.
func (o *Orchestrator) classify(chunkCtx, stageCtx context.Context, err error) error {
	if chunkCtx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrChunkDeadline, err)
	}
	if stageCtx != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStageTimeout, err)
	}
	return err
}

// analyzeEmotions scores every diarized segment individually, one provider
// call per segment, fanned out concurrently under the gate. Each call sees
// only its own segment's slice. Segments too short for the model are skipped
// silently; other failures are folded into a single emotion stage result.
func (o *Orchestrator) analyzeEmotions(chunkCtx context.Context, w audio.Waveform, bundle *Bundle, record func(StageResult)) {
	start := time.Now()
	segments := bundle.Diarization.Segments
	results := make([]*emotion.Result, len(segments))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for i, seg := range segments {
		sw := w.Slice(seg.Start, seg.End)
		if sw.Empty() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.runStage(chunkCtx, StageEmotion, o.timeouts.Emotion, func(sc context.Context) error {
				er, err := o.providers.Emotion.Analyze(sc, sw)
				if err != nil {
					return err
				}
				results[i] = &er
				return nil
			})
			if !res.Success && !errors.Is(res.Err, emotion.ErrSegmentTooShort) {
				mu.Lock()
				if firstErr == nil {
					firstErr = res.Err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, r := range results {
		if r == nil {
			continue
		}
		bundle.Emotions = append(bundle.Emotions, SegmentEmotion{
			Speaker: segments[i].Speaker,
			Start:   segments[i].Start,
			End:     segments[i].End,
			Result:  *r,
		})
	}
	record(StageResult{
		Stage:   StageEmotion,
		Success: firstErr == nil,
		Err:     firstErr,
		Elapsed: time.Since(start),
	})
}
