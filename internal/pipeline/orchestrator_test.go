package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ringguard/ringguard/internal/pipeline"
	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
	ambiencemock "github.com/ringguard/ringguard/pkg/provider/ambience/mock"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
	diarizemock "github.com/ringguard/ringguard/pkg/provider/diarize/mock"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
	emotionmock "github.com/ringguard/ringguard/pkg/provider/emotion/mock"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
	transcribemock "github.com/ringguard/ringguard/pkg/provider/transcribe/mock"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
	voiceauthmock "github.com/ringguard/ringguard/pkg/provider/voiceauth/mock"
	"github.com/ringguard/ringguard/pkg/types"
)

// ---- helpers ----------------------------------------------------------------

// wavChunk builds a chunk holding one second of silence as canonical WAV.
func wavChunk(callID string, seq int) types.AudioChunk {
	w := audio.Waveform{Samples: make([]int16, audio.CanonicalRate), SampleRate: audio.CanonicalRate}
	return types.AudioChunk{
		CallID:   callID,
		Sequence: seq,
		Data:     audio.EncodeWAV(w),
		Encoding: audio.EncodingWAV,
	}
}

// mocks bundles one mock per stage with pipeline-ready defaults.
type mocks struct {
	transcriber *transcribemock.Provider
	voiceAuth   *voiceauthmock.Provider
	ambience    *ambiencemock.Provider
	diarizer    *diarizemock.Provider
	emotion     *emotionmock.Provider
}

func newMocks() *mocks {
	return &mocks{
		transcriber: &transcribemock.Provider{Result: transcribe.Result{Text: "hello"}},
		voiceAuth:   &voiceauthmock.Provider{Result: voiceauth.Result{Label: voiceauth.LabelHuman, Confidence: 0.1}},
		ambience:    &ambiencemock.Provider{Result: ambience.Result{Method: "panns"}},
		diarizer: &diarizemock.Provider{Result: diarize.Result{
			Segments: []diarize.Segment{
				{Speaker: "SPEAKER_00", Start: 0, End: 600 * time.Millisecond},
			},
			SpeakerCount: 1,
		}},
		emotion: &emotionmock.Provider{Result: emotion.Result{TopEmotion: emotion.EmotionNeutral}},
	}
}

func (m *mocks) providers() pipeline.Providers {
	return pipeline.Providers{
		Transcriber: m.transcriber,
		VoiceAuth:   m.voiceAuth,
		Ambience:    m.ambience,
		Diarizer:    m.diarizer,
		Emotion:     m.emotion,
	}
}

func mustOrchestrator(t *testing.T, p pipeline.Providers, cfg pipeline.Config) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.New(p, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// ---- construction -----------------------------------------------------------

func TestNew_MissingProvider_ReturnsError(t *testing.T) {
	p := newMocks().providers()
	p.Diarizer = nil
	if _, err := pipeline.New(p, pipeline.Config{}); err == nil {
		t.Fatal("expected error for missing provider, got nil")
	}
}

// ---- happy path -------------------------------------------------------------

func TestAnalyze_AllStagesSucceed(t *testing.T) {
	m := newMocks()
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if b.CallID != "call-1" || b.ChunkSequence != 0 {
		t.Errorf("bundle identity = %s/%d", b.CallID, b.ChunkSequence)
	}
	if b.Transcription == nil || b.Transcription.Text != "hello" {
		t.Error("missing transcription result")
	}
	if b.VoiceAuth == nil || b.Ambience == nil || b.Diarization == nil {
		t.Error("missing primary stage results")
	}
	if len(b.Emotions) != 1 {
		t.Fatalf("Emotions has %d segments, want 1", len(b.Emotions))
	}
	if b.Partial {
		t.Error("Partial = true on a fast chunk")
	}
	if err := b.Err(); err != nil {
		t.Errorf("Bundle.Err = %v, want nil", err)
	}

	for _, stage := range []string{
		pipeline.StageTranscribe, pipeline.StageVoiceAuth,
		pipeline.StageAmbience, pipeline.StageDiarize, pipeline.StageEmotion,
	} {
		r, ok := b.StageOutcome(stage)
		if !ok || !r.Success {
			t.Errorf("stage %s: ok=%v success=%v", stage, ok, r.Success)
		}
	}
}

func TestAnalyze_EmotionRunsOnSeparatedAudioOnly(t *testing.T) {
	m := newMocks()
	m.diarizer.Result = diarize.Result{
		Segments: []diarize.Segment{
			{Speaker: "SPEAKER_00", Start: 0, End: 400 * time.Millisecond},
			{Speaker: "SPEAKER_01", Start: 400 * time.Millisecond, End: 1000 * time.Millisecond},
		},
		SpeakerCount: 2,
	}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(b.Emotions) != 2 {
		t.Fatalf("Emotions has %d segments, want 2", len(b.Emotions))
	}

	// Each emotion call must receive one segment's slice, not the mixed
	// chunk.
	for _, call := range m.emotion.Calls {
		if call.Waveform.Duration() >= time.Second {
			t.Errorf("emotion analyzed %v of audio, want a per-segment slice", call.Waveform.Duration())
		}
	}
}

func TestAnalyze_EmotionCalledOncePerSegment(t *testing.T) {
	m := newMocks()
	m.diarizer.Result = diarize.Result{
		Segments: []diarize.Segment{
			{Speaker: "SPEAKER_00", Start: 0, End: 200 * time.Millisecond},
			{Speaker: "SPEAKER_01", Start: 200 * time.Millisecond, End: 500 * time.Millisecond},
			{Speaker: "SPEAKER_00", Start: 500 * time.Millisecond, End: 700 * time.Millisecond},
		},
		SpeakerCount: 2,
	}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// A speaker with two segments gets two analyses, never one call on their
	// concatenated audio.
	if got := m.emotion.CallCount(); got != 3 {
		t.Fatalf("emotion invocations: got %d, want one per segment (3)", got)
	}
	if len(b.Emotions) != 3 {
		t.Fatalf("Emotions has %d segments, want 3", len(b.Emotions))
	}

	spans := map[time.Duration]int{
		200 * time.Millisecond: 2,
		300 * time.Millisecond: 1,
	}
	for _, call := range m.emotion.Calls {
		d := call.Waveform.Duration()
		if spans[d] == 0 {
			t.Errorf("emotion input duration %v does not match any segment span", d)
			continue
		}
		spans[d]--
	}

	for _, se := range b.Emotions {
		if se.End <= se.Start {
			t.Errorf("segment %s [%v,%v): non-positive span", se.Speaker, se.Start, se.End)
		}
	}
}

func TestSpeakerEmotionsKeepsPeakStress(t *testing.T) {
	b := &pipeline.Bundle{
		Emotions: []pipeline.SegmentEmotion{
			{Speaker: "SPEAKER_00", Start: 0, End: 200 * time.Millisecond,
				Result: emotion.Result{TopEmotion: emotion.EmotionNeutral, StressLevel: 0.1}},
			{Speaker: "SPEAKER_00", Start: 500 * time.Millisecond, End: 700 * time.Millisecond,
				Result: emotion.Result{TopEmotion: emotion.EmotionFear, StressLevel: 0.9}},
			{Speaker: "SPEAKER_01", Start: 200 * time.Millisecond, End: 500 * time.Millisecond,
				Result: emotion.Result{TopEmotion: emotion.EmotionHappy, StressLevel: 0.0}},
		},
	}

	got := b.SpeakerEmotions()
	if len(got) != 2 {
		t.Fatalf("SpeakerEmotions has %d speakers, want 2", len(got))
	}
	if got["SPEAKER_00"].TopEmotion != emotion.EmotionFear {
		t.Errorf("SPEAKER_00: got %q, want the most stressed segment's %q",
			got["SPEAKER_00"].TopEmotion, emotion.EmotionFear)
	}
	if got["SPEAKER_01"].TopEmotion != emotion.EmotionHappy {
		t.Errorf("SPEAKER_01: got %q, want %q", got["SPEAKER_01"].TopEmotion, emotion.EmotionHappy)
	}
}

// ---- failure handling -------------------------------------------------------

func TestAnalyze_GarbageAudio_RejectsChunk(t *testing.T) {
	o := mustOrchestrator(t, newMocks().providers(), pipeline.Config{})

	chunk := types.AudioChunk{CallID: "c", Sequence: 0, Data: []byte("not audio"), Encoding: audio.EncodingWAV}
	_, err := o.Analyze(context.Background(), chunk)
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestAnalyze_SingleStageFailure_DoesNotAbortSiblings(t *testing.T) {
	m := newMocks()
	m.transcriber.Err = errors.New("whisper down")
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if b.Transcription != nil {
		t.Error("Transcription set despite stage failure")
	}
	if b.Transcript() != "" {
		t.Error("Transcript() should be empty after failure")
	}
	if b.VoiceAuth == nil || b.Ambience == nil || b.Diarization == nil {
		t.Error("sibling stages aborted by transcription failure")
	}
	r, _ := b.StageOutcome(pipeline.StageTranscribe)
	if r.Success {
		t.Error("failed stage recorded as success")
	}
	if err := b.Err(); err != nil {
		t.Errorf("Bundle.Err = %v, want nil with surviving stages", err)
	}
}

func TestAnalyze_AllStagesFail_BundleUnjudgeable(t *testing.T) {
	m := newMocks()
	down := errors.New("sidecar down")
	m.transcriber.Err = down
	m.voiceAuth.Err = down
	m.ambience.Err = down
	m.diarizer.Err = down
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !errors.Is(b.Err(), pipeline.ErrAllStagesFailed) {
		t.Fatalf("Bundle.Err = %v, want ErrAllStagesFailed", b.Err())
	}
}

func TestAnalyze_SilentChunk_ZeroSpeakers(t *testing.T) {
	m := newMocks()
	m.diarizer.Result = diarize.Result{}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(b.Emotions) != 0 {
		t.Error("Emotions present without diarized speakers")
	}
	if m.emotion.CallCount() != 0 {
		t.Error("emotion provider called without speakers")
	}
	r, ok := b.StageOutcome(pipeline.StageDiarize)
	if !ok || !r.Success {
		t.Error("zero-segment diarization must still count as success")
	}
}

func TestAnalyze_StageTimeout_Classified(t *testing.T) {
	m := newMocks()
	m.transcriber.Fn = func(ctx context.Context, w audio.Waveform) (transcribe.Result, error) {
		<-ctx.Done()
		return transcribe.Result{}, ctx.Err()
	}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{
		StageTimeouts: pipeline.StageTimeouts{Transcribe: 30 * time.Millisecond},
		ChunkDeadline: 5 * time.Second,
	})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	r, _ := b.StageOutcome(pipeline.StageTranscribe)
	if !errors.Is(r.Err, pipeline.ErrStageTimeout) {
		t.Errorf("stage err = %v, want ErrStageTimeout", r.Err)
	}
	if !r.TimedOut() {
		t.Error("TimedOut() = false for timed-out stage")
	}
	if b.Partial {
		t.Error("Partial = true when only a single stage timed out")
	}
}

func TestAnalyze_ChunkDeadline_PartialBundle(t *testing.T) {
	m := newMocks()
	m.diarizer.Fn = func(ctx context.Context, w audio.Waveform) (diarize.Result, error) {
		<-ctx.Done()
		return diarize.Result{}, ctx.Err()
	}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{
		ChunkDeadline: 50 * time.Millisecond,
	})

	b, err := o.Analyze(context.Background(), wavChunk("call-1", 0))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !b.Partial {
		t.Fatal("Partial = false after chunk deadline")
	}
	r, _ := b.StageOutcome(pipeline.StageDiarize)
	if !errors.Is(r.Err, pipeline.ErrChunkDeadline) {
		t.Errorf("stage err = %v, want ErrChunkDeadline", r.Err)
	}
	// Fast stages must still have their results in the partial bundle.
	if b.Transcription == nil {
		t.Error("fast stage result missing from partial bundle")
	}
}

func TestAnalyze_ChunksOfDifferentCallsDoNotBlock(t *testing.T) {
	m := newMocks()

	slowCall := "call-slow"
	release := make(chan struct{})
	m.transcriber.Fn = func(ctx context.Context, w audio.Waveform) (transcribe.Result, error) {
		// Stall only the slow call's chunks.
		if w.Duration() > 1500*time.Millisecond {
			select {
			case <-release:
			case <-ctx.Done():
				return transcribe.Result{}, ctx.Err()
			}
		}
		return transcribe.Result{Text: "ok"}, nil
	}
	o := mustOrchestrator(t, m.providers(), pipeline.Config{MaxInference: 16})

	slowWave := audio.Waveform{Samples: make([]int16, 2*audio.CanonicalRate), SampleRate: audio.CanonicalRate}
	slowChunk := types.AudioChunk{CallID: slowCall, Sequence: 0, Data: audio.EncodeWAV(slowWave), Encoding: audio.EncodingWAV}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = o.Analyze(context.Background(), slowChunk)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.Analyze(context.Background(), wavChunk("call-fast", 0)); err != nil {
			t.Errorf("fast call Analyze: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast call blocked behind slow call")
	}
	close(release)
	wg.Wait()
}
