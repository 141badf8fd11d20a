package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ringguard/ringguard/internal/contextcache"
	"github.com/ringguard/ringguard/internal/pipeline"
	"github.com/ringguard/ringguard/internal/resilience"
	"github.com/ringguard/ringguard/pkg/provider/reason"
	"github.com/ringguard/ringguard/pkg/types"
)

// ErrReasoningUnavailable marks a verdict produced without the LLM layer.
// It never escapes Judge; it exists so logs and metrics can identify the
// degradation cause.
var ErrReasoningUnavailable = errors.New("judge: reasoning stage unavailable")

const (
	// syntheticVoiceThreshold is the detector confidence above which a
	// synthetic voice counts as one high-severity indicator.
	syntheticVoiceThreshold = 0.75

	// defaultReasonTimeout bounds one reasoner call.
	defaultReasonTimeout = 20 * time.Second

	// reasonHistoryWindow is how many recent evidence summaries are handed
	// to the reasoner.
	reasonHistoryWindow = 8
)

// Config holds judge tuning knobs.
type Config struct {
	// HighSeverity and MediumSeverity override the default keyword lists.
	HighSeverity   []string
	MediumSeverity []string

	// ReasonTimeout bounds one reasoner call. Defaults to 20 s.
	ReasonTimeout time.Duration

	// Breaker configures the circuit breaker guarding the reasoner.
	Breaker resilience.CircuitBreakerConfig
}

// Judge computes risk verdicts. Safe for concurrent use; judgement of
// chunks belonging to the same call is serialized through the context
// cache's per-call lock.
type Judge struct {
	keywords atomic.Pointer[Keywords]
	reasoner reason.Provider
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	cache    *contextcache.Cache
}

// New creates a Judge. reasoner may be nil, in which case every verdict is
// deterministic-only and marked degraded.
func New(cache *contextcache.Cache, reasoner reason.Provider, cfg Config) (*Judge, error) {
	if cache == nil {
		return nil, errors.New("judge: cache must not be nil")
	}
	if cfg.ReasonTimeout <= 0 {
		cfg.ReasonTimeout = defaultReasonTimeout
	}
	cfg.Breaker.Name = "reasoner"
	j := &Judge{
		reasoner: reasoner,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker),
		timeout:  cfg.ReasonTimeout,
		cache:    cache,
	}
	j.keywords.Store(NewKeywords(cfg.HighSeverity, cfg.MediumSeverity))
	return j, nil
}

// SetKeywords replaces both keyword lists. In-flight judgements keep the
// lists they started with.
func (j *Judge) SetKeywords(high, medium []string) {
	j.keywords.Store(NewKeywords(high, medium))
}

// Judge scores one chunk bundle against the call's context and returns the
// verdict. The call's evidence history is read and appended under the
// per-call lock, so same-call chunks judged concurrently cannot lose
// updates; history grows in arrival order regardless of chunk sequence.
func (j *Judge) Judge(ctx context.Context, bundle *pipeline.Bundle) (types.RiskVerdict, error) {
	if err := bundle.Err(); err != nil {
		return types.RiskVerdict{}, fmt.Errorf("judge: chunk %d of call %s: %w", bundle.ChunkSequence, bundle.CallID, err)
	}

	var verdict types.RiskVerdict
	j.cache.Update(bundle.CallID, func(cc *types.CallContext) {
		verdict = j.judgeLocked(ctx, bundle, cc)
		cc.AppendHistory(summarize(verdict, bundle), j.cache.MaxHistory())
	})
	return verdict, nil
}

// judgeLocked runs both scoring layers. Called with the per-call lock held.
func (j *Judge) judgeLocked(ctx context.Context, bundle *pipeline.Bundle, cc *types.CallContext) types.RiskVerdict {
	matches := j.keywords.Load().Scan(bundle.Transcript())
	level, evidence := j.deterministic(bundle, matches)

	verdict := types.RiskVerdict{
		ID:            uuid.NewString(),
		CallID:        bundle.CallID,
		ChunkSequence: bundle.ChunkSequence,
		Level:         level,
		Evidence:      evidence,
		ScamType:      "none",
		ProducedAt:    time.Now(),
	}

	assessment, err := j.assess(ctx, bundle, matches, level, cc)
	if err != nil {
		verdict.Degraded = true
		verdict.RecommendedActions = defaultActions(level)
		slog.Warn("falling back to deterministic verdict",
			"call_id", bundle.CallID,
			"chunk_sequence", bundle.ChunkSequence,
			"error", err)
		return verdict
	}

	// The reasoner refines, it does not overrule: one step in either
	// direction keeps a hallucinated assessment from burying two keyword
	// hits or paging the receiver over nothing.
	verdict.Level = clampLevel(level, assessment.Level)
	verdict.ScamType = assessment.ScamType
	verdict.Rationale = assessment.Rationale
	verdict.Evidence = append(verdict.Evidence, assessment.RedFlags...)
	if assessment.RecommendedAction != "" {
		verdict.RecommendedActions = []string{assessment.RecommendedAction}
	} else {
		verdict.RecommendedActions = defaultActions(verdict.Level)
	}
	return verdict
}

// deterministic applies the fixed threshold table to keyword counts and the
// folded voice/background signals:
//
//	high   when high-severity count ≥ 2
//	medium when high-severity count ≥ 1 or medium-severity count ≥ 3
//	low    otherwise
func (j *Judge) deterministic(bundle *pipeline.Bundle, matches Matches) (types.RiskLevel, []string) {
	evidence := make([]string, 0, len(matches.High)+len(matches.Medium)+2)
	for _, kw := range matches.High {
		evidence = append(evidence, "keyword: "+kw)
	}
	for _, kw := range matches.Medium {
		evidence = append(evidence, "keyword: "+kw)
	}

	highCount := len(matches.High)
	mediumCount := len(matches.Medium)

	if bundle.VoiceAuth != nil && bundle.VoiceAuth.Confidence >= syntheticVoiceThreshold {
		highCount++
		evidence = append(evidence, fmt.Sprintf("synthetic voice (confidence %.2f)", bundle.VoiceAuth.Confidence))
	}
	if bundle.Ambience != nil && bundle.Ambience.Suspicious {
		mediumCount++
		evidence = append(evidence, fmt.Sprintf("suspicious background environment (score %.2f)", bundle.Ambience.SuspicionScore))
	}

	switch {
	case highCount >= 2:
		return types.RiskHigh, evidence
	case highCount >= 1 || mediumCount >= 3:
		return types.RiskMedium, evidence
	default:
		return types.RiskLow, evidence
	}
}

// assess runs the reasoner behind the circuit breaker. Any failure path
// maps to ErrReasoningUnavailable so the caller degrades uniformly.
func (j *Judge) assess(ctx context.Context, bundle *pipeline.Bundle, matches Matches, level types.RiskLevel, cc *types.CallContext) (reason.Assessment, error) {
	if j.reasoner == nil {
		return reason.Assessment{}, ErrReasoningUnavailable
	}

	req := reason.Request{
		CallID:             bundle.CallID,
		ChunkSequence:      bundle.ChunkSequence,
		DeterministicLevel: level,
		Signals:            buildSignals(bundle, matches),
		History:            cc.Recent(reasonHistoryWindow),
	}

	var assessment reason.Assessment
	err := j.breaker.Execute(func() error {
		rctx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()
		var aerr error
		assessment, aerr = j.reasoner.Assess(rctx, req)
		return aerr
	})
	if err != nil {
		return reason.Assessment{}, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	return assessment, nil
}

// buildSignals flattens the bundle into the reasoner's prompt inputs.
func buildSignals(bundle *pipeline.Bundle, matches Matches) reason.Signals {
	s := reason.Signals{
		Transcript:  bundle.Transcript(),
		Keywords:    matches.All(),
		KeywordRisk: matches.RiskScore,
	}
	if bundle.Transcription != nil {
		s.Language = bundle.Transcription.Language
	}
	if bundle.VoiceAuth != nil {
		s.SyntheticVoice = bundle.VoiceAuth.Synthetic()
		s.SyntheticConfidence = bundle.VoiceAuth.Confidence
	}
	if bundle.Ambience != nil {
		for _, tag := range bundle.Ambience.Tags {
			s.BackgroundTags = append(s.BackgroundTags, tag.Label)
		}
		s.BackgroundScore = bundle.Ambience.SuspicionScore
		s.BackgroundSuspicious = bundle.Ambience.Suspicious
	}
	if bundle.Diarization != nil {
		s.SpeakerCount = bundle.Diarization.SpeakerCount
	}
	if emotions := bundle.SpeakerEmotions(); len(emotions) > 0 {
		s.SpeakerEmotions = make(map[string]reason.SpeakerEmotion, len(emotions))
		for speaker, e := range emotions {
			s.SpeakerEmotions[speaker] = reason.SpeakerEmotion{
				TopEmotion:  e.TopEmotion,
				Confidence:  e.Confidence,
				StressLevel: e.StressLevel,
			}
		}
	}
	return s
}

// clampLevel limits the reasoner's proposed level to one step from the
// deterministic one.
func clampLevel(det, proposed types.RiskLevel) types.RiskLevel {
	switch {
	case proposed > det+1:
		return det + 1
	case det >= 1 && proposed < det-1:
		return det - 1
	default:
		return proposed
	}
}

// summarize condenses a verdict into the call-history entry the next
// chunk's reasoning will see.
func summarize(v types.RiskVerdict, bundle *pipeline.Bundle) types.EvidenceSummary {
	s := types.EvidenceSummary{
		ChunkSequence:     v.ChunkSequence,
		Level:             v.Level,
		Degraded:          v.Degraded,
		Indicators:        v.Evidence,
		TranscriptSnippet: types.Snippet(bundle.Transcript()),
		ScamType:          v.ScamType,
		JudgedAt:          v.ProducedAt,
	}
	if bundle.VoiceAuth != nil {
		s.SyntheticVoice = bundle.VoiceAuth.Confidence >= syntheticVoiceThreshold
	}
	return s
}

// defaultActions supplies receiver guidance when the reasoner offered none.
func defaultActions(level types.RiskLevel) []string {
	switch level {
	case types.RiskHigh:
		return []string{
			"Hang up immediately",
			"Do not share personal or financial information",
			"Report the call to your local fraud authority",
		}
	case types.RiskMedium:
		return []string{
			"Treat this call with caution",
			"Do not share sensitive information",
			"Verify the caller through an independent channel",
		}
	default:
		return nil
	}
}
