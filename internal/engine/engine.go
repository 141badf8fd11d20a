// Package engine wires the per-chunk flow end to end: analysis fan-out,
// two-layer judgement, receiver notification, and best-effort archival.
// It owns nothing itself; every stage lives in its own package and the
// engine only sequences them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ringguard/ringguard/internal/archive"
	"github.com/ringguard/ringguard/internal/contextcache"
	"github.com/ringguard/ringguard/internal/judge"
	"github.com/ringguard/ringguard/internal/pipeline"
	"github.com/ringguard/ringguard/internal/registry"
	"github.com/ringguard/ringguard/pkg/types"
)

// ErrUnknownCall is returned by CallSummary for calls without context.
var ErrUnknownCall = errors.New("engine: unknown call")

// archiveTimeout bounds one best-effort archive write. Verdict delivery
// never waits on the database.
const archiveTimeout = 5 * time.Second

// CallSummary is the review view of one active (or just-ended) call.
type CallSummary struct {
	CallID       string                  `json:"call_id"`
	ChunksJudged int                     `json:"chunks_judged"`
	HighestLevel types.RiskLevel         `json:"highest_level"`
	History      []types.EvidenceSummary `json:"history"`
	StartedAt    time.Time               `json:"started_at"`
	LastActivity time.Time               `json:"last_activity"`
}

// Engine sequences one chunk through analysis, judgement, notification, and
// archival. Safe for concurrent use; chunks of different calls proceed fully
// in parallel.
type Engine struct {
	orchestrator *pipeline.Orchestrator
	judge        *judge.Judge
	cache        *contextcache.Cache
	registry     *registry.Registry
	store        archive.Store

	archives sync.WaitGroup
}

// New assembles an Engine. store may be nil, which disables archival.
func New(orchestrator *pipeline.Orchestrator, j *judge.Judge, cache *contextcache.Cache, reg *registry.Registry, store archive.Store) (*Engine, error) {
	if orchestrator == nil || j == nil || cache == nil || reg == nil {
		return nil, errors.New("engine: orchestrator, judge, cache, and registry are required")
	}
	if store == nil {
		store = archive.Noop{}
	}
	return &Engine{
		orchestrator: orchestrator,
		judge:        j,
		cache:        cache,
		registry:     reg,
		store:        store,
	}, nil
}

// ProcessChunk runs one chunk end to end and returns its verdict. Analysis
// or judgement failure fails the chunk; notification and archival failures
// are logged and absorbed, because the verdict already exists and the next
// chunk must not be held back.
func (e *Engine) ProcessChunk(ctx context.Context, chunk types.AudioChunk) (types.RiskVerdict, error) {
	bundle, err := e.orchestrator.Analyze(ctx, chunk)
	if err != nil {
		return types.RiskVerdict{}, fmt.Errorf("engine: analyze: %w", err)
	}

	verdict, err := e.judge.Judge(ctx, bundle)
	if err != nil {
		return types.RiskVerdict{}, fmt.Errorf("engine: judge: %w", err)
	}

	slog.Info("chunk judged",
		"call_id", verdict.CallID,
		"chunk_sequence", verdict.ChunkSequence,
		"level", verdict.Level,
		"degraded", verdict.Degraded,
		"partial", bundle.Partial)

	if _, err := e.registry.Notify(ctx, verdict); err != nil {
		slog.Warn("receiver notification failed",
			"call_id", verdict.CallID,
			"error", err)
	}

	e.archives.Add(1)
	go e.archiveVerdict(verdict)
	return verdict, nil
}

// Close waits for in-flight archive writes so a shutdown does not drop the
// last verdicts.
func (e *Engine) Close() {
	e.archives.Wait()
}

// CallSummary returns the accumulated view of the call.
func (e *Engine) CallSummary(callID string) (CallSummary, error) {
	cc, err := e.cache.Get(callID)
	if err != nil {
		if errors.Is(err, contextcache.ErrContextNotFound) {
			return CallSummary{}, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
		}
		return CallSummary{}, err
	}
	return CallSummary{
		CallID:       cc.CallID,
		ChunksJudged: len(cc.History),
		HighestLevel: cc.HighestLevel(),
		History:      cc.History,
		StartedAt:    cc.CreatedAt,
		LastActivity: cc.LastUpdate,
	}, nil
}

// EndCall tears down all per-call state: context, notification routing. The
// archive keeps its verdicts; that is the point of it. Ending an unknown
// call is a no-op so clients may fire the signal unconditionally.
func (e *Engine) EndCall(callID string) {
	e.cache.Evict(callID)
	e.registry.UnregisterCall(callID)
	slog.Info("call ended", "call_id", callID)
}

func (e *Engine) archiveVerdict(v types.RiskVerdict) {
	defer e.archives.Done()
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := e.store.SaveVerdict(ctx, v); err != nil {
		slog.Warn("verdict archival failed",
			"verdict_id", v.ID,
			"call_id", v.CallID,
			"error", err)
	}
}
