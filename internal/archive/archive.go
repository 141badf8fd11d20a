// Package archive persists finished verdicts for after-the-fact review.
// Archival is best-effort and off the hot path: a chunk's verdict reaches
// the receiver whether or not the archive accepts the write.
package archive

import (
	"context"

	"github.com/ringguard/ringguard/pkg/types"
)

// Store persists verdicts. Implementations must be safe for concurrent use.
type Store interface {
	// SaveVerdict records one verdict.
	SaveVerdict(ctx context.Context, v types.RiskVerdict) error

	// VerdictsByCall returns every stored verdict of the call in the order
	// they were produced.
	VerdictsByCall(ctx context.Context, callID string) ([]types.RiskVerdict, error)

	// Close releases underlying resources.
	Close()
}

// Noop discards every write. Used when no database is configured.
type Noop struct{}

var _ Store = Noop{}

func (Noop) SaveVerdict(context.Context, types.RiskVerdict) error { return nil }

func (Noop) VerdictsByCall(context.Context, string) ([]types.RiskVerdict, error) {
	return nil, nil
}

func (Noop) Close() {}
