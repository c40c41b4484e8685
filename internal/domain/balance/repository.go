package balance

import (
	"context"
)

// SnapshotRepository stores derived fund snapshots. Implementations must
// tolerate a snapshot being dropped at any time; the projector rebuilds it
// from the journal log.
type SnapshotRepository interface {
	// GetSnapshot returns the stored snapshot for a fund, or an empty
	// snapshot (LastSeq 0) when none exists
	GetSnapshot(ctx context.Context, fundID string) (*FundSnapshot, error)

	// PutSnapshot stores a snapshot wholesale
	PutSnapshot(ctx context.Context, snap *FundSnapshot) error
}
