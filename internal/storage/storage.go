package storage

import (
	"context"

	"liquidityStake/internal/model"
)

// Journal is a sink for committed ledger events and rejected operations.
type Journal interface {
	AppendEvents(ctx context.Context, events []model.LedgerEvent) error
	AppendFailures(ctx context.Context, failures []model.OpFailure) error
}

// SnapshotStore persists full engine snapshots.
type SnapshotStore interface {
	Load(ctx context.Context) (model.Snapshot, bool, error)
	Save(ctx context.Context, snap model.Snapshot) error
}
