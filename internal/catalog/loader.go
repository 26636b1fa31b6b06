package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neexbeast/journey-search/internal/journey"
	"github.com/neexbeast/journey-search/internal/storage"
)

// Source produces the full flight catalog. *Fetcher satisfies it.
type Source interface {
	Fetch(ctx context.Context) ([]journey.FlightLeg, error)
}

// SnapshotStore persists catalog snapshots. *storage.Repository satisfies it.
type SnapshotStore interface {
	ReplaceLegs(ctx context.Context, legs []journey.FlightLeg) (*storage.Snapshot, error)
	ListLegs(ctx context.Context, from, to journey.Date) ([]journey.FlightLeg, error)
	LatestSnapshot(ctx context.Context) (*storage.Snapshot, error)
}

// Loader serves flight legs from the remote feed, falling back to the last
// stored snapshot when the feed is unavailable.
//
// Searches never write to the store. A snapshot only exists once Refresh has
// run (POST /api/v1/catalog/refresh); until then a feed outage fails the
// search with ErrUnavailable.
type Loader struct {
	remote Source
	store  SnapshotStore
	log    *slog.Logger
}

// NewLoader constructs a Loader.
func NewLoader(remote Source, store SnapshotStore, log *slog.Logger) *Loader {
	return &Loader{remote: remote, store: store, log: log}
}

// Legs returns the catalog legs relevant to a search on date: the legs
// departing on date or the following day. Filtering of remote legs is left
// to the engine; stored legs are narrowed in the query. A successful remote
// fetch is returned as is and not persisted.
func (l *Loader) Legs(ctx context.Context, date journey.Date) ([]journey.FlightLeg, error) {
	legs, err := l.remote.Fetch(ctx)
	if err == nil {
		return legs, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	snap, storeErr := l.store.LatestSnapshot(ctx)
	if storeErr != nil {
		l.log.Error("loading snapshot after feed failure", "err", storeErr)
		return nil, err
	}
	if snap == nil {
		return nil, err
	}

	stored, storeErr := l.store.ListLegs(ctx, date, date.Next())
	if storeErr != nil {
		l.log.Error("listing stored legs", "snapshot", snap.ID, "date", date, "err", storeErr)
		return nil, err
	}

	l.log.Warn("catalog feed unavailable, serving stored snapshot",
		"snapshot", snap.ID, "created_at", snap.CreatedAt, "legs", len(stored), "date", date)
	return stored, nil
}

// Refresh downloads the catalog and stores it as the new snapshot.
func (l *Loader) Refresh(ctx context.Context) (*storage.Snapshot, error) {
	legs, err := l.remote.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := l.store.ReplaceLegs(ctx, legs)
	if err != nil {
		return nil, fmt.Errorf("storing catalog snapshot: %w", err)
	}

	l.log.Info("catalog snapshot stored", "snapshot", snap.ID, "legs", snap.LegCount)
	return snap, nil
}

// Latest returns the metadata of the stored snapshot, or nil if none exists.
func (l *Loader) Latest(ctx context.Context) (*storage.Snapshot, error) {
	return l.store.LatestSnapshot(ctx)
}
