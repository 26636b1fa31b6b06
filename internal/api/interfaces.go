package api

import (
	"context"

	"github.com/neexbeast/journey-search/internal/journey"
	"github.com/neexbeast/journey-search/internal/storage"
)

// CatalogLoader defines the catalog operations needed by handlers.
type CatalogLoader interface {
	Legs(ctx context.Context, date journey.Date) ([]journey.FlightLeg, error)
	Refresh(ctx context.Context) (*storage.Snapshot, error)
	Latest(ctx context.Context) (*storage.Snapshot, error)
}

// JourneyCache defines the result cache operations needed by handlers.
type JourneyCache interface {
	Get(ctx context.Context, q journey.Query) ([]journey.Journey, bool, error)
	Set(ctx context.Context, q journey.Query, journeys []journey.Journey) error
	Purge(ctx context.Context) (int, error)
}
