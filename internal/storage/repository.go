package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/journey-search/internal/journey"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is a Querier that can also open transactions. *pgxpool.Pool satisfies it.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Snapshot describes one stored copy of the flight catalog.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	LegCount  int       `json:"leg_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores the most recent catalog snapshot in Postgres.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// NewRepositoryWithDB constructs a Repository with a custom DB (for tests).
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

var legColumns = []string{
	"snapshot_id",
	"position",
	"flight_number",
	"departure_city",
	"arrival_city",
	"departure_at",
	"arrival_at",
}

// ReplaceLegs records a new snapshot and swaps the stored legs for legs, all
// in one transaction. Leg order is preserved through the position column.
func (r *Repository) ReplaceLegs(ctx context.Context, legs []journey.FlightLeg) (*Snapshot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	snap := Snapshot{ID: uuid.New(), LegCount: len(legs)}

	const insertSnapshot = `
		INSERT INTO catalog_snapshots (id, leg_count)
		VALUES ($1, $2)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insertSnapshot, snap.ID, snap.LegCount).Scan(&snap.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting snapshot %s: %w", snap.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM flight_legs`); err != nil {
		return nil, fmt.Errorf("clearing previous legs: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"flight_legs"}, legColumns,
		pgx.CopyFromSlice(len(legs), func(i int) ([]any, error) {
			l := legs[i]
			return []any{snap.ID, i, l.FlightNumber, l.DepartureCity, l.ArrivalCity, l.DepartureTime, l.ArrivalTime}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("copying legs for snapshot %s: %w", snap.ID, err)
	}
	if copied != int64(len(legs)) {
		return nil, fmt.Errorf("copying legs for snapshot %s: wrote %d of %d rows", snap.ID, copied, len(legs))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing snapshot %s: %w", snap.ID, err)
	}

	return &snap, nil
}

// ListLegs returns the stored legs departing on any UTC calendar date in
// [from, to], in catalog order.
func (r *Repository) ListLegs(ctx context.Context, from, to journey.Date) ([]journey.FlightLeg, error) {
	const q = `
		SELECT flight_number, departure_city, arrival_city, departure_at, arrival_at
		FROM flight_legs
		WHERE departure_at >= $1
		AND departure_at < $2
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, q, from.Time(), to.Next().Time())
	if err != nil {
		return nil, fmt.Errorf("querying legs from %s to %s: %w", from, to, err)
	}
	defer rows.Close()

	var legs []journey.FlightLeg
	for rows.Next() {
		var (
			number, departure, arrival string
			departureAt, arrivalAt     time.Time
		)
		if err := rows.Scan(&number, &departure, &arrival, &departureAt, &arrivalAt); err != nil {
			return nil, fmt.Errorf("scanning leg row: %w", err)
		}

		l, err := journey.NewFlightLeg(number, departure, arrival, departureAt, arrivalAt)
		if err != nil {
			return nil, fmt.Errorf("loading stored leg: %w", err)
		}
		legs = append(legs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leg rows: %w", err)
	}

	return legs, nil
}

// LatestSnapshot returns the most recent snapshot, or nil, nil when the
// catalog has never been stored.
func (r *Repository) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	const q = `
		SELECT id, leg_count, created_at
		FROM catalog_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`

	var s Snapshot
	if err := r.db.QueryRow(ctx, q).Scan(&s.ID, &s.LegCount, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	return &s, nil
}
