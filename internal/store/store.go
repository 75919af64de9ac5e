// Package store provides persistence for zones, intel submissions, and
// zone confidence state, with Postgres and SQLite drivers.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// Store sentinel errors, checked by callers via eris.Is.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrVersionConflict is returned by UpsertState when the state row
	// changed underneath the caller. Callers re-read and recompute; the
	// engine is idempotent so the whole computation retries safely.
	ErrVersionConflict = eris.New("store: version conflict")
)

// PriceBaseline is the running price average for one item in one zone.
type PriceBaseline struct {
	ZoneID       string
	Item         string
	AveragePrice float64
	SampleCount  int
	UpdatedAt    time.Time
}

// Store defines the persistence interface for the confidence engine's
// collaborators. Implementations must keep UpsertState atomic per zone
// so the per-zone serialization discipline holds.
type Store interface {
	// Zones
	CreateZone(ctx context.Context, zone model.Zone) error
	GetZone(ctx context.Context, zoneID string) (*model.Zone, error)
	ListZones(ctx context.Context, limit int) ([]model.Zone, error)
	ListZoneIDs(ctx context.Context) ([]string, error)

	// Intel submissions (append-only; the engine never mutates them)
	InsertSubmission(ctx context.Context, sub model.IntelSubmission) error
	SubmissionsSince(ctx context.Context, zoneID string, since time.Time) ([]model.IntelSubmission, error)
	CountHazardReports(ctx context.Context, zoneID string, since time.Time) (int, error)

	// Confidence state
	GetState(ctx context.Context, zoneID string) (*model.ZoneConfidenceState, error)
	UpsertState(ctx context.Context, state *model.ZoneConfidenceState) error
	ListStates(ctx context.Context, zoneIDs []string) (map[string]*model.ZoneConfidenceState, error)

	// Price baselines. GetPriceBaseline returns (nil, nil) when no
	// sample has ever been recorded for the item.
	GetPriceBaseline(ctx context.Context, zoneID, item string) (*PriceBaseline, error)
	RecordPrice(ctx context.Context, zoneID, item string, price float64, at time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
