package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetState_NoRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT zone_id, score, level, state`).
		WithArgs("zone-1").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetState(context.Background(), "zone-1")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetState_Scans(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"zone_id", "score", "level", "state", "last_verified_at", "last_intel_at",
		"verification_count", "intel_count_24h", "conflict_count",
		"hazard_active", "hazard_expires_at", "hazard_reason",
		"anomaly_detected", "anomaly_reason", "updated_at", "version",
	}).AddRow(
		"zone-1", 72.5, "MEDIUM", "ACTIVE", &now, &now,
		3, 1, 0,
		false, (*time.Time)(nil), "",
		false, (*string)(nil), now, int64(4),
	)

	mock.ExpectQuery(`SELECT zone_id, score, level, state`).
		WithArgs("zone-1").
		WillReturnRows(rows)

	st, err := s.GetState(context.Background(), "zone-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.InDelta(t, 72.5, st.Score, 0.001)
	assert.Equal(t, model.LevelMedium, st.Level)
	assert.Equal(t, model.StateActive, st.State)
	assert.Equal(t, 3, st.VerificationCount)
	assert.Equal(t, int64(4), st.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertState_InsertThenConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	state := &model.ZoneConfidenceState{
		ZoneID: "zone-1", Score: 59, Level: model.LevelMedium, State: model.StateActive,
		UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO zone_confidence`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertState(context.Background(), state))
	assert.Equal(t, int64(1), state.Version)

	// Losing the lazy-init race surfaces as a version conflict.
	fresh := &model.ZoneConfidenceState{
		ZoneID: "zone-1", Score: 55, Level: model.LevelMedium, State: model.StateActive,
		UpdatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO zone_confidence`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.UpsertState(context.Background(), fresh)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrVersionConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertState_StaleVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state := &model.ZoneConfidenceState{
		ZoneID: "zone-1", Score: 60, Level: model.LevelMedium, State: model.StateActive,
		UpdatedAt: time.Now().UTC(), Version: 7,
	}

	mock.ExpectExec(`UPDATE zone_confidence SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpsertState(context.Background(), state)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrVersionConflict))
	// Version stays stale so the caller knows to re-read.
	assert.Equal(t, int64(7), state.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertState_UpdateAdvancesVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state := &model.ZoneConfidenceState{
		ZoneID: "zone-1", Score: 60, Level: model.LevelMedium, State: model.StateActive,
		UpdatedAt: time.Now().UTC(), Version: 2,
	}

	mock.ExpectExec(`UPDATE zone_confidence SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpsertState(context.Background(), state))
	assert.Equal(t, int64(3), state.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountHazardReports(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT count\(\*\) FROM intel_submissions`).
		WithArgs("zone-1", string(model.IntelHazardReport), since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountHazardReports(context.Background(), "zone-1", since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetZone_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, centroid, created_at FROM zones`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetZone(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
