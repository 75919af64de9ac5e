package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	centroid   BLOB,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS intel_submissions (
	id           TEXT PRIMARY KEY,
	zone_id      TEXT NOT NULL REFERENCES zones(id),
	submitter_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	payload      TEXT,
	trust_weight REAL NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_confidence (
	zone_id            TEXT PRIMARY KEY REFERENCES zones(id),
	score              REAL NOT NULL,
	level              TEXT NOT NULL,
	state              TEXT NOT NULL,
	last_verified_at   DATETIME,
	last_intel_at      DATETIME,
	verification_count INTEGER NOT NULL DEFAULT 0,
	intel_count_24h    INTEGER NOT NULL DEFAULT 0,
	conflict_count     INTEGER NOT NULL DEFAULT 0,
	hazard_active      INTEGER NOT NULL DEFAULT 0,
	hazard_expires_at  DATETIME,
	hazard_reason      TEXT NOT NULL DEFAULT '',
	anomaly_detected   INTEGER NOT NULL DEFAULT 0,
	anomaly_reason     TEXT,
	updated_at         DATETIME NOT NULL,
	version            INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS price_baselines (
	zone_id      TEXT NOT NULL REFERENCES zones(id),
	item         TEXT NOT NULL,
	avg_price    REAL NOT NULL,
	sample_count INTEGER NOT NULL,
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (zone_id, item)
);

CREATE INDEX IF NOT EXISTS idx_intel_zone_created ON intel_submissions(zone_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_intel_zone_type_created ON intel_submissions(zone_id, type, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateZone(ctx context.Context, zone model.Zone) error {
	centroid, err := encodeCentroid(zone.Centroid)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO zones (id, name, centroid, created_at) VALUES (?, ?, ?, ?)`,
		zone.ID, zone.Name, centroid, zone.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert zone %s", zone.ID)
}

func (s *SQLiteStore) GetZone(ctx context.Context, zoneID string) (*model.Zone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, centroid, created_at FROM zones WHERE id = ?`, zoneID)

	var z model.Zone
	var centroid []byte
	if err := row.Scan(&z.ID, &z.Name, &centroid, &z.CreatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "zone %s", zoneID)
		}
		return nil, eris.Wrapf(err, "sqlite: get zone %s", zoneID)
	}
	pt, err := decodeCentroid(centroid)
	if err != nil {
		return nil, err
	}
	z.Centroid = pt
	return &z, nil
}

func (s *SQLiteStore) ListZones(ctx context.Context, limit int) ([]model.Zone, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, centroid, created_at FROM zones ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var centroid []byte
		if err := rows.Scan(&z.ID, &z.Name, &centroid, &z.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		pt, err := decodeCentroid(centroid)
		if err != nil {
			return nil, err
		}
		z.Centroid = pt
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "sqlite: iterate zones")
}

func (s *SQLiteStore) ListZoneIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM zones ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zone ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate zone ids")
}

func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub model.IntelSubmission) error {
	var payload any
	if len(sub.Payload) > 0 {
		payload = string(sub.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intel_submissions (id, zone_id, submitter_id, type, payload, trust_weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ZoneID, sub.SubmitterID, string(sub.Type), payload, sub.TrustWeight, sub.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
}

func (s *SQLiteStore) SubmissionsSince(ctx context.Context, zoneID string, since time.Time) ([]model.IntelSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, zone_id, submitter_id, type, payload, trust_weight, created_at
		 FROM intel_submissions
		 WHERE zone_id = ? AND created_at >= ?
		 ORDER BY created_at DESC`,
		zoneID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: submissions for zone %s", zoneID)
	}
	defer rows.Close()

	var subs []model.IntelSubmission
	for rows.Next() {
		var sub model.IntelSubmission
		var intelType string
		var payload sql.NullString
		if err := rows.Scan(&sub.ID, &sub.ZoneID, &sub.SubmitterID, &intelType, &payload, &sub.TrustWeight, &sub.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		sub.Type = model.IntelType(intelType)
		if payload.Valid {
			sub.Payload = []byte(payload.String)
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

func (s *SQLiteStore) CountHazardReports(ctx context.Context, zoneID string, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM intel_submissions WHERE zone_id = ? AND type = ? AND created_at >= ?`,
		zoneID, string(model.IntelHazardReport), since.UTC(),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count hazard reports for zone %s", zoneID)
	}
	return n, nil
}

func (s *SQLiteStore) GetState(ctx context.Context, zoneID string) (*model.ZoneConfidenceState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT zone_id, score, level, state, last_verified_at, last_intel_at,
		        verification_count, intel_count_24h, conflict_count,
		        hazard_active, hazard_expires_at, hazard_reason,
		        anomaly_detected, anomaly_reason, updated_at, version
		 FROM zone_confidence WHERE zone_id = ?`, zoneID)

	st, err := scanSQLiteState(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get state for zone %s", zoneID)
	}
	return st, nil
}

func (s *SQLiteStore) UpsertState(ctx context.Context, state *model.ZoneConfidenceState) error {
	if state.Version == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO zone_confidence (zone_id, score, level, state, last_verified_at, last_intel_at,
			     verification_count, intel_count_24h, conflict_count,
			     hazard_active, hazard_expires_at, hazard_reason,
			     anomaly_detected, anomaly_reason, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			state.ZoneID, state.Score, string(state.Level), string(state.State),
			nullTime(state.LastVerifiedAt), nullTime(state.LastIntelAt),
			state.VerificationCount, state.IntelCount24h, state.ConflictCount,
			state.HazardActive, nullTime(state.HazardExpiresAt), state.HazardReason,
			state.AnomalyDetected, state.AnomalyReason, state.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert state for zone %s", state.ZoneID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return eris.Wrapf(ErrVersionConflict, "zone %s created concurrently", state.ZoneID)
		}
		state.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE zone_confidence SET
		     score = ?, level = ?, state = ?, last_verified_at = ?, last_intel_at = ?,
		     verification_count = ?, intel_count_24h = ?, conflict_count = ?,
		     hazard_active = ?, hazard_expires_at = ?, hazard_reason = ?,
		     anomaly_detected = ?, anomaly_reason = ?, updated_at = ?, version = version + 1
		 WHERE zone_id = ? AND version = ?`,
		state.Score, string(state.Level), string(state.State),
		nullTime(state.LastVerifiedAt), nullTime(state.LastIntelAt),
		state.VerificationCount, state.IntelCount24h, state.ConflictCount,
		state.HazardActive, nullTime(state.HazardExpiresAt), state.HazardReason,
		state.AnomalyDetected, state.AnomalyReason, state.UpdatedAt.UTC(),
		state.ZoneID, state.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update state for zone %s", state.ZoneID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrVersionConflict, "zone %s version %d", state.ZoneID, state.Version)
	}
	state.Version++
	return nil
}

func (s *SQLiteStore) ListStates(ctx context.Context, zoneIDs []string) (map[string]*model.ZoneConfidenceState, error) {
	states := make(map[string]*model.ZoneConfidenceState, len(zoneIDs))
	for _, id := range zoneIDs {
		st, err := s.GetState(ctx, id)
		if err != nil {
			return nil, err
		}
		if st != nil {
			states[id] = st
		}
	}
	return states, nil
}

func (s *SQLiteStore) GetPriceBaseline(ctx context.Context, zoneID, item string) (*PriceBaseline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT zone_id, item, avg_price, sample_count, updated_at
		 FROM price_baselines WHERE zone_id = ? AND item = ?`, zoneID, item)

	var b PriceBaseline
	if err := row.Scan(&b.ZoneID, &b.Item, &b.AveragePrice, &b.SampleCount, &b.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: baseline for zone %s item %s", zoneID, item)
	}
	return &b, nil
}

func (s *SQLiteStore) RecordPrice(ctx context.Context, zoneID, item string, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_baselines (zone_id, item, avg_price, sample_count, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (zone_id, item) DO UPDATE SET
		     avg_price = (avg_price * sample_count + excluded.avg_price) / (sample_count + 1),
		     sample_count = sample_count + 1,
		     updated_at = excluded.updated_at`,
		zoneID, item, price, at.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record price for zone %s item %s", zoneID, item)
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanState sharing.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteState(row rowScanner) (*model.ZoneConfidenceState, error) {
	var st model.ZoneConfidenceState
	var level, zoneState string
	var lastVerified, lastIntel, hazardExpires sql.NullTime
	var anomalyReason sql.NullString
	err := row.Scan(
		&st.ZoneID, &st.Score, &level, &zoneState,
		&lastVerified, &lastIntel,
		&st.VerificationCount, &st.IntelCount24h, &st.ConflictCount,
		&st.HazardActive, &hazardExpires, &st.HazardReason,
		&st.AnomalyDetected, &anomalyReason, &st.UpdatedAt, &st.Version,
	)
	if err != nil {
		return nil, err
	}
	st.Level = model.ConfidenceLevel(level)
	st.State = model.ZoneState(zoneState)
	if lastVerified.Valid {
		t := lastVerified.Time
		st.LastVerifiedAt = &t
	}
	if lastIntel.Valid {
		t := lastIntel.Time
		st.LastIntelAt = &t
	}
	if hazardExpires.Valid {
		t := hazardExpires.Time
		st.HazardExpiresAt = &t
	}
	if anomalyReason.Valid {
		r := anomalyReason.String
		st.AnomalyReason = &r
	}
	return &st, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
