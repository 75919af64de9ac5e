package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/unmappedos-sys/unmappedos/internal/db"
	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	centroid   BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS intel_submissions (
	id           TEXT PRIMARY KEY,
	zone_id      TEXT NOT NULL REFERENCES zones(id),
	submitter_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	payload      JSONB,
	trust_weight DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_confidence (
	zone_id            TEXT PRIMARY KEY REFERENCES zones(id),
	score              DOUBLE PRECISION NOT NULL,
	level              TEXT NOT NULL,
	state              TEXT NOT NULL,
	last_verified_at   TIMESTAMPTZ,
	last_intel_at      TIMESTAMPTZ,
	verification_count INTEGER NOT NULL DEFAULT 0,
	intel_count_24h    INTEGER NOT NULL DEFAULT 0,
	conflict_count     INTEGER NOT NULL DEFAULT 0,
	hazard_active      BOOLEAN NOT NULL DEFAULT false,
	hazard_expires_at  TIMESTAMPTZ,
	hazard_reason      TEXT NOT NULL DEFAULT '',
	anomaly_detected   BOOLEAN NOT NULL DEFAULT false,
	anomaly_reason     TEXT,
	updated_at         TIMESTAMPTZ NOT NULL,
	version            BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS price_baselines (
	zone_id      TEXT NOT NULL REFERENCES zones(id),
	item         TEXT NOT NULL,
	avg_price    DOUBLE PRECISION NOT NULL,
	sample_count INTEGER NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (zone_id, item)
);

CREATE INDEX IF NOT EXISTS idx_intel_zone_created ON intel_submissions(zone_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_intel_zone_type_created ON intel_submissions(zone_id, type, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateZone(ctx context.Context, zone model.Zone) error {
	centroid, err := encodeCentroid(zone.Centroid)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO zones (id, name, centroid, created_at) VALUES ($1, $2, $3, $4)`,
		zone.ID, zone.Name, centroid, zone.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert zone %s", zone.ID)
}

func (s *PostgresStore) GetZone(ctx context.Context, zoneID string) (*model.Zone, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, centroid, created_at FROM zones WHERE id = $1`, zoneID)

	var z model.Zone
	var centroid []byte
	if err := row.Scan(&z.ID, &z.Name, &centroid, &z.CreatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "zone %s", zoneID)
		}
		return nil, eris.Wrapf(err, "postgres: get zone %s", zoneID)
	}
	pt, err := decodeCentroid(centroid)
	if err != nil {
		return nil, err
	}
	z.Centroid = pt
	return &z, nil
}

func (s *PostgresStore) ListZones(ctx context.Context, limit int) ([]model.Zone, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, centroid, created_at FROM zones ORDER BY name LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var centroid []byte
		if err := rows.Scan(&z.ID, &z.Name, &centroid, &z.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		pt, err := decodeCentroid(centroid)
		if err != nil {
			return nil, err
		}
		z.Centroid = pt
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "postgres: iterate zones")
}

func (s *PostgresStore) ListZoneIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM zones ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zone ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate zone ids")
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, sub model.IntelSubmission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO intel_submissions (id, zone_id, submitter_id, type, payload, trust_weight, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.ZoneID, sub.SubmitterID, string(sub.Type), []byte(sub.Payload), sub.TrustWeight, sub.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
}

func (s *PostgresStore) SubmissionsSince(ctx context.Context, zoneID string, since time.Time) ([]model.IntelSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, zone_id, submitter_id, type, payload, trust_weight, created_at
		 FROM intel_submissions
		 WHERE zone_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		zoneID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: submissions for zone %s", zoneID)
	}
	defer rows.Close()

	var subs []model.IntelSubmission
	for rows.Next() {
		var sub model.IntelSubmission
		var intelType string
		var payload []byte
		if err := rows.Scan(&sub.ID, &sub.ZoneID, &sub.SubmitterID, &intelType, &payload, &sub.TrustWeight, &sub.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		sub.Type = model.IntelType(intelType)
		sub.Payload = payload
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}

func (s *PostgresStore) CountHazardReports(ctx context.Context, zoneID string, since time.Time) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM intel_submissions WHERE zone_id = $1 AND type = $2 AND created_at >= $3`,
		zoneID, string(model.IntelHazardReport), since.UTC(),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count hazard reports for zone %s", zoneID)
	}
	return n, nil
}

// GetState returns the confidence state for a zone, or (nil, nil) when
// the zone has never received intel. Callers treat the nil state as the
// lazy-init trigger.
func (s *PostgresStore) GetState(ctx context.Context, zoneID string) (*model.ZoneConfidenceState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT zone_id, score, level, state, last_verified_at, last_intel_at,
		        verification_count, intel_count_24h, conflict_count,
		        hazard_active, hazard_expires_at, hazard_reason,
		        anomaly_detected, anomaly_reason, updated_at, version
		 FROM zone_confidence WHERE zone_id = $1`, zoneID)

	st, err := scanState(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get state for zone %s", zoneID)
	}
	return st, nil
}

// UpsertState persists a state record with optimistic concurrency. A
// record with Version 0 is inserted; any other version must match the
// stored row or ErrVersionConflict is returned. On success the state's
// Version is advanced in place.
func (s *PostgresStore) UpsertState(ctx context.Context, state *model.ZoneConfidenceState) error {
	if state.Version == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO zone_confidence (zone_id, score, level, state, last_verified_at, last_intel_at,
			     verification_count, intel_count_24h, conflict_count,
			     hazard_active, hazard_expires_at, hazard_reason,
			     anomaly_detected, anomaly_reason, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
			 ON CONFLICT (zone_id) DO NOTHING`,
			state.ZoneID, state.Score, string(state.Level), string(state.State),
			state.LastVerifiedAt, state.LastIntelAt,
			state.VerificationCount, state.IntelCount24h, state.ConflictCount,
			state.HazardActive, state.HazardExpiresAt, state.HazardReason,
			state.AnomalyDetected, state.AnomalyReason, state.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert state for zone %s", state.ZoneID)
		}
		if tag.RowsAffected() == 0 {
			// Someone created the row first. Caller re-reads and retries.
			return eris.Wrapf(ErrVersionConflict, "zone %s created concurrently", state.ZoneID)
		}
		state.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE zone_confidence SET
		     score = $1, level = $2, state = $3, last_verified_at = $4, last_intel_at = $5,
		     verification_count = $6, intel_count_24h = $7, conflict_count = $8,
		     hazard_active = $9, hazard_expires_at = $10, hazard_reason = $11,
		     anomaly_detected = $12, anomaly_reason = $13, updated_at = $14, version = version + 1
		 WHERE zone_id = $15 AND version = $16`,
		state.Score, string(state.Level), string(state.State),
		state.LastVerifiedAt, state.LastIntelAt,
		state.VerificationCount, state.IntelCount24h, state.ConflictCount,
		state.HazardActive, state.HazardExpiresAt, state.HazardReason,
		state.AnomalyDetected, state.AnomalyReason, state.UpdatedAt.UTC(),
		state.ZoneID, state.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update state for zone %s", state.ZoneID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrVersionConflict, "zone %s version %d", state.ZoneID, state.Version)
	}
	state.Version++
	return nil
}

func (s *PostgresStore) ListStates(ctx context.Context, zoneIDs []string) (map[string]*model.ZoneConfidenceState, error) {
	if len(zoneIDs) == 0 {
		return map[string]*model.ZoneConfidenceState{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT zone_id, score, level, state, last_verified_at, last_intel_at,
		        verification_count, intel_count_24h, conflict_count,
		        hazard_active, hazard_expires_at, hazard_reason,
		        anomaly_detected, anomaly_reason, updated_at, version
		 FROM zone_confidence WHERE zone_id = ANY($1)`, zoneIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list states")
	}
	defer rows.Close()

	states := make(map[string]*model.ZoneConfidenceState, len(zoneIDs))
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan state")
		}
		states[st.ZoneID] = st
	}
	return states, eris.Wrap(rows.Err(), "postgres: iterate states")
}

func (s *PostgresStore) GetPriceBaseline(ctx context.Context, zoneID, item string) (*PriceBaseline, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT zone_id, item, avg_price, sample_count, updated_at
		 FROM price_baselines WHERE zone_id = $1 AND item = $2`, zoneID, item)

	var b PriceBaseline
	if err := row.Scan(&b.ZoneID, &b.Item, &b.AveragePrice, &b.SampleCount, &b.UpdatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: baseline for zone %s item %s", zoneID, item)
	}
	return &b, nil
}

func (s *PostgresStore) RecordPrice(ctx context.Context, zoneID, item string, price float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_baselines (zone_id, item, avg_price, sample_count, updated_at)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (zone_id, item) DO UPDATE SET
		     avg_price = (price_baselines.avg_price * price_baselines.sample_count + EXCLUDED.avg_price)
		                 / (price_baselines.sample_count + 1),
		     sample_count = price_baselines.sample_count + 1,
		     updated_at = EXCLUDED.updated_at`,
		zoneID, item, price, at.UTC(),
	)
	return eris.Wrapf(err, "postgres: record price for zone %s item %s", zoneID, item)
}

func scanState(row pgx.Row) (*model.ZoneConfidenceState, error) {
	var st model.ZoneConfidenceState
	var level, zoneState string
	err := row.Scan(
		&st.ZoneID, &st.Score, &level, &zoneState,
		&st.LastVerifiedAt, &st.LastIntelAt,
		&st.VerificationCount, &st.IntelCount24h, &st.ConflictCount,
		&st.HazardActive, &st.HazardExpiresAt, &st.HazardReason,
		&st.AnomalyDetected, &st.AnomalyReason, &st.UpdatedAt, &st.Version,
	)
	if err != nil {
		return nil, err
	}
	st.Level = model.ConfidenceLevel(level)
	st.State = model.ZoneState(zoneState)
	return &st, nil
}
