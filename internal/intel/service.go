// Package intel accepts crowd reports and drives the confidence engine:
// it validates submissions, fixes trust weights, persists the report,
// and recomputes the zone's confidence state under the per-zone
// serialization discipline.
package intel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/unmappedos-sys/unmappedos/internal/confidence"
	"github.com/unmappedos-sys/unmappedos/internal/model"
	"github.com/unmappedos-sys/unmappedos/internal/resilience"
	"github.com/unmappedos-sys/unmappedos/internal/store"
)

// ErrInvalidSubmission marks client-side validation failures. Handlers
// map it to a 400 rather than a 500.
var ErrInvalidSubmission = eris.New("intel: invalid submission")

// Service coordinates intel ingestion and confidence updates. All
// writes to a zone's confidence state go through its keyed mutex plus
// the store's version column, so concurrent updates for the same zone
// serialize instead of clobbering each other.
type Service struct {
	store store.Store
	cfg   confidence.EngineConfig
	retry resilience.RetryConfig
	locks *zoneLocks
	now   func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the service clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetryConfig overrides the optimistic-concurrency retry policy.
func WithRetryConfig(rc resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = rc }
}

// NewService builds an intel Service on top of a Store.
func NewService(st store.Store, cfg confidence.EngineConfig, opts ...Option) *Service {
	s := &Service{
		store: st,
		cfg:   cfg,
		retry: resilience.DefaultRetryConfig(),
		locks: newZoneLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest is one incoming crowd report. Karma is the submitter's
// reputation at submission time; the service converts it to a trust
// weight that is fixed onto the stored submission.
type SubmitRequest struct {
	ZoneID      string          `json:"zone_id"`
	SubmitterID string          `json:"submitter_id"`
	Type        model.IntelType `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Karma       int             `json:"karma"`
}

// SubmitResult reports the stored submission plus the zone's
// recomputed confidence state and the per-factor breakdown.
type SubmitResult struct {
	Submission model.IntelSubmission     `json:"submission"`
	State      model.ZoneConfidenceState `json:"state"`
	Factors    model.ConfidenceFactors   `json:"factors"`
}

// Submit validates and persists one crowd report, then recomputes the
// zone's confidence state. The submission is durable even if the state
// update loses every retry; the next update or sweep folds it in.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetZone(ctx, req.ZoneID); err != nil {
		return nil, eris.Wrapf(err, "intel: submit to zone %s", req.ZoneID)
	}

	now := s.now().UTC()
	sub := model.IntelSubmission{
		ID:          uuid.NewString(),
		ZoneID:      req.ZoneID,
		SubmitterID: req.SubmitterID,
		Type:        req.Type,
		Payload:     req.Payload,
		TrustWeight: confidence.TrustWeight(req.Karma, s.cfg),
		CreatedAt:   now,
	}

	release := s.locks.acquire(req.ZoneID)
	defer release()

	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return nil, eris.Wrapf(err, "intel: persist submission %s", sub.ID)
	}

	var (
		state   model.ZoneConfidenceState
		factors model.ConfidenceFactors
	)
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		state, factors, err = s.recompute(ctx, req.ZoneID, &sub, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if sub.Type == model.IntelPriceSubmission {
		var p model.PricePayload
		if jsonErr := json.Unmarshal(sub.Payload, &p); jsonErr == nil {
			if err := s.store.RecordPrice(ctx, sub.ZoneID, p.Item, p.Price, now); err != nil {
				// The baseline is advisory; losing one sample only delays
				// anomaly detection, so the submission still succeeds.
				zap.L().Warn("intel: record price baseline failed",
					zap.String("zone_id", sub.ZoneID),
					zap.String("item", p.Item),
					zap.Error(err),
				)
			}
		}
	}

	zap.L().Info("intel accepted",
		zap.String("zone_id", sub.ZoneID),
		zap.String("submission_id", sub.ID),
		zap.String("type", string(sub.Type)),
		zap.Float64("trust_weight", sub.TrustWeight),
		zap.Float64("score", state.Score),
		zap.String("level", string(state.Level)),
		zap.String("state", string(state.State)),
	)

	return &SubmitResult{Submission: sub, State: state, Factors: factors}, nil
}

// ScoreZone recomputes a zone's confidence state with no new
// submission. Decay, hazard lapse, and conflict expiry all surface this
// way between reports.
func (s *Service) ScoreZone(ctx context.Context, zoneID string) (*model.ZoneConfidenceState, *model.ConfidenceFactors, error) {
	if _, err := s.store.GetZone(ctx, zoneID); err != nil {
		return nil, nil, eris.Wrapf(err, "intel: score zone %s", zoneID)
	}

	now := s.now().UTC()

	release := s.locks.acquire(zoneID)
	defer release()

	var (
		state   model.ZoneConfidenceState
		factors model.ConfidenceFactors
	)
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		state, factors, err = s.recompute(ctx, zoneID, nil, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &state, &factors, nil
}

// GetConfidence returns a zone's current confidence state without
// recomputing it. A zone that has never received intel reports the
// default state; nothing is persisted on reads.
func (s *Service) GetConfidence(ctx context.Context, zoneID string) (*model.ZoneConfidenceState, error) {
	if _, err := s.store.GetZone(ctx, zoneID); err != nil {
		return nil, eris.Wrapf(err, "intel: get confidence for zone %s", zoneID)
	}
	st, err := s.store.GetState(ctx, zoneID)
	if err != nil {
		return nil, eris.Wrapf(err, "intel: load state for zone %s", zoneID)
	}
	if st == nil {
		return &model.ZoneConfidenceState{
			ZoneID:    zoneID,
			Score:     s.cfg.DefaultScore,
			Level:     confidence.LevelForScore(s.cfg.DefaultScore, s.cfg),
			State:     model.StateActive,
			UpdatedAt: s.now().UTC(),
		}, nil
	}
	return st, nil
}

// recompute runs one fetch-compose-upsert cycle. A version conflict
// surfaces as an error for the retry loop to re-run from a fresh read.
func (s *Service) recompute(ctx context.Context, zoneID string, sub *model.IntelSubmission, now time.Time) (model.ZoneConfidenceState, model.ConfidenceFactors, error) {
	var zero model.ZoneConfidenceState
	var zeroF model.ConfidenceFactors

	prev, err := s.store.GetState(ctx, zoneID)
	if err != nil {
		return zero, zeroF, eris.Wrapf(err, "intel: load state for zone %s", zoneID)
	}

	window, err := s.store.SubmissionsSince(ctx, zoneID, now.Add(-24*time.Hour))
	if err != nil {
		return zero, zeroF, eris.Wrapf(err, "intel: load window for zone %s", zoneID)
	}

	hazardCount, err := s.store.CountHazardReports(ctx, zoneID, now.Add(-s.cfg.HazardWindow()))
	if err != nil {
		return zero, zeroF, eris.Wrapf(err, "intel: count hazards for zone %s", zoneID)
	}

	anomaly, err := s.evaluateAnomaly(ctx, sub)
	if err != nil {
		return zero, zeroF, err
	}

	next, factors, err := confidence.Compose(confidence.UpdateInput{
		State:       prev,
		Submission:  sub,
		Window:      window,
		HazardCount: hazardCount,
		Anomaly:     anomaly,
		ZoneID:      zoneID,
		Now:         now,
	}, s.cfg)
	if err != nil {
		return zero, zeroF, err
	}

	if err := s.store.UpsertState(ctx, &next); err != nil {
		return zero, zeroF, eris.Wrapf(err, "intel: upsert state for zone %s", zoneID)
	}
	return next, factors, nil
}

// evaluateAnomaly runs the price anomaly check when the new submission
// is a price report. Other submission types return nil, which leaves
// the zone's sticky anomaly flag untouched.
func (s *Service) evaluateAnomaly(ctx context.Context, sub *model.IntelSubmission) (*confidence.AnomalySignal, error) {
	if sub == nil || sub.Type != model.IntelPriceSubmission {
		return nil, nil
	}

	var p model.PricePayload
	if err := json.Unmarshal(sub.Payload, &p); err != nil {
		return nil, eris.Wrap(err, "intel: parse price payload")
	}

	baseline, err := s.store.GetPriceBaseline(ctx, sub.ZoneID, p.Item)
	if err != nil {
		return nil, eris.Wrapf(err, "intel: load price baseline for zone %s", sub.ZoneID)
	}
	if baseline == nil {
		// First sample for this item: an evaluation ran and found
		// nothing anomalous, so a sticky flag still clears.
		return &confidence.AnomalySignal{}, nil
	}
	return confidence.EvaluatePrice(p.Price, baseline.AveragePrice, baseline.SampleCount, s.cfg), nil
}

func (s *Service) validate(req SubmitRequest) error {
	if req.ZoneID == "" {
		return eris.Wrap(ErrInvalidSubmission, "zone_id is required")
	}
	if req.SubmitterID == "" {
		return eris.Wrap(ErrInvalidSubmission, "submitter_id is required")
	}
	if !req.Type.Valid() {
		return eris.Wrapf(ErrInvalidSubmission, "unknown intel type %q", req.Type)
	}

	switch req.Type {
	case model.IntelPriceSubmission:
		var p model.PricePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return eris.Wrap(ErrInvalidSubmission, "price payload is malformed")
		}
		if p.Item == "" {
			return eris.Wrap(ErrInvalidSubmission, "price payload needs an item")
		}
		if p.Price <= 0 {
			return eris.Wrap(ErrInvalidSubmission, "price must be > 0")
		}
	case model.IntelHazardReport:
		if len(req.Payload) > 0 {
			var h model.HazardPayload
			if err := json.Unmarshal(req.Payload, &h); err != nil {
				return eris.Wrap(ErrInvalidSubmission, "hazard payload is malformed")
			}
		}
	}
	return nil
}
