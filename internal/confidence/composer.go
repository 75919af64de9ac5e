package confidence

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// UpdateInput carries everything one confidence update needs. The
// composer is a pure function of this input plus the engine config; the
// only clock it sees is Now.
type UpdateInput struct {
	// State is the zone's current persisted state, or nil for a zone
	// that has never received intel (triggers default initialization).
	State *model.ZoneConfidenceState

	// Submission is the new intel being applied, if any. The daily
	// decay sweep composes with no submission.
	Submission *model.IntelSubmission

	// Window holds the zone's submissions in the trailing 24h window,
	// including Submission if the caller already persisted it. The
	// composer narrows it further for conflict detection.
	Window []model.IntelSubmission

	// HazardCount is the number of HAZARD_REPORT submissions in the
	// trailing hazard window.
	HazardCount int

	// Anomaly is the evaluated anomaly signal for this cycle, or nil
	// when no check ran (the sticky flag then carries forward).
	Anomaly *AnomalySignal

	// ResetDailyCounters zeroes intel_count_24h on the output state.
	// Set only by the daily decay sweep.
	ResetDailyCounters bool

	// ZoneID identifies the zone when State is nil.
	ZoneID string

	Now time.Time
}

// Compose runs one full confidence update: it computes every factor
// independently off the same pre-update base score, combines them
// additively, clamps, and reclassifies. It returns the new state plus
// the per-factor breakdown for observability. Compose never mutates its
// inputs and is safe to re-run with identical inputs.
func Compose(in UpdateInput, cfg EngineConfig) (model.ZoneConfidenceState, model.ConfidenceFactors, error) {
	if err := validateInput(in, cfg); err != nil {
		return model.ZoneConfidenceState{}, model.ConfidenceFactors{}, err
	}

	prev := in.State
	if prev == nil {
		prev = &model.ZoneConfidenceState{
			ZoneID: in.ZoneID,
			Score:  cfg.DefaultScore,
			Level:  LevelForScore(cfg.DefaultScore, cfg),
			State:  model.StateActive,
		}
		if prev.ZoneID == "" && in.Submission != nil {
			prev.ZoneID = in.Submission.ZoneID
		}
	}

	base := prev.Score

	// A state born on this very update has had no time to erode; the
	// flat never-reported decay applies only to persisted states.
	var decay float64
	if in.State != nil {
		decay = TimeDecay(base, prev.LastIntelAt, in.Now, cfg)
	}

	var boost float64
	if in.Submission != nil {
		boost = IntelBoost(in.Submission.Type, in.Submission.TrustWeight, prev.IntelCount24h, cfg)
	}

	conflicts := CountConflicts(in.Window, in.Now, cfg)
	conflictPenalty := ConflictPenalty(conflicts, cfg)

	hz := ResolveHazard(prev.HazardActive, prev.HazardExpiresAt, prev.HazardReason,
		in.HazardCount, hazardReason(in.Submission), in.Now, cfg)

	anomalyDetected := prev.AnomalyDetected
	anomalyReason := prev.AnomalyReason
	var anomalyPenalty float64
	if in.Anomaly != nil {
		anomalyDetected = in.Anomaly.Detected
		anomalyReason = nil
		if in.Anomaly.Detected {
			reason := in.Anomaly.Reason
			anomalyReason = &reason
			anomalyPenalty = cfg.AnomalyPenalty
		}
	}

	final := clamp(base-decay+boost-conflictPenalty-hz.Penalty-anomalyPenalty, cfg.DecayFloor, cfg.MaxScore)

	next := model.ZoneConfidenceState{
		ZoneID:            prev.ZoneID,
		Score:             final,
		Level:             LevelForScore(final, cfg),
		State:             StateFor(final, hz.Active, anomalyDetected, cfg),
		LastVerifiedAt:    prev.LastVerifiedAt,
		LastIntelAt:       prev.LastIntelAt,
		VerificationCount: prev.VerificationCount,
		IntelCount24h:     prev.IntelCount24h,
		ConflictCount:     conflicts,
		HazardActive:      hz.Active,
		HazardExpiresAt:   hz.ExpiresAt,
		HazardReason:      hz.Reason,
		AnomalyDetected:   anomalyDetected,
		AnomalyReason:     anomalyReason,
		UpdatedAt:         in.Now,
		Version:           prev.Version,
	}

	if sub := in.Submission; sub != nil {
		createdAt := sub.CreatedAt
		next.LastIntelAt = &createdAt
		next.IntelCount24h++
		if sub.Type == model.IntelVerification {
			next.LastVerifiedAt = &createdAt
			next.VerificationCount++
		}
	}

	if in.ResetDailyCounters {
		next.IntelCount24h = 0
	}

	factors := model.ConfidenceFactors{
		BaseScore:       base,
		TimeDecay:       decay,
		IntelBoost:      boost,
		ConflictPenalty: conflictPenalty,
		HazardPenalty:   hz.Penalty,
		AnomalyPenalty:  anomalyPenalty,
		FinalScore:      final,
	}

	return next, factors, nil
}

func validateInput(in UpdateInput, cfg EngineConfig) error {
	if st := in.State; st != nil {
		if st.Score < cfg.DecayFloor || st.Score > cfg.MaxScore {
			return eris.Wrapf(ErrStateOutOfRange, "zone %s score %.2f outside [%.1f, %.1f]",
				st.ZoneID, st.Score, cfg.DecayFloor, cfg.MaxScore)
		}
		if st.VerificationCount < 0 || st.IntelCount24h < 0 || st.ConflictCount < 0 {
			return eris.Wrapf(ErrStateOutOfRange, "zone %s has a negative counter", st.ZoneID)
		}
	}

	if sub := in.Submission; sub != nil {
		if !sub.Type.Valid() {
			return eris.Wrapf(ErrUnknownIntelType, "submission %s type %q", sub.ID, sub.Type)
		}
		if sub.TrustWeight < cfg.MinTrustWeight || sub.TrustWeight > cfg.MaxTrustWeight {
			return eris.Wrapf(ErrTrustWeightOutOfRange, "submission %s weight %.2f outside [%.2f, %.2f]",
				sub.ID, sub.TrustWeight, cfg.MinTrustWeight, cfg.MaxTrustWeight)
		}
	}

	if in.State == nil && in.ZoneID == "" && in.Submission == nil {
		return eris.New("confidence: update input names no zone")
	}

	return nil
}

// hazardReason pulls the free-text reason out of a HAZARD_REPORT
// payload. The payload is otherwise opaque to the engine; a missing or
// malformed reason is simply empty.
func hazardReason(sub *model.IntelSubmission) string {
	if sub == nil || sub.Type != model.IntelHazardReport || len(sub.Payload) == 0 {
		return ""
	}
	var p model.HazardPayload
	if err := json.Unmarshal(sub.Payload, &p); err != nil {
		return ""
	}
	return p.Reason
}
