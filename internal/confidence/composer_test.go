package confidence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

var composeNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func activeState(zoneID string, score float64) *model.ZoneConfidenceState {
	cfg := DefaultEngineConfig()
	last := composeNow.Add(-time.Hour)
	return &model.ZoneConfidenceState{
		ZoneID:      zoneID,
		Score:       score,
		Level:       LevelForScore(score, cfg),
		State:       model.StateActive,
		LastIntelAt: &last,
		UpdatedAt:   last,
		Version:     1,
	}
}

func TestCompose_NewZoneVerification(t *testing.T) {
	cfg := DefaultEngineConfig()

	sub := model.IntelSubmission{
		ID:          "sub-1",
		ZoneID:      "zone-1",
		SubmitterID: "user-1",
		Type:        model.IntelVerification,
		TrustWeight: TrustWeight(600, cfg), // karma 600 -> 1.2
		CreatedAt:   composeNow,
	}

	next, factors, err := Compose(UpdateInput{
		Submission: &sub,
		Window:     []model.IntelSubmission{sub},
		Now:        composeNow,
	}, cfg)
	require.NoError(t, err)

	// Default 50 plus 5 * 1.5 * 1.2 * 1.0 = 9.
	assert.InDelta(t, 9, factors.IntelBoost, 0.001)
	assert.InDelta(t, 59, next.Score, 0.001)
	assert.Equal(t, model.LevelMedium, next.Level)
	assert.Equal(t, model.StateActive, next.State)

	require.NotNil(t, next.LastVerifiedAt)
	assert.Equal(t, composeNow, *next.LastVerifiedAt)
	require.NotNil(t, next.LastIntelAt)
	assert.Equal(t, composeNow, *next.LastIntelAt)
	assert.Equal(t, 1, next.VerificationCount)
	assert.Equal(t, 1, next.IntelCount24h)
	assert.Equal(t, "zone-1", next.ZoneID)
}

func TestCompose_SecondHazardReportForcesOffline(t *testing.T) {
	cfg := DefaultEngineConfig()
	st := activeState("zone-1", 90)

	payload, _ := json.Marshal(model.HazardPayload{Reason: "scooter gang"})
	sub := model.IntelSubmission{
		ID:          "sub-2",
		ZoneID:      "zone-1",
		Type:        model.IntelHazardReport,
		Payload:     payload,
		TrustWeight: 1.0,
		CreatedAt:   composeNow,
	}

	next, factors, err := Compose(UpdateInput{
		State:       st,
		Submission:  &sub,
		Window:      []model.IntelSubmission{sub},
		HazardCount: 2,
		Now:         composeNow,
	}, cfg)
	require.NoError(t, err)

	// Hazards never boost; the 30-point penalty lands in full.
	assert.Zero(t, factors.IntelBoost)
	assert.Equal(t, cfg.HazardPenalty, factors.HazardPenalty)
	assert.InDelta(t, 60, next.Score, 0.001)

	assert.True(t, next.HazardActive)
	require.NotNil(t, next.HazardExpiresAt)
	assert.Equal(t, composeNow.Add(7*24*time.Hour), *next.HazardExpiresAt)
	assert.Equal(t, "scooter gang", next.HazardReason)

	// Numeric score alone would be MEDIUM, but the hazard forces the
	// state OFFLINE.
	assert.Equal(t, model.LevelMedium, next.Level)
	assert.Equal(t, model.StateOffline, next.State)
}

func TestCompose_ClampUnderAdversarialPenalties(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.ConflictPairs = append(cfg.ConflictPairs,
		ConflictPair{A: model.IntelConstruction, B: model.IntelCrowdSurge})

	st := activeState("zone-1", 25)
	stale := composeNow.Add(-30 * 24 * time.Hour)
	st.LastIntelAt = &stale

	window := []model.IntelSubmission{
		subAt(model.IntelQuietConfirmed, composeNow.Add(-time.Hour)),
		subAt(model.IntelCrowdSurge, composeNow.Add(-time.Hour)),
		subAt(model.IntelHassleReport, composeNow.Add(-time.Hour)),
		subAt(model.IntelConstruction, composeNow.Add(-time.Hour)),
	}

	// Stale decay + conflict penalty + hazard penalty + anomaly penalty
	// all at once: the floor must hold.
	next, factors, err := Compose(UpdateInput{
		State:       st,
		Window:      window,
		HazardCount: 5,
		Anomaly:     &AnomalySignal{Detected: true, Reason: ReasonPriceDeviation},
		Now:         composeNow,
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg.DecayFloor, next.Score)
	assert.Equal(t, cfg.ConflictPenalty, factors.ConflictPenalty)
	assert.Equal(t, cfg.HazardPenalty, factors.HazardPenalty)
	assert.Equal(t, cfg.AnomalyPenalty, factors.AnomalyPenalty)
	assert.Equal(t, model.StateOffline, next.State)

	// And the ceiling holds under repeated max boosts.
	high := activeState("zone-2", 99)
	sub := model.IntelSubmission{
		ID: "s", ZoneID: "zone-2", Type: model.IntelVerification,
		TrustWeight: 1.5, CreatedAt: composeNow,
	}
	next, _, err = Compose(UpdateInput{
		State:      high,
		Submission: &sub,
		Window:     []model.IntelSubmission{sub},
		Now:        composeNow,
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxScore, next.Score)
}

func TestCompose_AnomalyStickyUntilCleanCheck(t *testing.T) {
	cfg := DefaultEngineConfig()

	st := activeState("zone-1", 70)
	reason := ReasonPriceDeviation
	st.AnomalyDetected = true
	st.AnomalyReason = &reason

	// No anomaly evaluation this cycle: the flag carries forward and
	// keeps degrading the state, but no fresh penalty applies.
	next, factors, err := Compose(UpdateInput{State: st, Now: composeNow}, cfg)
	require.NoError(t, err)
	assert.True(t, next.AnomalyDetected)
	require.NotNil(t, next.AnomalyReason)
	assert.Equal(t, ReasonPriceDeviation, *next.AnomalyReason)
	assert.Zero(t, factors.AnomalyPenalty)
	assert.Equal(t, model.StateDegraded, next.State)

	// A clean evaluation clears it.
	next, _, err = Compose(UpdateInput{
		State:   st,
		Anomaly: &AnomalySignal{Detected: false},
		Now:     composeNow,
	}, cfg)
	require.NoError(t, err)
	assert.False(t, next.AnomalyDetected)
	assert.Nil(t, next.AnomalyReason)
	assert.Equal(t, model.StateActive, next.State)
}

func TestCompose_ExpiredHazardClearsWithoutSubmissions(t *testing.T) {
	cfg := DefaultEngineConfig()

	st := activeState("zone-1", 45)
	expired := composeNow.Add(-time.Hour)
	st.HazardActive = true
	st.HazardExpiresAt = &expired
	st.HazardReason = "old flood"
	st.State = model.StateOffline

	next, factors, err := Compose(UpdateInput{State: st, Now: composeNow}, cfg)
	require.NoError(t, err)

	assert.False(t, next.HazardActive)
	assert.Nil(t, next.HazardExpiresAt)
	assert.Empty(t, next.HazardReason)
	assert.Zero(t, factors.HazardPenalty)
	assert.Equal(t, model.StateActive, next.State)
}

func TestCompose_SweepIdempotent(t *testing.T) {
	cfg := DefaultEngineConfig()

	st := activeState("zone-1", 80)
	stale := composeNow.Add(-72 * time.Hour)
	st.LastIntelAt = &stale
	st.IntelCount24h = 4

	sweepInput := UpdateInput{State: st, ResetDailyCounters: true, Now: composeNow}

	first, firstFactors, err := Compose(sweepInput, cfg)
	require.NoError(t, err)
	second, secondFactors, err := Compose(sweepInput, cfg)
	require.NoError(t, err)

	// Decay is computed from state, not mutated incrementally: the same
	// inputs give the same outputs.
	assert.Equal(t, first, second)
	assert.Equal(t, firstFactors, secondFactors)
	assert.InDelta(t, 4, firstFactors.TimeDecay, 0.001)
	assert.InDelta(t, 76, first.Score, 0.001)
	assert.Zero(t, first.IntelCount24h)
}

func TestCompose_CountersOnlyMoveWithSubmission(t *testing.T) {
	cfg := DefaultEngineConfig()

	st := activeState("zone-1", 70)
	st.IntelCount24h = 3
	st.VerificationCount = 2
	verified := composeNow.Add(-48 * time.Hour)
	st.LastVerifiedAt = &verified

	next, _, err := Compose(UpdateInput{State: st, Now: composeNow}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, next.IntelCount24h)
	assert.Equal(t, 2, next.VerificationCount)
	assert.Equal(t, st.LastIntelAt, next.LastIntelAt)
	assert.Equal(t, &verified, next.LastVerifiedAt)
}

func TestCompose_DecayAndBoostShareOneBase(t *testing.T) {
	cfg := DefaultEngineConfig()

	st := activeState("zone-1", 60)
	stale := composeNow.Add(-48 * time.Hour)
	st.LastIntelAt = &stale

	sub := model.IntelSubmission{
		ID: "s", ZoneID: "zone-1", Type: model.IntelPriceSubmission,
		TrustWeight: 1.0, CreatedAt: composeNow,
	}

	next, factors, err := Compose(UpdateInput{
		State:      st,
		Submission: &sub,
		Window:     []model.IntelSubmission{sub},
		Now:        composeNow,
	}, cfg)
	require.NoError(t, err)

	// Decay comes from the pre-update last_intel_at; the fresh
	// submission boosts but does not retroactively stop the decay.
	assert.InDelta(t, 2, factors.TimeDecay, 0.001)
	assert.InDelta(t, 5, factors.IntelBoost, 0.001)
	assert.InDelta(t, 63, next.Score, 0.001)
	require.NotNil(t, next.LastIntelAt)
	assert.Equal(t, composeNow, *next.LastIntelAt)
}

func TestCompose_FailsFastOnMalformedInput(t *testing.T) {
	cfg := DefaultEngineConfig()

	badType := model.IntelSubmission{
		ID: "s", ZoneID: "z", Type: "SASQUATCH_SIGHTING",
		TrustWeight: 1.0, CreatedAt: composeNow,
	}
	_, _, err := Compose(UpdateInput{Submission: &badType, Now: composeNow}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownIntelType)

	badWeight := model.IntelSubmission{
		ID: "s", ZoneID: "z", Type: model.IntelVerification,
		TrustWeight: 9.0, CreatedAt: composeNow,
	}
	_, _, err = Compose(UpdateInput{Submission: &badWeight, Now: composeNow}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrustWeightOutOfRange)

	corrupt := activeState("zone-1", 500)
	_, _, err = Compose(UpdateInput{State: corrupt, Now: composeNow}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateOutOfRange)
}
