package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHazard_Activation(t *testing.T) {
	cfg := DefaultEngineConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// One report is below threshold: nothing happens.
	res := ResolveHazard(false, nil, "", 1, "", now, cfg)
	assert.False(t, res.Active)
	assert.Nil(t, res.ExpiresAt)
	assert.Zero(t, res.Penalty)

	// Two reports open a 7-day hazard with the flat penalty.
	res = ResolveHazard(false, nil, "", 2, "flooded underpass", now, cfg)
	assert.True(t, res.Active)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, now.Add(7*24*time.Hour), *res.ExpiresAt)
	assert.Equal(t, "flooded underpass", res.Reason)
	assert.Equal(t, cfg.HazardPenalty, res.Penalty)
}

func TestResolveHazard_RetriggerRefreshesExpiry(t *testing.T) {
	cfg := DefaultEngineConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	oldExpiry := now.Add(2 * 24 * time.Hour)

	res := ResolveHazard(true, &oldExpiry, "pickpocket cluster", 3, "", now, cfg)
	assert.True(t, res.Active)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, now.Add(cfg.HazardDuration()), *res.ExpiresAt)
	// Reason carries forward when the new reports do not name one.
	assert.Equal(t, "pickpocket cluster", res.Reason)
	assert.Equal(t, cfg.HazardPenalty, res.Penalty)
}

func TestResolveHazard_LapsesNaturally(t *testing.T) {
	cfg := DefaultEngineConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)

	// Expired hazard clears on the next pass, with no penalty.
	res := ResolveHazard(true, &expired, "old incident", 0, "", now, cfg)
	assert.False(t, res.Active)
	assert.Nil(t, res.ExpiresAt)
	assert.Empty(t, res.Reason)
	assert.Zero(t, res.Penalty)
}

func TestResolveHazard_CarriesActiveForward(t *testing.T) {
	cfg := DefaultEngineConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(3 * 24 * time.Hour)

	// Still active, below re-trigger threshold: fields unchanged, no
	// fresh penalty.
	res := ResolveHazard(true, &future, "road collapse", 1, "", now, cfg)
	assert.True(t, res.Active)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, future, *res.ExpiresAt)
	assert.Equal(t, "road collapse", res.Reason)
	assert.Zero(t, res.Penalty)
}
