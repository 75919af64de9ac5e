package confidence

import (
	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// IntelBoost computes the positive score contribution of one new
// submission: a per-type base, scaled by the submitter's trust weight,
// then discounted by how many submissions the zone already received in
// the current 24h window. Each additional recent submission is worth
// DiminishingStep less, floored at DiminishingFloor of face value, to
// blunt brigading by a small number of accounts.
//
// The result is capped at PerSubmissionBoostCap. The type multiplier
// for HAZARD_REPORT is zero: hazards never boost confidence.
func IntelBoost(intelType model.IntelType, trustWeight float64, recentCount int, cfg EngineConfig) float64 {
	base := cfg.BaseBoost * cfg.TypeMultipliers[intelType]
	if base <= 0 {
		return 0
	}

	weighted := base * clamp(trustWeight, cfg.MinTrustWeight, cfg.MaxTrustWeight)

	diminishing := 1 - float64(recentCount)*cfg.DiminishingStep
	if diminishing < cfg.DiminishingFloor {
		diminishing = cfg.DiminishingFloor
	}

	boost := weighted * diminishing
	if boost > cfg.PerSubmissionBoostCap {
		return cfg.PerSubmissionBoostCap
	}
	return boost
}
