package confidence

import "time"

// HazardResolution is the outcome of one pass over a zone's hazard
// fields.
type HazardResolution struct {
	Active    bool
	ExpiresAt *time.Time
	Reason    string
	Penalty   float64
}

// ResolveHazard folds the trailing-window hazard report count into the
// zone's hazard fields. At or above the threshold the hazard opens (or
// refreshes, if already active) with a fresh expiry and the flat
// penalty applies. An already-active hazard whose expiry has passed
// lapses naturally, with no penalty on the clearing pass. Otherwise the
// existing fields carry forward unchanged.
func ResolveHazard(active bool, expiresAt *time.Time, reason string, hazardCount int, newReason string, now time.Time, cfg EngineConfig) HazardResolution {
	if hazardCount >= cfg.HazardThreshold {
		expiry := now.Add(cfg.HazardDuration())
		r := reason
		if newReason != "" {
			r = newReason
		}
		return HazardResolution{
			Active:    true,
			ExpiresAt: &expiry,
			Reason:    r,
			Penalty:   cfg.HazardPenalty,
		}
	}

	if active && expiresAt != nil && !expiresAt.After(now) {
		return HazardResolution{}
	}

	return HazardResolution{
		Active:    active,
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
}
