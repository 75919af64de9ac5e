package confidence

import "time"

// TimeDecay computes how many points a zone's score should erode given
// the time since its last intel. The shape is a sawtooth: flat during
// the grace period after fresh intel, then a linear decline, asymptoting
// at the decay floor rather than hard-resetting to it.
//
//   - No intel ever: the flat daily rate (a zone with zero intel is
//     assumed to decay continuously).
//   - Within the grace period: zero.
//   - Past grace: DailyDecayRate points per day past grace.
//
// The result is capped so it can never push score below the floor.
func TimeDecay(score float64, lastIntelAt *time.Time, now time.Time, cfg EngineConfig) float64 {
	headroom := score - cfg.DecayFloor
	if headroom < 0 {
		headroom = 0
	}

	if lastIntelAt == nil {
		if cfg.DailyDecayRate < headroom {
			return cfg.DailyDecayRate
		}
		return headroom
	}

	age := now.Sub(*lastIntelAt)
	grace := cfg.GracePeriod()
	if age < grace {
		return 0
	}

	daysPastGrace := (age - grace).Hours() / 24
	decay := daysPastGrace * cfg.DailyDecayRate
	if decay > headroom {
		return headroom
	}
	return decay
}
