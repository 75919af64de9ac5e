package confidence

// TrustWeight maps a submitter's karma to a bounded multiplier used to
// discount or amplify their report's effect. The mapping is a monotonic
// step function; negative karma bottoms out at the configured floor.
//
// The result is fixed onto the submission at creation time and never
// recomputed, so later reputation changes do not rewrite history.
func TrustWeight(karma int, cfg EngineConfig) float64 {
	for _, step := range cfg.TrustSteps {
		if karma >= step.MinKarma {
			return clamp(step.Weight, cfg.MinTrustWeight, cfg.MaxTrustWeight)
		}
	}
	return cfg.MinTrustWeight
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
