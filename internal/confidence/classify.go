package confidence

import "github.com/unmappedos-sys/unmappedos/internal/model"

// LevelForScore buckets a score into a confidence level. Pure step
// function of score alone; boundary values belong to the higher bucket.
func LevelForScore(score float64, cfg EngineConfig) model.ConfidenceLevel {
	switch {
	case score >= cfg.HighThreshold:
		return model.LevelHigh
	case score >= cfg.MediumThreshold:
		return model.LevelMedium
	case score >= cfg.LowThreshold:
		return model.LevelLow
	case score >= cfg.DecayFloor:
		return model.LevelDegraded
	default:
		return model.LevelUnknown
	}
}

// StateFor derives the operational state from score plus the hazard and
// anomaly flags. An active hazard forces OFFLINE regardless of score;
// level and state are independent outputs, so a zone can sit at HIGH
// level while DEGRADED state because of a sticky anomaly flag.
func StateFor(score float64, hazardActive, anomalyDetected bool, cfg EngineConfig) model.ZoneState {
	switch {
	case hazardActive:
		return model.StateOffline
	case score < cfg.DecayFloor:
		return model.StateDegraded
	case anomalyDetected:
		return model.StateDegraded
	default:
		return model.StateActive
	}
}
