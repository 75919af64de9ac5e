// Package confidence implements the zone confidence engine: a
// deterministic scoring function that folds untrusted, conflicting,
// time-decaying crowd reports into a single trust score, confidence
// level, and operational state per zone.
package confidence

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// TrustStep maps a minimum karma to a trust weight. Steps are evaluated
// in descending MinKarma order; the first step at or below the
// submitter's karma wins.
type TrustStep struct {
	MinKarma int     `yaml:"min_karma"`
	Weight   float64 `yaml:"weight"`
}

// ConflictPair names two intel types that contradict each other when
// both appear in the conflict window.
type ConflictPair struct {
	A model.IntelType `yaml:"a"`
	B model.IntelType `yaml:"b"`
}

// EngineConfig carries every threshold and multiplier the engine uses.
// The engine is a pure function of its inputs plus this config; nothing
// reads ambient constants, so alternate configurations are fully
// testable.
type EngineConfig struct {
	// Trust weighting.
	MinTrustWeight float64     `yaml:"min_trust_weight"`
	MaxTrustWeight float64     `yaml:"max_trust_weight"`
	TrustSteps     []TrustStep `yaml:"trust_steps"`

	// Score bounds and defaults.
	DecayFloor   float64 `yaml:"decay_floor"`
	MaxScore     float64 `yaml:"max_score"`
	DefaultScore float64 `yaml:"default_score"`

	// Time decay.
	DailyDecayRate  float64 `yaml:"daily_decay_rate"`
	DecayGraceHours int     `yaml:"decay_grace_hours"`

	// Intel boost.
	BaseBoost             float64                     `yaml:"base_boost"`
	TypeMultipliers       map[model.IntelType]float64 `yaml:"type_multipliers"`
	DiminishingStep       float64                     `yaml:"diminishing_step"`
	DiminishingFloor      float64                     `yaml:"diminishing_floor"`
	PerSubmissionBoostCap float64                     `yaml:"per_submission_boost_cap"`
	DailyBoostCap         float64                     `yaml:"daily_boost_cap"`

	// Conflict detection.
	ConflictWindowHours int            `yaml:"conflict_window_hours"`
	ConflictPairs       []ConflictPair `yaml:"conflict_pairs"`
	ConflictThreshold   int            `yaml:"conflict_threshold"`
	ConflictPenalty     float64        `yaml:"conflict_penalty"`

	// Hazard aggregation.
	HazardWindowHours  int     `yaml:"hazard_window_hours"`
	HazardThreshold    int     `yaml:"hazard_threshold"`
	HazardDurationDays int     `yaml:"hazard_duration_days"`
	HazardPenalty      float64 `yaml:"hazard_penalty"`

	// Anomaly detection.
	AnomalyMinSamples int     `yaml:"anomaly_min_samples"`
	AnomalyDeviation  float64 `yaml:"anomaly_deviation"`
	AnomalyPenalty    float64 `yaml:"anomaly_penalty"`

	// Level thresholds (level is a pure step function of score).
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
	LowThreshold    float64 `yaml:"low_threshold"`
}

// GracePeriod is the window after fresh intel during which no time
// decay applies.
func (c EngineConfig) GracePeriod() time.Duration {
	return time.Duration(c.DecayGraceHours) * time.Hour
}

// ConflictWindow is the trailing window scanned for contradictory
// report types.
func (c EngineConfig) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowHours) * time.Hour
}

// HazardWindow is the trailing window over which hazard reports count
// toward activation.
func (c EngineConfig) HazardWindow() time.Duration {
	return time.Duration(c.HazardWindowHours) * time.Hour
}

// HazardDuration is how long an activated hazard stays open before
// lapsing naturally.
func (c EngineConfig) HazardDuration() time.Duration {
	return time.Duration(c.HazardDurationDays) * 24 * time.Hour
}

// DefaultEngineConfig returns the production engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinTrustWeight: 0.3,
		MaxTrustWeight: 1.5,
		TrustSteps: []TrustStep{
			{MinKarma: 1000, Weight: 1.5},
			{MinKarma: 500, Weight: 1.2},
			{MinKarma: 200, Weight: 1.0},
			{MinKarma: 50, Weight: 0.8},
			{MinKarma: 0, Weight: 0.5},
		},

		DecayFloor:   20,
		MaxScore:     100,
		DefaultScore: 50,

		DailyDecayRate:  2, // 2% of the 100-point scale per day
		DecayGraceHours: 24,

		BaseBoost: 5,
		TypeMultipliers: map[model.IntelType]float64{
			model.IntelVerification:    1.5,
			model.IntelPriceSubmission: 1.0,
			model.IntelQuietConfirmed:  0.8,
			model.IntelCrowdSurge:      0.7,
			model.IntelHassleReport:    0.6,
			model.IntelConstruction:    0.5,
			// Hazards never boost confidence; they only penalize.
			model.IntelHazardReport: 0,
		},
		DiminishingStep:       0.15,
		DiminishingFloor:      0.2,
		PerSubmissionBoostCap: 15,
		DailyBoostCap:         30,

		ConflictWindowHours: 6,
		ConflictPairs: []ConflictPair{
			{A: model.IntelQuietConfirmed, B: model.IntelCrowdSurge},
			{A: model.IntelQuietConfirmed, B: model.IntelHassleReport},
		},
		// Unreachable with the two default pairs. Deliberate headroom
		// for future pairs; do not lower to make the penalty fire.
		ConflictThreshold: 3,
		ConflictPenalty:   15,

		HazardWindowHours:  24,
		HazardThreshold:    2,
		HazardDurationDays: 7,
		HazardPenalty:      30,

		AnomalyMinSamples: 3,
		AnomalyDeviation:  0.5,
		AnomalyPenalty:    10,

		HighThreshold:   80,
		MediumThreshold: 60,
		LowThreshold:    40,
	}
}

// LoadEngineConfig reads an EngineConfig override from a YAML file,
// layered on top of the defaults. Zero-valued fields in the file keep
// their defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "confidence: read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "confidence: parse config %s", path)
	}
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateConfig checks that an EngineConfig is internally consistent.
func ValidateConfig(c EngineConfig) error {
	var errs []string

	if c.MinTrustWeight <= 0 {
		errs = append(errs, "min_trust_weight must be > 0")
	}
	if c.MaxTrustWeight < c.MinTrustWeight {
		errs = append(errs, "max_trust_weight must be >= min_trust_weight")
	}
	if len(c.TrustSteps) == 0 {
		errs = append(errs, "trust_steps must not be empty")
	}
	for i := 1; i < len(c.TrustSteps); i++ {
		if c.TrustSteps[i].MinKarma >= c.TrustSteps[i-1].MinKarma {
			errs = append(errs, "trust_steps must be in descending min_karma order")
			break
		}
	}
	for _, step := range c.TrustSteps {
		if step.Weight < c.MinTrustWeight || step.Weight > c.MaxTrustWeight {
			errs = append(errs, fmt.Sprintf("trust step weight %.2f outside [%.2f, %.2f]",
				step.Weight, c.MinTrustWeight, c.MaxTrustWeight))
		}
	}

	if c.DecayFloor < 0 {
		errs = append(errs, "decay_floor must be >= 0")
	}
	if c.MaxScore <= c.DecayFloor {
		errs = append(errs, "max_score must be > decay_floor")
	}
	if c.DefaultScore < c.DecayFloor || c.DefaultScore > c.MaxScore {
		errs = append(errs, "default_score must be within [decay_floor, max_score]")
	}
	if c.DailyDecayRate < 0 {
		errs = append(errs, "daily_decay_rate must be >= 0")
	}
	if c.DecayGraceHours < 0 {
		errs = append(errs, "decay_grace_hours must be >= 0")
	}

	if c.BaseBoost < 0 {
		errs = append(errs, "base_boost must be >= 0")
	}
	for it, mult := range c.TypeMultipliers {
		if !it.Valid() {
			errs = append(errs, fmt.Sprintf("type_multipliers: unknown intel type %q", it))
		}
		if mult < 0 {
			errs = append(errs, fmt.Sprintf("type_multipliers[%s] must be >= 0", it))
		}
	}
	if c.DiminishingStep < 0 || c.DiminishingStep > 1 {
		errs = append(errs, "diminishing_step must be in [0, 1]")
	}
	if c.DiminishingFloor < 0 || c.DiminishingFloor > 1 {
		errs = append(errs, "diminishing_floor must be in [0, 1]")
	}
	if c.PerSubmissionBoostCap < 0 {
		errs = append(errs, "per_submission_boost_cap must be >= 0")
	}
	if c.DailyBoostCap < c.PerSubmissionBoostCap {
		errs = append(errs, "daily_boost_cap must be >= per_submission_boost_cap")
	}

	for _, p := range c.ConflictPairs {
		if !p.A.Valid() || !p.B.Valid() {
			errs = append(errs, fmt.Sprintf("conflict pair (%s, %s) names an unknown intel type", p.A, p.B))
		}
		if p.A == p.B {
			errs = append(errs, fmt.Sprintf("conflict pair (%s, %s) must name two distinct types", p.A, p.B))
		}
	}
	if c.ConflictThreshold < 1 {
		errs = append(errs, "conflict_threshold must be >= 1")
	}
	if c.ConflictWindowHours <= 0 {
		errs = append(errs, "conflict_window_hours must be > 0")
	}

	if c.HazardThreshold < 1 {
		errs = append(errs, "hazard_threshold must be >= 1")
	}
	if c.HazardWindowHours <= 0 {
		errs = append(errs, "hazard_window_hours must be > 0")
	}
	if c.HazardDurationDays <= 0 {
		errs = append(errs, "hazard_duration_days must be > 0")
	}

	if c.AnomalyMinSamples < 1 {
		errs = append(errs, "anomaly_min_samples must be >= 1")
	}
	if c.AnomalyDeviation <= 0 {
		errs = append(errs, "anomaly_deviation must be > 0")
	}

	for name, p := range map[string]float64{
		"conflict_penalty": c.ConflictPenalty,
		"hazard_penalty":   c.HazardPenalty,
		"anomaly_penalty":  c.AnomalyPenalty,
	} {
		if p < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if !(c.HighThreshold > c.MediumThreshold && c.MediumThreshold > c.LowThreshold && c.LowThreshold > c.DecayFloor) {
		errs = append(errs, "level thresholds must satisfy high > medium > low > decay_floor")
	}

	if len(errs) > 0 {
		return eris.Errorf("confidence: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
