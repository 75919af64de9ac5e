// Package model defines the domain types shared by the confidence
// engine, the store, and the API surface.
package model

import "time"

// ConfidenceLevel is the discrete bucket derived purely from score.
type ConfidenceLevel string

const (
	LevelHigh     ConfidenceLevel = "HIGH"
	LevelMedium   ConfidenceLevel = "MEDIUM"
	LevelLow      ConfidenceLevel = "LOW"
	LevelDegraded ConfidenceLevel = "DEGRADED"
	LevelUnknown  ConfidenceLevel = "UNKNOWN"
)

// ZoneState is the operational status combining score with the hazard
// and anomaly flags.
type ZoneState string

const (
	StateActive   ZoneState = "ACTIVE"
	StateDegraded ZoneState = "DEGRADED"
	StateOffline  ZoneState = "OFFLINE"
	StateUnknown  ZoneState = "UNKNOWN"
)

// ZoneConfidenceState is the persisted confidence aggregate for one
// zone. Exactly one record exists per zone, created lazily on first
// submission. It is mutated only by the confidence composer and the
// daily decay sweep.
type ZoneConfidenceState struct {
	ZoneID            string          `json:"zone_id"`
	Score             float64         `json:"score"`
	Level             ConfidenceLevel `json:"level"`
	State             ZoneState       `json:"state"`
	LastVerifiedAt    *time.Time      `json:"last_verified_at,omitempty"`
	LastIntelAt       *time.Time      `json:"last_intel_at,omitempty"`
	VerificationCount int             `json:"verification_count"`
	IntelCount24h     int             `json:"intel_count_24h"`
	ConflictCount     int             `json:"conflict_count"`
	HazardActive      bool            `json:"hazard_active"`
	HazardExpiresAt   *time.Time      `json:"hazard_expires_at,omitempty"`
	HazardReason      string          `json:"hazard_reason,omitempty"`
	AnomalyDetected   bool            `json:"anomaly_detected"`
	AnomalyReason     *string         `json:"anomaly_reason,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// Version supports optimistic concurrency on upsert. Managed by the
	// store; zero means the record has never been persisted.
	Version int64 `json:"-"`
}

// ConfidenceFactors is the transient breakdown of one confidence
// update. It exists to make a single update auditable and testable;
// callers may log it but never persist it.
type ConfidenceFactors struct {
	BaseScore       float64 `json:"base_score"`
	TimeDecay       float64 `json:"time_decay"`
	IntelBoost      float64 `json:"intel_boost"`
	ConflictPenalty float64 `json:"conflict_penalty"`
	HazardPenalty   float64 `json:"hazard_penalty"`
	AnomalyPenalty  float64 `json:"anomaly_penalty"`
	FinalScore      float64 `json:"final_score"`
}
