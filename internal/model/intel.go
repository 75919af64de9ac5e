package model

import (
	"encoding/json"
	"time"
)

// IntelType identifies the kind of crowd report a submission carries.
type IntelType string

const (
	IntelPriceSubmission IntelType = "PRICE_SUBMISSION"
	IntelHassleReport    IntelType = "HASSLE_REPORT"
	IntelConstruction    IntelType = "CONSTRUCTION"
	IntelCrowdSurge      IntelType = "CROWD_SURGE"
	IntelQuietConfirmed  IntelType = "QUIET_CONFIRMED"
	IntelHazardReport    IntelType = "HAZARD_REPORT"
	IntelVerification    IntelType = "VERIFICATION"
)

// AllIntelTypes lists every recognized intel type.
var AllIntelTypes = []IntelType{
	IntelPriceSubmission,
	IntelHassleReport,
	IntelConstruction,
	IntelCrowdSurge,
	IntelQuietConfirmed,
	IntelHazardReport,
	IntelVerification,
}

// Valid reports whether t is a recognized intel type.
func (t IntelType) Valid() bool {
	for _, known := range AllIntelTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IntelSubmission is one crowd report about a zone. Submissions are
// immutable once created; the confidence engine only reads them.
// TrustWeight is fixed at creation time from the submitter's karma and
// never recomputed, so later reputation changes do not rewrite history.
type IntelSubmission struct {
	ID          string          `json:"id"`
	ZoneID      string          `json:"zone_id"`
	SubmitterID string          `json:"submitter_id"`
	Type        IntelType       `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TrustWeight float64         `json:"trust_weight"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PricePayload is the payload shape for PRICE_SUBMISSION intel.
type PricePayload struct {
	Item  string  `json:"item"`
	Price float64 `json:"price"`
}

// HazardPayload is the payload shape for HAZARD_REPORT intel.
type HazardPayload struct {
	Reason string `json:"reason"`
}
