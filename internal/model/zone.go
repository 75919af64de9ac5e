package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// Zone is a bounded geographic area tracked by the system. The
// confidence engine only needs the identifier; the centroid is kept so
// list surfaces can place zones on a map without a second lookup.
type Zone struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Centroid  *geom.Point `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}

// ZoneSummary pairs a zone with its current confidence for list
// endpoints. Confidence is nil for zones that have never received
// intel.
type ZoneSummary struct {
	Zone       Zone                 `json:"zone"`
	Confidence *ZoneConfidenceState `json:"confidence,omitempty"`
}
