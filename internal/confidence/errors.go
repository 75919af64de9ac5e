package confidence

import "github.com/rotisserie/eris"

// Malformed-input failures. The engine fails fast on these rather than
// silently coercing: a clamped-over corrupt state would propagate bad
// confidence to users. Insufficient data (e.g. a thin price baseline)
// is never an error; it has defined no-op defaults.
var (
	// ErrUnknownIntelType is returned when a submission carries a type
	// the engine does not recognize.
	ErrUnknownIntelType = eris.New("confidence: unknown intel type")

	// ErrStateOutOfRange is returned when a persisted state's fields
	// are outside their documented ranges.
	ErrStateOutOfRange = eris.New("confidence: zone state out of range")

	// ErrTrustWeightOutOfRange is returned when a submission's fixed
	// trust weight falls outside the configured bounds.
	ErrTrustWeightOutOfRange = eris.New("confidence: trust weight out of range")
)
