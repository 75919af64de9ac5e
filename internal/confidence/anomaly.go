package confidence

import "math"

// ReasonPriceDeviation is the machine-readable anomaly reason code for
// price deviations.
const ReasonPriceDeviation = "PRICE_DEVIATION"

// AnomalySignal is the evaluated outcome of an anomaly check for one
// update cycle. A nil *AnomalySignal means no check ran this cycle and
// the zone's sticky anomaly flag carries forward untouched.
type AnomalySignal struct {
	Detected bool
	Reason   string
}

// PriceAnomaly reports whether a newly submitted price deviates sharply
// from the zone's running baseline. With fewer than AnomalyMinSamples
// samples there is no anomaly judgment at all: the system prefers
// under-confidence on sparse data over false positives.
func PriceAnomaly(newPrice, averagePrice float64, sampleCount int, cfg EngineConfig) bool {
	if sampleCount < cfg.AnomalyMinSamples {
		return false
	}
	if averagePrice <= 0 {
		return false
	}
	deviation := math.Abs(newPrice-averagePrice) / averagePrice
	return deviation > cfg.AnomalyDeviation
}

// EvaluatePrice wraps PriceAnomaly into an AnomalySignal with the
// standard reason code.
func EvaluatePrice(newPrice, averagePrice float64, sampleCount int, cfg EngineConfig) *AnomalySignal {
	if PriceAnomaly(newPrice, averagePrice, sampleCount, cfg) {
		return &AnomalySignal{Detected: true, Reason: ReasonPriceDeviation}
	}
	return &AnomalySignal{}
}
