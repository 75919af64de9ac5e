package confidence

import (
	"time"

	"github.com/unmappedos-sys/unmappedos/internal/model"
)

// CountConflicts scans the submissions that fall inside the conflict
// window and counts the distinct configured type pairs for which both
// sides appear at least once. The count is per pair present, not per
// submission: ten QUIET_CONFIRMED against one CROWD_SURGE is still one
// conflict.
func CountConflicts(window []model.IntelSubmission, now time.Time, cfg EngineConfig) int {
	cutoff := now.Add(-cfg.ConflictWindow())

	present := make(map[model.IntelType]bool, len(window))
	for _, sub := range window {
		if sub.CreatedAt.Before(cutoff) {
			continue
		}
		present[sub.Type] = true
	}

	count := 0
	for _, pair := range cfg.ConflictPairs {
		if present[pair.A] && present[pair.B] {
			count++
		}
	}
	return count
}

// ConflictPenalty returns the flat penalty for a conflict count, which
// applies only once the count reaches the configured threshold.
func ConflictPenalty(count int, cfg EngineConfig) float64 {
	if count >= cfg.ConflictThreshold {
		return cfg.ConflictPenalty
	}
	return 0
}
