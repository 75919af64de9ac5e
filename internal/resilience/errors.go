package resilience

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/unmappedos-sys/unmappedos/internal/store"
)

// IsRetryable reports whether err is worth retrying. Version conflicts
// from the optimistic-concurrency protocol always are; SQLite lock
// contention is transient by nature. Context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if eris.Is(err, context.Canceled) || eris.Is(err, context.DeadlineExceeded) {
		return false
	}
	if eris.Is(err, store.ErrVersionConflict) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"connection reset",
		"connection refused",
		"deadlock detected",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
