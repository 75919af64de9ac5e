package intel

import "sync"

// zoneLocks hands out one mutex per zone ID so confidence updates for a
// zone serialize in-process. Cross-process races are still caught by
// the store's version column; this lock just keeps a single node from
// burning retries against itself.
type zoneLocks struct {
	mu    sync.Mutex
	locks map[string]*zoneLock
}

type zoneLock struct {
	mu   sync.Mutex
	refs int
}

func newZoneLocks() *zoneLocks {
	return &zoneLocks{locks: make(map[string]*zoneLock)}
}

// acquire locks the mutex for zoneID and returns its release func.
// Entries are reference-counted and dropped at zero so the map does not
// grow with every zone ever touched.
func (z *zoneLocks) acquire(zoneID string) func() {
	z.mu.Lock()
	l, ok := z.locks[zoneID]
	if !ok {
		l = &zoneLock{}
		z.locks[zoneID] = l
	}
	l.refs++
	z.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		z.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(z.locks, zoneID)
		}
		z.mu.Unlock()
	}
}
