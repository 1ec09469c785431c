package radio

import (
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrScannerBusy is returned when another handshake already holds the scanner.
var ErrScannerBusy = errors.New("radio: scanner already in use")

// Lease guards an Adapter so that only one holder scans and connects at a
// time. The adapter itself is process-wide; callers get it only through
// Acquire and must call the returned release on every exit path.
type Lease struct {
	adapter Adapter
	sem     *semaphore.Weighted
}

// NewLease wraps adapter in an exclusive lease.
func NewLease(adapter Adapter) *Lease {
	return &Lease{
		adapter: adapter,
		sem:     semaphore.NewWeighted(1),
	}
}

// Acquire hands out the adapter without blocking. Release is idempotent.
func (l *Lease) Acquire() (Adapter, func(), error) {
	if !l.sem.TryAcquire(1) {
		return nil, nil, ErrScannerBusy
	}
	var once sync.Once
	release := func() {
		once.Do(func() { l.sem.Release(1) })
	}
	return l.adapter, release, nil
}
