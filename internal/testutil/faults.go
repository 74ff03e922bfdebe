package testutil

import (
	"sync"

	ierr "github.com/gepvi/gepvi-users/internal/errors"
)

// Faults queues errors per operation name. Each call to Next pops one.
type Faults struct {
	mu     sync.Mutex
	queued map[string][]error
}

func NewFaults() *Faults {
	return &Faults{queued: make(map[string][]error)}
}

// Fail makes the next n calls of operation return err
func (f *Faults) Fail(operation string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.queued[operation] = append(f.queued[operation], err)
	}
}

// Next pops the queued error for operation, if any
func (f *Faults) Next(operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.queued[operation]
	if len(q) == 0 {
		return nil
	}
	f.queued[operation] = q[1:]
	return q[0]
}

func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = make(map[string][]error)
}

// ErrStorageDown is what a repository returns once its retries are spent
func ErrStorageDown() error {
	return ierr.NewError("connection refused").
		WithHint("Storage is temporarily unavailable").
		Mark(ierr.ErrStorageUnavailable)
}
