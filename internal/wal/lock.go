package wal

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/korudelta/core/internal/kerr"
)

// Lock is the data directory's exclusive-open guard: exactly one
// StorageEngine process may hold a given directory at a time, failing
// fast with AlreadyOpen when a second process tries.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the exclusive lock on {dir}/.lock without blocking. If
// another process already holds it, it fails immediately with
// kerr.ErrAlreadyOpen rather than waiting — a second engine instance
// pointed at the same directory is a misconfiguration, not a contention
// case to retry through.
func AcquireLock(dir string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, ".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", kerr.ErrIO, dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerr.ErrAlreadyOpen, dir)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock, letting another process open the directory.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
