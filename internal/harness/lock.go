package harness

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName lives in the suite root. Two concurrent runs would
// interleave make clean with each other's builds, so the engine refuses
// to start without the lock.
const lockFileName = ".covregress.lock"

// acquireLock takes an exclusive advisory lock on the suite. The caller
// must Unlock the returned lock when the run ends.
func acquireLock(suiteRoot string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(suiteRoot, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire suite lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("suite is locked by another run (%s)", lock.Path())
	}
	return lock, nil
}
