//go:build !unix

package lock

import (
	"errors"
	"os"
	"sync"
)

// Without flock, locks only exclude other runs within this process.
var (
	heldMu sync.Mutex
	held   = map[string]bool{}
)

func tryLock(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	if held[f.Name()] {
		return ErrLocked
	}
	held[f.Name()] = true
	return nil
}

func unlock(f *os.File) error {
	heldMu.Lock()
	defer heldMu.Unlock()
	if !held[f.Name()] {
		return errors.New("lock not held")
	}
	delete(held, f.Name())
	return nil
}
