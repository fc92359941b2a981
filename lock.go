package buildcore

import (
	"path/filepath"

	"github.com/theckman/go-flock"
)

// buildLock advisory-locks a compile directory for the duration of one
// Compile call. spec.md §5 leaves concurrent builders undefined behavior;
// this resolves that Open Question (see DESIGN.md) by turning it into a
// reported ErrBuildInProgress instead of letting two builders corrupt the
// same manifest and artifact set.
type buildLock struct {
	fl *flock.Flock
}

func newBuildLock(compileDir string) *buildLock {
	return &buildLock{fl: flock.NewFlock(filepath.Join(compileDir, ".build.lock"))}
}

// acquire takes the lock without blocking. It returns ErrBuildInProgress
// if another process already holds it.
func (b *buildLock) acquire() error {
	ok, err := b.fl.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrBuildInProgress
	}
	return nil
}

func (b *buildLock) release() error {
	return b.fl.Unlock()
}
