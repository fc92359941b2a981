package buildcore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildLockExclusion(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	a := newBuildLock(dir)
	if err := a.acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer a.release()

	b := newBuildLock(dir)
	if err := b.acquire(); err != ErrBuildInProgress {
		t.Fatalf("expected ErrBuildInProgress on contention, got %v", err)
	}

	if err := a.release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	c := newBuildLock(dir)
	if err := c.acquire(); err != nil {
		t.Fatalf("expected to acquire after release, got %v", err)
	}
	defer c.release()
}

func TestBuildLockPath(t *testing.T) {
	dir := t.TempDir()
	l := newBuildLock(dir)
	if err := l.acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.release()

	if _, err := os.Stat(filepath.Join(dir, ".build.lock")); err != nil {
		t.Fatalf("expected lock file on disk: %v", err)
	}
}
