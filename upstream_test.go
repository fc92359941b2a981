package buildcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScanUpstreamFindsNewerArtifacts(t *testing.T) {
	dir := t.TempDir()
	depDir := filepath.Join(dir, "dep")
	if err := os.MkdirAll(depDir, 0o755); err != nil {
		t.Fatal(err)
	}

	manifestMTime := time.Now().Add(-time.Hour)

	depManifest := filepath.Join(depDir, "manifest")
	mustWrite(t, depManifest, "m")
	if err := os.Chtimes(depManifest, time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}

	artifact := filepath.Join(depDir, "Foo.beam")
	mustWrite(t, artifact, "bin")
	if err := os.Chtimes(artifact, time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}

	deps := []UpstreamDep{{
		BuildDir:     depDir,
		ManifestName: "manifest",
		LoadPaths:    []string{depDir},
		ArtifactExt:  ".beam",
	}}

	stale := scanUpstream(deps, manifestMTime)
	if !stale["Foo"] {
		t.Fatalf("expected Foo to be reported stale, got %v", stale)
	}
}

func TestScanUpstreamSkipsOlderDependency(t *testing.T) {
	dir := t.TempDir()
	depDir := filepath.Join(dir, "dep")
	depManifest := filepath.Join(depDir, "manifest")
	mustWrite(t, depManifest, "m")

	old := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(depManifest, old, old); err != nil {
		t.Fatal(err)
	}

	deps := []UpstreamDep{{
		BuildDir:     depDir,
		ManifestName: "manifest",
		LoadPaths:    []string{depDir},
		ArtifactExt:  ".beam",
	}}

	stale := scanUpstream(deps, time.Now())
	if len(stale) != 0 {
		t.Fatalf("expected no stale modules from an older dependency manifest, got %v", stale)
	}
}
