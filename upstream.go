package buildcore

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
)

// UpstreamDep describes one local, already-built dependency this project
// links against at compile time. Only local (non-fetchable) dependencies
// are scanned here - the project and dependency resolver that would fetch
// a remote dependency is an external collaborator (spec.md §1).
type UpstreamDep struct {
	// BuildDir is the dependency's own build/compile directory, where its
	// manifest and artifacts live.
	BuildDir string
	// ManifestName is the basename of the dependency's own manifest,
	// looked up inside BuildDir.
	ManifestName string
	// LoadPaths are directories (usually just BuildDir) globbed for
	// compiled artifacts when the dependency's own manifest looks newer
	// than ours.
	LoadPaths []string
	// ArtifactExt is the artifact extension to glob for, e.g. ".beam".
	ArtifactExt string
}

// scanUpstream implements the Upstream Dep Scanner (spec.md §4.3): for
// each dependency whose own build manifest is newer than manifestMTime, it
// globs that dependency's load paths for artifacts newer than
// manifestMTime and returns their basenames (sans extension) as stale
// module ids. This set seeds the Staleness Solver.
func scanUpstream(deps []UpstreamDep, manifestMTime time.Time) map[string]bool {
	stale := make(map[string]bool)

	for _, dep := range deps {
		depManifest := filepath.Join(dep.BuildDir, dep.ManifestName)
		fi, err := os.Stat(depManifest)
		if err != nil || !fi.ModTime().After(manifestMTime) {
			continue
		}

		for _, loadPath := range dep.LoadPaths {
			_ = godirwalk.Walk(loadPath, &godirwalk.Options{
				Unsorted: true,
				Callback: func(osPathname string, de *godirwalk.Dirent) error {
					if de.IsDir() {
						return nil
					}
					if !hasExtension(osPathname, []string{dep.ArtifactExt}) {
						return nil
					}
					afi, err := os.Stat(osPathname)
					if err != nil || !afi.ModTime().After(manifestMTime) {
						return nil
					}
					base := filepath.Base(osPathname)
					stale[strings.TrimSuffix(base, dep.ArtifactExt)] = true
					return nil
				},
			})
		}
	}

	return stale
}
