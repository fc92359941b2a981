package buildcore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// enumerateSources walks roots and returns every regular file whose
// extension is in extensions, sorted for deterministic ordering. Uses
// karrick/godirwalk instead of filepath.Walk for the same reason
// golang-dep vendored it: far fewer syscalls per directory on large
// trees, since Dirent type information comes back with the readdir call.
func enumerateSources(roots []string, extensions []string) ([]string, error) {
	wanted := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		wanted[e] = true
	}

	var found []string
	for _, root := range roots {
		err := godirwalk.Walk(root, &godirwalk.Options{
			Unsorted: true,
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				if wanted[filepath.Ext(osPathname)] {
					found = append(found, osPathname)
				}
				return nil
			},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "enumerating sources under %s", root)
		}
	}
	sort.Strings(found)
	return found, nil
}

// probePaths produces path -> (mtime, size) for every path given,
// deduplicating repeats (an external resource shared by many sources is
// stat'd at most once), per spec.md §4.2. A path that cannot be stat'd is
// reported in the returned missing set rather than aborting the whole probe, so the
// caller can treat just that path as changed/stale.
func probePaths(paths []string) (stats map[string]statInfo, missing map[string]bool) {
	stats = make(map[string]statInfo, len(paths))
	missing = make(map[string]bool)
	seen := make(map[string]bool, len(paths))

	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		fi, err := os.Stat(p)
		if err != nil {
			missing[p] = true
			continue
		}
		stats[p] = statInfo{ModTime: fi.ModTime(), Size: fi.Size()}
	}
	return stats, missing
}

// collectProbeTargets gathers every path the probe must consider: each
// source itself plus every external resource any source declares.
func collectProbeTargets(sources []SourceRecord) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, s := range sources {
		add(s.Source)
		for _, ext := range s.External {
			add(ext)
		}
	}
	return out
}

func hasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
