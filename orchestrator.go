package buildcore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Outcome is the top-level result of a Compile call (spec.md §4.6 step 10).
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeNoop
)

// Options mirrors spec.md §6's recognized `opts`, plus the external
// collaborators (Compiler, LexicalTracker, ModuleMetadata, Upstream) that
// spec.md §1 places out of scope and consumes only through interfaces.
type Options struct {
	Force                    bool
	Verbose                  bool
	LongCompilationThreshold time.Duration
	AllWarnings              bool
	CompilerOptions          map[string]string

	Compiler Compiler
	Lexical  LexicalTracker
	Meta     ModuleMetadata
	Upstream []UpstreamDep

	// OnUpstreamRefresh is notified once the manifest has been written
	// successfully (spec.md §4.1's final write step: "notifies the
	// dependency system that the upstream toolchain lock should be
	// refreshed"). The dependency system itself is an external
	// collaborator out of scope for this core (spec.md §1); nil is a
	// valid no-op.
	OnUpstreamRefresh func()
}

// Compile is the single public entry point (spec.md §4.6). It enumerates
// sources under the given roots, determines the stale set, drives the
// Compile Coordinator over it, and atomically updates the manifest.
func Compile(ctx *Ctx, roots []string, dest string, extensions []string, force bool, opts Options) (Outcome, []Diagnostic, error) {
	// spec.md §6 recognizes both a positional force arg and a `force`/
	// `verbose` opts key; reconcile them into the single effective value
	// each call site below consults.
	force = force || opts.Force
	ctx.Verbose = ctx.Verbose || opts.Verbose

	if err := os.MkdirAll(ctx.CompileDir, 0o755); err != nil {
		return 0, nil, errors.Wrapf(err, "creating compile directory %s", ctx.CompileDir)
	}
	lock := newBuildLock(ctx.CompileDir)
	if err := lock.acquire(); err != nil {
		return 0, nil, err
	}
	defer lock.release()

	// Step 1: capture the instant before any file is read, so any write
	// that happens during this build is detected as changed next time.
	timestamp := time.Now()

	// Step 2: enumerate current sources.
	currentPaths, err := enumerateSources(roots, extensions)
	if err != nil {
		return 0, nil, errors.Wrap(err, "enumerating sources")
	}

	// Step 3: read the manifest.
	prevModules, prevSources, migrated, err := readManifest(ctx.ManifestPath, ctx.CompileDir)
	if err != nil {
		return 0, nil, errors.Wrap(err, "reading manifest")
	}
	manifestMTime := manifestModTime(ctx.ManifestPath)

	prevByPath := make(map[string]SourceRecord, len(prevSources))
	for _, s := range prevSources {
		prevByPath[s.Source] = s
	}
	currentSet := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		currentSet[p] = true
	}

	// Step 4: removed = prev paths not in current paths.
	removed := make(map[string]bool)
	for p := range prevByPath {
		if !currentSet[p] {
			removed[p] = true
		}
	}
	// A version-migrated manifest already comes back with empty
	// prevSources (manifest.go), so removed is empty here too - migrated
	// only matters below, to force a manifest write even with nothing
	// stale to compile.

	// Step 5: changed set. Every source's own path plus every external
	// resource any source declares is probed in one batched, deduplicated
	// pass (spec.md §4.2) rather than one probePaths call per source.
	changed := make(map[string]bool)
	if force {
		for _, p := range currentPaths {
			changed[p] = true
		}
	} else {
		// External paths are stored relative to the project root (see
		// normalizeExternal); resolve them against it before probing.
		probed := make([]SourceRecord, 0, len(prevSources))
		probedByPath := make(map[string]SourceRecord, len(prevSources))
		for _, s := range prevSources {
			exts := make([]string, len(s.External))
			for i, ext := range s.External {
				if !filepath.IsAbs(ext) {
					ext = filepath.Join(ctx.ProjectRoot, ext)
				}
				exts[i] = ext
			}
			s.External = exts
			probed = append(probed, s)
			probedByPath[s.Source] = s
		}
		stats, missing := probePaths(collectProbeTargets(probed))
		for _, p := range currentPaths {
			prev, known := probedByPath[p]
			if !known {
				changed[p] = true
				continue
			}
			if sourceChanged(prev, manifestMTime, stats, missing) {
				changed[p] = true
			}
		}
	}

	// Step 6: seed stale modules from the Upstream Dep Scanner.
	staleModules := scanUpstream(opts.Upstream, manifestMTime)

	// Step 7: run the staleness solver.
	seedChanged := make(map[string]bool, len(removed)+len(changed))
	for p := range removed {
		seedChanged[p] = true
	}
	for p := range changed {
		seedChanged[p] = true
	}
	result := solveStaleness(prevModules, prevSources, seedChanged, staleModules)

	// Step 8: stale_to_compile = solver.changed - removed.
	staleToCompile := make([]string, 0, len(result.ToCompile))
	for p := range result.ToCompile {
		if !removed[p] {
			staleToCompile = append(staleToCompile, p)
		}
	}

	// Step 9: rebuild the sources structure - drop removed, replace
	// changed with an empty skeleton the coordinator will refill.
	sources := make([]SourceRecord, 0, len(prevSources))
	changedSet := make(map[string]bool, len(result.ToCompile))
	for p := range result.ToCompile {
		changedSet[p] = true
	}
	for _, s := range prevSources {
		if removed[s.Source] {
			continue
		}
		if changedSet[s.Source] {
			continue // refilled by the coordinator below
		}
		sources = append(sources, s)
	}
	for _, p := range staleToCompile {
		skeleton := SourceRecord{Source: p}
		if fi, err := os.Stat(p); err == nil {
			skeleton.Size = fi.Size()
		}
		sources = append(sources, skeleton)
	}

	var warnings []Diagnostic
	if opts.AllWarnings {
		warnings = append(warnings, reEmitWarnings(sources, ctx.CompilerName)...)
	}

	// Step 10: decide the outcome.
	if len(staleToCompile) > 0 {
		if opts.Compiler == nil || opts.Lexical == nil || opts.Meta == nil {
			return 0, nil, errors.New("buildcore: Compiler, Lexical, and Meta must all be configured for a build with a non-empty stale set")
		}
		coord := runCoordinator(opts.Compiler, opts.Lexical, opts.Meta, staleToCompile, result.Surviving, sources, CoordinatorOptions{
			ProjectRoot:              ctx.ProjectRoot,
			InternalPrefixes:         ctx.InternalPrefixes,
			LongCompilationThreshold: opts.LongCompilationThreshold,
			Extra:                    opts.CompilerOptions,
			OnLongCompilation: func(source string) {
				ctx.logVerbosef("%s took longer than expected to compile", source)
			},
		})

		stampCompilerName(coord.Errors, ctx.CompilerName)
		stampCompilerName(coord.Warnings, ctx.CompilerName)

		if coord.Outcome == CompileOutcomeError {
			diags := append(coord.Errors, coord.Warnings...)
			return 0, diags, ErrCompileFailed
		}

		if err := writeManifest(ctx.ManifestPath, coord.Modules, coord.Sources, ctx.CompileDir, timestamp, opts.OnUpstreamRefresh); err != nil {
			return 0, nil, errors.Wrap(err, "writing manifest")
		}
		purgeDroppedArtifacts(ctx.CompileDir, result.Dropped, coord.Modules)
		return OutcomeOk, append(warnings, coord.Warnings...), nil
	}

	if len(removed) > 0 || migrated {
		if err := writeManifest(ctx.ManifestPath, result.Surviving, sources, ctx.CompileDir, timestamp, opts.OnUpstreamRefresh); err != nil {
			return 0, nil, errors.Wrap(err, "writing manifest")
		}
		purgeDroppedArtifacts(ctx.CompileDir, result.Dropped, result.Surviving)
		return OutcomeOk, warnings, nil
	}

	return OutcomeNoop, warnings, nil
}

// Clean deletes every artifact listed in the manifest (spec.md §6).
func Clean(ctx *Ctx) error {
	modules, _, _, err := readManifest(ctx.ManifestPath, ctx.CompileDir)
	if err != nil {
		return errors.Wrap(err, "reading manifest")
	}
	for _, m := range modules {
		// Best-effort: a purge failure for one artifact must not abort
		// cleanup of the rest (spec.md §7, "cleanup is best-effort").
		_ = os.Remove(m.Beam)
	}
	return nil
}

// ReadManifest returns the manifest's records with artifact paths already
// expanded under compileDir (spec.md §6, §9 Open Question 2: callers must
// not re-join compileDir themselves).
func ReadManifest(manifestPath, compileDir string) ([]ModuleRecord, []SourceRecord, error) {
	if _, err := os.Stat(manifestPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoManifest
		}
		return nil, nil, errors.Wrap(err, "statting manifest")
	}
	modules, sources, _, err := readManifest(manifestPath, compileDir)
	if err != nil {
		return nil, nil, err
	}
	return modules, sources, nil
}

// ProtocolsAndImpls filters module records of kind protocol or impl
// (spec.md §6). As with ReadManifest, Beam paths come back already
// expanded under compileDir; callers must not re-join them.
func ProtocolsAndImpls(manifestPath, compileDir string) ([]ModuleRecord, error) {
	modules, _, err := ReadManifest(manifestPath, compileDir)
	if err != nil {
		return nil, err
	}
	out := make([]ModuleRecord, 0, len(modules))
	for _, m := range modules {
		if m.Kind == KindProtocol || m.Kind == KindImpl {
			out = append(out, m)
		}
	}
	return out, nil
}

func manifestModTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// sourceChanged implements spec.md §4.6 step 5's per-source predicate: a
// file is changed if its recorded size differs from what's on disk, or if
// its own mtime or any of its external resources' mtime exceeds the
// manifest's mtime. stats/missing come from a single batched probePaths
// call over every prior source's targets (collectProbeTargets), not a
// fresh probe per source.
func sourceChanged(prev SourceRecord, manifestMTime time.Time, stats map[string]statInfo, missing map[string]bool) bool {
	if missing[prev.Source] {
		return true // handled as "removed" by the caller normally, but a
		// race between enumeration and probing treats it as changed.
	}
	if info, ok := stats[prev.Source]; ok {
		if info.Size != prev.Size {
			return true
		}
		if info.ModTime.After(manifestMTime) {
			return true
		}
	}
	for _, ext := range prev.External {
		if missing[ext] {
			return true
		}
		if info, ok := stats[ext]; ok && info.ModTime.After(manifestMTime) {
			return true
		}
	}
	return false
}

// reEmitWarnings surfaces warnings already attached to unchanged sources
// at build start, per the `all_warnings` option (spec.md §6).
func reEmitWarnings(sources []SourceRecord, compilerName string) []Diagnostic {
	var out []Diagnostic
	for _, s := range sources {
		for _, w := range s.Warnings {
			out = append(out, Diagnostic{
				File:         s.Source,
				Position:     w.Line,
				Message:      w.Message,
				Severity:     SeverityWarning,
				CompilerName: compilerName,
			})
		}
	}
	return out
}

// purgeDroppedArtifacts removes the beam of every module the solver
// dropped (spec.md §4.4: a dirty module's artifact must be purged) that
// didn't end up recompiled into kept, e.g. a module whose sole source was
// removed rather than edited. A module that was dropped and then
// recompiled reappears in kept with a fresh beam, which writeManifest
// already wrote in its place - purging it here would delete that fresh
// artifact. Best-effort: a purge failure for one id must not abort the
// others (spec.md §7).
func purgeDroppedArtifacts(compileDir string, dropped []string, kept []ModuleRecord) {
	if len(dropped) == 0 {
		return
	}
	survivingIDs := make(map[string]bool, len(kept))
	for _, m := range kept {
		survivingIDs[m.Module] = true
	}
	for _, id := range dropped {
		if survivingIDs[id] {
			continue
		}
		_ = os.Remove(filepath.Join(compileDir, id+".beam"))
	}
}

func stampCompilerName(diags []Diagnostic, name string) {
	for i := range diags {
		diags[i].CompilerName = name
	}
}
