package buildcore

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// CompilerDiagnostic is a single (file, line, message) triple as returned
// by the external parallel compiler (spec.md §6).
type CompilerDiagnostic struct {
	File    string
	Line    int
	Message string
}

// ModuleCallback is fired once per completed module compilation.
type ModuleCallback func(source, moduleID string, binary []byte)

// LongCompilationCallback is fired when a single source's compilation
// exceeds the configured threshold.
type LongCompilationCallback func(source string)

// CompileOptions is what the coordinator passes to the external parallel
// compiler (spec.md §6).
type CompileOptions struct {
	OnModule                 ModuleCallback
	OnLongCompilation        LongCompilationCallback
	LongCompilationThreshold time.Duration
	Dest                     string
	Extra                    map[string]string
}

// CompileOutcome mirrors the compiler's own (Ok|Error, ...) result shape.
type CompileOutcome int

const (
	CompileOutcomeOk CompileOutcome = iota
	CompileOutcomeError
)

// CompileResult is the external parallel compiler's output (spec.md §6).
type CompileResult struct {
	Outcome  CompileOutcome
	Errors   []CompilerDiagnostic
	Warnings []CompilerDiagnostic
}

// Compiler is the external parallel compiler this core drives. The
// compiler front-end itself (lex/parse/type-check/codegen) is explicitly
// out of scope (spec.md §1); this is the interface the coordinator
// consumes from it.
type Compiler interface {
	Compile(sources []string, opts CompileOptions) (CompileResult, error)
}

// LexicalTracker is consumed to classify a freshly compiled module's
// remote references into compile-time vs. runtime edges (spec.md §6).
type LexicalTracker interface {
	References(moduleID string) (compileRefs, runtimeRefs []string, compileDispatches, runtimeDispatches []Dispatch, err error)
}

// ModuleMetadata is consumed to retrieve a compiled module's protocol,
// protocol-impl, and external-resource attributes (spec.md §6).
type ModuleMetadata interface {
	Attributes(moduleID string) (kind ModuleKind, implOf string, external []string, err error)
}

// CoordinatorOptions configures one coordinator run.
type CoordinatorOptions struct {
	ProjectRoot              string
	InternalPrefixes         []string
	LongCompilationThreshold time.Duration
	Extra                    map[string]string
	OnLongCompilation        func(source string)
}

// CoordinatorResult is what runCoordinator hands back to the orchestrator.
type CoordinatorResult struct {
	Outcome  CompileOutcome
	Modules  []ModuleRecord
	Sources  []SourceRecord
	Errors   []Diagnostic
	Warnings []Diagnostic
}

// runCoordinator implements the Compile Coordinator (spec.md §4.5): it
// invokes compiler on toCompile, classifies every completed module
// through lexical/meta, and funnels every update through a single-writer
// updater so concurrent module callbacks from the compiler's own worker
// threads never race. On a compiler error, in-memory updates are
// discarded and the previous manifest is left untouched by the caller.
func runCoordinator(compiler Compiler, lexical LexicalTracker, meta ModuleMetadata, toCompile []string, priorModules []ModuleRecord, priorSources []SourceRecord, opts CoordinatorOptions) CoordinatorResult {
	up := newUpdater(priorModules, priorSources)

	onModule := func(source, moduleID string, binary []byte) {
		kind, implOf, external, err := meta.Attributes(moduleID)
		if err != nil {
			// Metadata retrieval failing for a module that just compiled
			// successfully indicates the external collaborator is
			// misbehaving; fall back to "plain module" rather than
			// losing the update entirely.
			kind = KindModule
		}

		compileRefs, runtimeRefs, compileDispatches, runtimeDispatches, _ := lexical.References(moduleID)
		compileRefs = filterReferences(compileRefs, moduleID, opts.InternalPrefixes)
		runtimeRefs = filterReferences(runtimeRefs, moduleID, opts.InternalPrefixes)
		compileDispatches = filterDispatches(compileDispatches, moduleID, opts.InternalPrefixes)
		runtimeDispatches = filterDispatches(runtimeDispatches, moduleID, opts.InternalPrefixes)

		rec := ModuleRecord{
			Module: moduleID,
			Kind:   kind,
			Impl:   implOf,
			Binary: binary,
		}

		up.post(moduleUpdate{
			source:            source,
			module:            rec,
			external:          normalizeExternal(external, opts.ProjectRoot),
			compileReferences: compileRefs,
			runtimeReferences: runtimeRefs,
			compileDispatches: compileDispatches,
			runtimeDispatches: runtimeDispatches,
		})
	}

	onLong := func(source string) {
		if opts.OnLongCompilation != nil {
			opts.OnLongCompilation(source)
		}
	}

	result, err := compiler.Compile(toCompile, CompileOptions{
		OnModule:                 onModule,
		OnLongCompilation:        onLong,
		LongCompilationThreshold: opts.LongCompilationThreshold,
		Dest:                     opts.ProjectRoot,
		Extra:                    opts.Extra,
	})

	if err != nil || result.Outcome == CompileOutcomeError {
		// Discard in-memory updates; the previous manifest remains
		// authoritative (spec.md §4.5, §5 Cancellation).
		up.close()
		errs := toDiagnostics(result.Errors, SeverityError)
		if err != nil {
			errs = append(errs, Diagnostic{Message: err.Error(), Severity: SeverityError})
		}
		return CoordinatorResult{
			Outcome:  CompileOutcomeError,
			Errors:   errs,
			Warnings: toDiagnostics(result.Warnings, SeverityWarning),
		}
	}

	modules, sources := up.close()
	sources = attachWarnings(sources, result.Warnings)

	return CoordinatorResult{
		Outcome:  CompileOutcomeOk,
		Modules:  modules,
		Sources:  sources,
		Warnings: toDiagnostics(result.Warnings, SeverityWarning),
	}
}

func filterReferences(refs []string, self string, internalPrefixes []string) []string {
	out := refs[:0:0]
	for _, r := range refs {
		if r == self || hasInternalPrefix(r, internalPrefixes) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func filterDispatches(ds []Dispatch, self string, internalPrefixes []string) []Dispatch {
	out := ds[:0:0]
	for _, d := range ds {
		if d.Module == self || hasInternalPrefix(d.Module, internalPrefixes) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// normalizeExternal rewrites declared external-resource paths relative to
// projectRoot, per spec.md §4.5.
func normalizeExternal(paths []string, projectRoot string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(projectRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
			out = append(out, rel)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// attachWarnings groups compiler warnings by absolute source path and
// attaches them to the matching source record (spec.md §4.5).
func attachWarnings(sources []SourceRecord, warnings []CompilerDiagnostic) []SourceRecord {
	bySource := make(map[string][]Warning)
	for _, w := range warnings {
		bySource[w.File] = append(bySource[w.File], Warning{Line: w.Line, Message: w.Message})
	}
	out := make([]SourceRecord, len(sources))
	for i, s := range sources {
		if ws, ok := bySource[s.Source]; ok {
			s.Warnings = ws
		}
		out[i] = s
	}
	return out
}

// poolCompiler is a reference Compiler implementation driving an injected
// FrontEnd over a bounded worker pool with golang.org/x/sync/errgroup,
// standing in for the parallel scheduling policy spec.md §1 explicitly
// delegates. FrontEnd performs the actual lex/parse/codegen work, which
// remains out of scope for this package.
type FrontEnd func(source string) (moduleID string, binary []byte, warnings []CompilerDiagnostic, took time.Duration, err error)

type poolCompiler struct {
	frontEnd    FrontEnd
	concurrency int
}

// NewPoolCompiler returns a Compiler that runs frontEnd over up to
// concurrency sources at a time. concurrency <= 0 defaults to
// runtime.NumCPU().
func NewPoolCompiler(frontEnd FrontEnd, concurrency int) Compiler {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &poolCompiler{frontEnd: frontEnd, concurrency: concurrency}
}

func (p *poolCompiler) Compile(sources []string, opts CompileOptions) (CompileResult, error) {
	g, _ := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, p.concurrency)

	var result CompileResult
	var mu sync.Mutex

	for _, src := range sources {
		src := src
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()

			moduleID, binary, warnings, took, err := p.frontEnd(src)
			if err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, CompilerDiagnostic{File: src, Message: err.Error()})
				mu.Unlock()
				return nil
			}
			if len(warnings) > 0 {
				mu.Lock()
				result.Warnings = append(result.Warnings, warnings...)
				mu.Unlock()
			}
			if opts.LongCompilationThreshold > 0 && took > opts.LongCompilationThreshold && opts.OnLongCompilation != nil {
				opts.OnLongCompilation(src)
			}
			if opts.OnModule != nil {
				opts.OnModule(src, moduleID, binary)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, errors.Wrap(err, "compiling sources")
	}

	if len(result.Errors) > 0 {
		result.Outcome = CompileOutcomeError
	} else {
		result.Outcome = CompileOutcomeOk
	}
	return result, nil
}
