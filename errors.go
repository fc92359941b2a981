package buildcore

import "errors"

// Sentinel errors returned by the public API. Causes picked up along the
// way are wrapped with github.com/pkg/errors elsewhere in the package;
// these are the plain, comparable values callers can check with
// errors.Is, the same split golang-dep itself uses between bare sentinels
// and wrapped causes.
var (
	// ErrBuildInProgress is returned by Compile when another build already
	// holds the compile directory's advisory lock (spec.md §5: concurrent
	// builders are undefined behavior; this core turns that into a clean
	// error instead of silent corruption).
	ErrBuildInProgress = errors.New("buildcore: a build is already in progress for this compile directory")

	// ErrNoManifest is returned by ReadManifest and ProtocolsAndImpls when
	// no manifest exists at the given path.
	ErrNoManifest = errors.New("buildcore: no manifest at the given path")

	// ErrCompileFailed is returned by Compile when the external compiler
	// reports errors; the accompanying []Diagnostic carries the detail
	// and the previous manifest is left untouched on disk (spec.md §4.5,
	// §7: "manifest NOT updated").
	ErrCompileFailed = errors.New("buildcore: compilation failed")
)
