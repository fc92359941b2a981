package buildcore

import (
	"os"

	"github.com/gomaster-me/buildcore/log"
)

// Ctx is the supporting context threaded through every public operation,
// adapted from golang-dep's own Ctx (working directory, environment,
// loggers) down to what this narrower core actually needs: where the
// project lives, where compiled artifacts go, where the manifest lives,
// and where diagnostics should be written.
type Ctx struct {
	// ProjectRoot is the absolute path external-resource paths are
	// normalized against.
	ProjectRoot string
	// CompileDir is where compiled artifacts (and the build lock file)
	// live.
	CompileDir string
	// ManifestPath is the manifest file's path.
	ManifestPath string
	// InternalPrefixes are module-id prefixes filtered out of reference
	// and dispatch edges as internal-toolchain noise (spec.md §4.5).
	InternalPrefixes []string
	// CompilerName is stamped onto every Diagnostic this Ctx produces
	// (spec.md §7); the zero value means "unset".
	CompilerName string

	Out, Err *log.Logger
	Verbose  bool
}

// NewContext returns a Ctx rooted at projectRoot with loggers writing to
// os.Stdout/os.Stderr, mirroring cmd/dep's own default wiring in main.go
// before any flags are applied.
func NewContext(projectRoot, compileDir, manifestPath string) *Ctx {
	return &Ctx{
		ProjectRoot:  projectRoot,
		CompileDir:   compileDir,
		ManifestPath: manifestPath,
		Out:          log.New(os.Stdout),
		Err:          log.New(os.Stderr),
	}
}

func (c *Ctx) logVerbosef(format string, args ...interface{}) {
	if c.Verbose && c.Out != nil {
		c.Out.LogBuildfln(format, args...)
	}
}
