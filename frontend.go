package buildcore

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// execModuleInfo is the JSON shape an external compiler front-end reports
// for one compiled source, grounded on vcs_repo.go's pattern of shelling
// out to an external tool (there git/hg/bzr, here the actual compiler)
// and parsing its output rather than reimplementing it.
type execModuleInfo struct {
	Module            string         `json:"module"`
	Kind              string         `json:"kind"`
	ImplOf            string         `json:"impl_of,omitempty"`
	Artifact          string         `json:"artifact"`
	CompileReferences []string       `json:"compile_references,omitempty"`
	RuntimeReferences []string       `json:"runtime_references,omitempty"`
	CompileDispatches []execDispatch `json:"compile_dispatches,omitempty"`
	RuntimeDispatches []execDispatch `json:"runtime_dispatches,omitempty"`
	External          []string       `json:"external,omitempty"`
	Warnings          []execWarning  `json:"warnings,omitempty"`
}

type execDispatch struct {
	Module string `json:"module"`
	Func   string `json:"func"`
	Arity  int    `json:"arity"`
}

type execWarning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ExecFrontEnd adapts a single external compiler binary into the
// Compiler, LexicalTracker, and ModuleMetadata interfaces the coordinator
// consumes (spec.md §1: the compiler front-end is an out-of-scope,
// external collaborator - this is the reference adapter that shells out
// to it, one invocation per source: "<command> <source> <destDir>"
// producing one execModuleInfo JSON object on stdout).
type ExecFrontEnd struct {
	Command string
	DestDir string

	mu    sync.Mutex
	byMod map[string]execModuleInfo
}

// NewExecFrontEnd returns an ExecFrontEnd invoking command for each
// source, writing artifacts under destDir.
func NewExecFrontEnd(command, destDir string) *ExecFrontEnd {
	return &ExecFrontEnd{Command: command, DestDir: destDir, byMod: make(map[string]execModuleInfo)}
}

func (e *ExecFrontEnd) run(source string) (execModuleInfo, []byte, time.Duration, error) {
	start := time.Now()
	cmd := exec.Command(e.Command, source, e.DestDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return execModuleInfo{}, nil, time.Since(start), errors.New(msg)
	}

	var info execModuleInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return execModuleInfo{}, nil, time.Since(start), errors.Wrapf(err, "parsing front-end output for %s", source)
	}

	binary, err := readArtifact(info.Artifact)
	if err != nil {
		return execModuleInfo{}, nil, time.Since(start), err
	}

	e.mu.Lock()
	e.byMod[info.Module] = info
	e.mu.Unlock()

	return info, binary, time.Since(start), nil
}

// FrontEnd satisfies poolCompiler's FrontEnd hook.
func (e *ExecFrontEnd) FrontEnd(source string) (moduleID string, binary []byte, warnings []CompilerDiagnostic, took time.Duration, err error) {
	info, bin, took, err := e.run(source)
	if err != nil {
		return "", nil, nil, took, err
	}
	for _, w := range info.Warnings {
		warnings = append(warnings, CompilerDiagnostic{File: source, Line: w.Line, Message: w.Message})
	}
	return info.Module, bin, warnings, took, nil
}

// AsCompiler wraps the front-end in a bounded-concurrency Compiler, the
// reference implementation spec.md §1 delegates scheduling policy for.
func (e *ExecFrontEnd) AsCompiler(concurrency int) Compiler {
	return NewPoolCompiler(e.FrontEnd, concurrency)
}

func (e *ExecFrontEnd) References(moduleID string) (compileRefs, runtimeRefs []string, compileDispatches, runtimeDispatches []Dispatch, err error) {
	e.mu.Lock()
	info, ok := e.byMod[moduleID]
	e.mu.Unlock()
	if !ok {
		return nil, nil, nil, nil, errors.Errorf("no lexical report recorded for module %s", moduleID)
	}
	for _, d := range info.CompileDispatches {
		compileDispatches = append(compileDispatches, Dispatch{Module: d.Module, Func: d.Func, Arity: d.Arity})
	}
	for _, d := range info.RuntimeDispatches {
		runtimeDispatches = append(runtimeDispatches, Dispatch{Module: d.Module, Func: d.Func, Arity: d.Arity})
	}
	return info.CompileReferences, info.RuntimeReferences, compileDispatches, runtimeDispatches, nil
}

func (e *ExecFrontEnd) Attributes(moduleID string) (kind ModuleKind, implOf string, external []string, err error) {
	e.mu.Lock()
	info, ok := e.byMod[moduleID]
	e.mu.Unlock()
	if !ok {
		return KindModule, "", nil, errors.Errorf("no metadata recorded for module %s", moduleID)
	}
	switch info.Kind {
	case "protocol":
		kind = KindProtocol
	case "impl":
		kind = KindImpl
	default:
		kind = KindModule
	}
	return kind, info.ImplOf, info.External, nil
}

func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading artifact %s", path)
	}
	return b, nil
}
