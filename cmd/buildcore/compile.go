// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/gomaster-me/buildcore"
)

const compileShortHelp = `Compile the stale modules of a project`
const compileLongHelp = `
Compile enumerates source files under the given roots, determines which
modules are stale relative to the persisted manifest, drives the external
compiler over the stale set, and atomically updates the manifest.
`

type compileCommand struct {
	dest        string
	manifest    string
	extensions  string
	compilerCmd string
	force       bool
	allWarnings bool
	threshold   int
	concurrency int
}

func (c *compileCommand) Name() string      { return "compile" }
func (c *compileCommand) Args() string      { return "[roots...]" }
func (c *compileCommand) ShortHelp() string { return compileShortHelp }
func (c *compileCommand) LongHelp() string  { return compileLongHelp }
func (c *compileCommand) Hidden() bool      { return false }

func (c *compileCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.dest, "dest", "_build", "compile directory")
	fs.StringVar(&c.manifest, "manifest", "_build/manifest", "manifest file path")
	fs.StringVar(&c.extensions, "ext", ".src", "comma-separated source extensions")
	fs.StringVar(&c.compilerCmd, "compiler", "", "external compiler command (required)")
	fs.BoolVar(&c.force, "force", false, "force a full rebuild")
	fs.BoolVar(&c.allWarnings, "all-warnings", false, "re-emit warnings from unchanged sources")
	fs.IntVar(&c.threshold, "long-compilation-threshold", 10, "seconds before a source is reported as a long compilation")
	fs.IntVar(&c.concurrency, "concurrency", 0, "max concurrent compiles (0 = NumCPU)")
}

func (c *compileCommand) Run(ctx *buildcore.Ctx, args []string) error {
	if c.compilerCmd == "" {
		return fmt.Errorf("-compiler is required")
	}
	roots := args
	if len(roots) == 0 {
		roots = []string{ctx.ProjectRoot}
	}

	ctx.CompileDir = c.dest
	ctx.ManifestPath = c.manifest

	fe := buildcore.NewExecFrontEnd(c.compilerCmd, c.dest)

	outcome, diags, err := buildcore.Compile(ctx, roots, c.dest, strings.Split(c.extensions, ","), c.force, buildcore.Options{
		Force:                    c.force,
		Verbose:                  ctx.Verbose,
		AllWarnings:              c.allWarnings,
		LongCompilationThreshold: time.Duration(c.threshold) * time.Second,
		Compiler:                 fe.AsCompiler(c.concurrency),
		Lexical:                  fe,
		Meta:                     fe,
		OnUpstreamRefresh: func() {
			ctx.Out.LogBuildfln("upstream toolchain lock refreshed")
		},
	})

	for _, d := range diags {
		if d.Severity == buildcore.SeverityError {
			ctx.Err.Logf("%s:%d: %s\n", d.File, d.Position, d.Message)
		} else {
			ctx.Out.Logf("%s:%d: %s\n", d.File, d.Position, d.Message)
		}
	}
	if err != nil {
		return err
	}

	switch outcome {
	case buildcore.OutcomeOk:
		ctx.Out.Logln("buildcore: build complete")
	case buildcore.OutcomeNoop:
		ctx.Out.Logln("buildcore: nothing to do")
	}
	return nil
}
