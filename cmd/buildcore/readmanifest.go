// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/gomaster-me/buildcore"
)

const readManifestShortHelp = `Print the persisted manifest`
const readManifestLongHelp = `
ReadManifest prints every module and source record in the manifest, with
artifact paths already expanded under the compile directory.
`

type readManifestCommand struct {
	dest     string
	manifest string
}

func (c *readManifestCommand) Name() string      { return "read-manifest" }
func (c *readManifestCommand) Args() string      { return "" }
func (c *readManifestCommand) ShortHelp() string { return readManifestShortHelp }
func (c *readManifestCommand) LongHelp() string  { return readManifestLongHelp }
func (c *readManifestCommand) Hidden() bool      { return false }

func (c *readManifestCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.dest, "dest", "_build", "compile directory")
	fs.StringVar(&c.manifest, "manifest", "_build/manifest", "manifest file path")
}

func (c *readManifestCommand) Run(ctx *buildcore.Ctx, args []string) error {
	modules, sources, err := buildcore.ReadManifest(c.manifest, c.dest)
	if err != nil {
		return err
	}
	for _, m := range modules {
		ctx.Out.Logf("module %s (%s) beam=%s sources=%v\n", m.Module, m.Kind, m.Beam, m.Sources)
	}
	for _, s := range sources {
		ctx.Out.Logf("source %s size=%d\n", s.Source, s.Size)
	}
	return nil
}
