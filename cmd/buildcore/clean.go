// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/gomaster-me/buildcore"
)

const cleanShortHelp = `Delete every artifact listed in the manifest`
const cleanLongHelp = `
Clean deletes every compiled artifact named in the manifest. The manifest
itself is left in place, so the next compile still compares sources
against it and does not rebuild artifacts for unchanged sources.
`

type cleanCommand struct {
	dest     string
	manifest string
}

func (c *cleanCommand) Name() string      { return "clean" }
func (c *cleanCommand) Args() string      { return "" }
func (c *cleanCommand) ShortHelp() string { return cleanShortHelp }
func (c *cleanCommand) LongHelp() string  { return cleanLongHelp }
func (c *cleanCommand) Hidden() bool      { return false }

func (c *cleanCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.dest, "dest", "_build", "compile directory")
	fs.StringVar(&c.manifest, "manifest", "_build/manifest", "manifest file path")
}

func (c *cleanCommand) Run(ctx *buildcore.Ctx, args []string) error {
	ctx.CompileDir = c.dest
	ctx.ManifestPath = c.manifest
	if err := buildcore.Clean(ctx); err != nil {
		return err
	}
	ctx.Out.Logln("buildcore: cleaned")
	return nil
}
