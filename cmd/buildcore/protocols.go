// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/gomaster-me/buildcore"
)

const protocolsShortHelp = `List protocol and protocol-impl modules`
const protocolsLongHelp = `
Protocols filters the manifest's module records down to those of kind
protocol or impl.
`

type protocolsCommand struct {
	dest     string
	manifest string
}

func (c *protocolsCommand) Name() string      { return "protocols" }
func (c *protocolsCommand) Args() string      { return "" }
func (c *protocolsCommand) ShortHelp() string { return protocolsShortHelp }
func (c *protocolsCommand) LongHelp() string  { return protocolsLongHelp }
func (c *protocolsCommand) Hidden() bool      { return false }

func (c *protocolsCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.dest, "dest", "_build", "compile directory")
	fs.StringVar(&c.manifest, "manifest", "_build/manifest", "manifest file path")
}

func (c *protocolsCommand) Run(ctx *buildcore.Ctx, args []string) error {
	modules, err := buildcore.ProtocolsAndImpls(c.manifest, c.dest)
	if err != nil {
		return err
	}
	for _, m := range modules {
		ctx.Out.Logf("%s (%s)\n", m.Module, m.Kind)
	}
	return nil
}
