// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"luaugo.256lights.llc/pkg/internal/luau"
	"zombiezen.com/go/log"
)

// luaugoVersion is the version string filled in by the linker (e.g. "1.2.3").
var luaugoVersion string

func newVersionCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "version",
		Short:                 "show version information",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd.Context())
	}
	return c
}

func runVersion(ctx context.Context) error {
	firstLine := "luau"
	if luaugoVersion == "" {
		firstLine += " (version unknown)"
	} else {
		firstLine += " version " + luaugoVersion
	}

	engine := "unknown"
	state, err := luau.NewState()
	if err != nil {
		log.Errorf(ctx, "%v", err)
	} else {
		state.OpenLibraries()
		if _, err := state.Global(luau.VersionGlobal); err != nil {
			log.Errorf(ctx, "%v", err)
		} else if s, ok := state.ToString(-1); ok {
			engine = s
		}
		state.Close()
	}

	codegen := "unsupported"
	if luau.CodegenSupported() {
		codegen = "supported"
	}
	fmt.Printf("%s\nEngine:       %s\nNative code:  %s\nSystem:       %s/%s\nGo:           %s\nCPUs:         %d\n",
		firstLine, engine, codegen, runtime.GOOS, runtime.GOARCH, runtime.Version(), runtime.NumCPU())
	return nil
}
