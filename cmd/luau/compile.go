// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"zombiezen.com/go/log"
)

type compileOptions struct {
	inputFilename  string
	outputFilename string
}

func newCompileCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "compile [options] FILE",
		Short:                 "compile a Luau source file to bytecode",
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(compileOptions)
	c.Flags().StringVarP(&opts.outputFilename, "output", "o", "", "output to `file` (default stdout)")
	c.Flags().IntVarP(&g.OptimizationLevel, "optimize", "O", g.OptimizationLevel, "optimization `level` (0-2)")
	c.Flags().IntVarP(&g.DebugLevel, "debug-level", "g", g.DebugLevel, "debug information `level` (0-2)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.inputFilename = args[0]
		if opts.outputFilename == "" && term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("refusing to send bytecode to stdout (a tty). Pass --output=- to override.")
		}
		return runCompile(cmd.Context(), g, opts)
	}
	return c
}

func runCompile(ctx context.Context, g *globalConfig, opts *compileOptions) (err error) {
	source, err := os.ReadFile(opts.inputFilename)
	if err != nil {
		return err
	}

	cache, err := g.openCache()
	if err != nil {
		return err
	}
	defer closeCache(ctx, cache)

	bytecode, err := g.compile(ctx, cache, source)
	if err != nil {
		return fmt.Errorf("%s: %v", opts.inputFilename, err)
	}
	log.Debugf(ctx, "Compiled %s to %d bytes (%v)", opts.inputFilename, len(bytecode), g.compileOptions())

	var out io.Writer = os.Stdout
	if opts.outputFilename != "" && opts.outputFilename != "-" {
		f, err := os.Create(opts.outputFilename)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		out = f
	}
	if _, err := out.Write(bytecode); err != nil {
		return err
	}
	return nil
}
