// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/spf13/cobra"
	"luaugo.256lights.llc/pkg/internal/luau"
	"zombiezen.com/go/log"
)

type runOptions struct {
	filename   string
	args       []string
	jsonFormat bool
	timeout    time.Duration
}

func newRunCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "run [options] FILE [ARG [...]]",
		Short:                 "run a Luau script and print its results",
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.Flags().SetInterspersed(false)
	opts := new(runOptions)
	c.Flags().BoolVar(&opts.jsonFormat, "json", false, "print results as a JSON array")
	c.Flags().DurationVar(&opts.timeout, "timeout", 0, "stop the script after `duration` (0 for no limit)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.filename = args[0]
		opts.args = args[1:]
		return runRun(cmd.Context(), g, opts)
	}
	return c
}

func runRun(ctx context.Context, g *globalConfig, opts *runOptions) error {
	data, err := os.ReadFile(opts.filename)
	if err != nil {
		return err
	}
	bytecode := data
	if !isBytecode(data) {
		cache, err := g.openCache()
		if err != nil {
			return err
		}
		bytecode, err = g.compile(ctx, cache, data)
		closeCache(ctx, cache)
		if err != nil {
			return fmt.Errorf("%s: %v", opts.filename, err)
		}
	} else {
		log.Debugf(ctx, "Treating %s as precompiled bytecode", opts.filename)
	}

	state, err := luau.NewState()
	if err != nil {
		return err
	}
	defer state.Close()
	if g.Codegen {
		if state.EnableCodegen() {
			log.Debugf(ctx, "Native code generation enabled")
		} else {
			log.Debugf(ctx, "Native code generation not supported on this platform")
		}
	}
	state.OpenLibraries()

	if err := state.Load("@"+opts.filename, bytecode); err != nil {
		return err
	}
	if g.Codegen && state.CompileNative(-1) {
		log.Debugf(ctx, "Compiled %s to native code", opts.filename)
	}
	if !state.CheckStack(len(opts.args)) {
		return fmt.Errorf("%s: too many arguments", opts.filename)
	}
	for _, arg := range opts.args {
		pushArgument(state, arg)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	if err := state.Call(ctx, len(opts.args), luau.MultipleReturns, 0); err != nil {
		return err
	}

	results := make([]any, 0, state.Top())
	for i := 1; i <= state.Top(); i++ {
		results = append(results, resultValue(state, i))
	}
	if opts.jsonFormat {
		out, err := jsonv2.Marshal(results)
		if err != nil {
			return err
		}
		out = append(out, '\n')
		_, err = os.Stdout.Write(out)
		return err
	}
	for _, v := range results {
		if v == nil {
			fmt.Println("nil")
		} else {
			fmt.Println(v)
		}
	}
	return nil
}

// isBytecode reports whether data looks like compiled bytecode
// rather than source text.
// Bytecode begins with a small version number
// (or zero for an encoded compile error),
// whereas source text begins with a printable character or whitespace.
func isBytecode(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch c := data[0]; c {
	case '\t', '\n', '\r':
		return false
	default:
		return c < 0x20
	}
}

// pushArgument pushes a command-line argument as an integer
// if it parses as one that fits in the engine's integer type,
// as a number if it parses as any other numeral,
// or as a string otherwise.
func pushArgument(l *luau.State, arg string) {
	if i, err := strconv.ParseInt(arg, 10, 32); err == nil {
		l.PushInteger(int(i))
		return
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		l.PushNumber(f)
		return
	}
	l.PushString(arg)
}

// resultValue converts the value at idx into a Go value for printing.
// Values with no Go equivalent are described by their type.
func resultValue(l *luau.State, idx int) any {
	switch tp := l.Type(idx); tp {
	case luau.TypeNil, luau.TypeNone:
		return nil
	case luau.TypeBoolean:
		return l.ToBoolean(idx)
	case luau.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case luau.TypeString:
		s, _ := l.ToString(idx)
		return s
	default:
		return "<" + tp.String() + ">"
	}
}
