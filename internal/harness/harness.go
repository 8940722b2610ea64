// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

// Package harness provides end-to-end scenarios that exercise the Luau binding:
// compiling and running a chunk,
// and propagating an error raised by a Go function.
package harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"luaugo.256lights.llc/pkg/internal/luau"
	"zombiezen.com/go/log"
)

// Inputs and expected observations of the scenarios.
const (
	SumSource       = "local a, b = ... return a + b"
	SumChunkName    = "sum"
	SumA            = 123
	SumB            = 321
	ExpectedVersion = "Luau"
	ErrorMessage    = "exception!"
)

// RunOptions holds optional parameters for [CompileAndRun].
type RunOptions struct {
	// Interpreted disables native code generation.
	// By default, the loaded function is compiled to native code
	// whenever the backend is available.
	Interpreted bool
	// ChunkName overrides [SumChunkName].
	ChunkName string
}

// RunReport is what [CompileAndRun] observed.
type RunReport struct {
	Version    string
	LoadStatus int
	Sum        int
	Native     bool
}

// Verify checks the report against the expected observations.
func (r *RunReport) Verify() error {
	if r.Version != ExpectedVersion {
		return fmt.Errorf("version = %q; want %q", r.Version, ExpectedVersion)
	}
	if r.LoadStatus != luau.OK {
		return fmt.Errorf("load status = %d; want %d", r.LoadStatus, luau.OK)
	}
	if want := SumA + SumB; r.Sum != want {
		return fmt.Errorf("sum = %d; want %d", r.Sum, want)
	}
	return nil
}

// CompileAndRun creates an engine instance,
// compiles [SumSource] with the engine defaults,
// compiles it to native code if the backend is available,
// and calls it with [SumA] and [SumB].
// opts may be nil.
func CompileAndRun(ctx context.Context, opts *RunOptions) (_ *RunReport, err error) {
	if opts == nil {
		opts = new(RunOptions)
	}
	chunkName := opts.ChunkName
	if chunkName == "" {
		chunkName = SumChunkName
	}

	state, err := luau.NewState()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := state.Close(); err == nil {
			err = closeErr
		}
	}()

	report := new(RunReport)
	if !opts.Interpreted && luau.CodegenSupported() {
		report.Native = state.EnableCodegen()
	}
	state.OpenLibraries()

	if _, err := state.Global(luau.VersionGlobal); err != nil {
		return nil, fmt.Errorf("read %s: %w", luau.VersionGlobal, err)
	}
	report.Version, _ = state.ToString(-1)
	state.Pop(1)

	bytecode, err := luau.Compile(SumSource, nil)
	if err != nil {
		return nil, err
	}
	err = state.Load(chunkName, bytecode.Bytes())
	bytecode.Free()
	report.LoadStatus, _ = luau.AsError(err)
	if err != nil {
		return report, err
	}

	if report.Native {
		report.Native = state.CompileNative(-1)
	}
	log.Debugf(ctx, "Loaded %s (native=%t)", chunkName, report.Native)

	state.PushInteger(SumA)
	state.PushInteger(SumB)
	state.CallUnprotected(2, 1)
	report.Sum, _ = state.ToInteger(-1)
	return report, nil
}

// ErrorReport is what [ErrorPropagation] observed.
type ErrorReport struct {
	Status  int
	Message string
	// Top is the number of values left on the stack.
	Top int
}

// Verify checks the report against the expected observations.
func (r *ErrorReport) Verify() error {
	if r.Status != luau.ErrRun {
		return fmt.Errorf("status = %d; want %d", r.Status, luau.ErrRun)
	}
	if r.Message != ErrorMessage {
		return fmt.Errorf("message = %q; want %q", r.Message, ErrorMessage)
	}
	if r.Top != 1 {
		return fmt.Errorf("%d values left on the stack; want 1", r.Top)
	}
	return nil
}

// ErrorPropagation creates an engine instance,
// registers a Go function that raises [ErrorMessage],
// and calls it in protected mode.
func ErrorPropagation(ctx context.Context) (_ *ErrorReport, err error) {
	state, err := luau.NewState()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := state.Close(); err == nil {
			err = closeErr
		}
	}()

	state.PushClosure("it_panics", 0, func(l *luau.State) (int, error) {
		l.RaiseError(ErrorMessage)
		panic("unreachable")
	})
	callErr := state.Call(ctx, 0, 0, 0)
	if callErr == nil {
		return nil, fmt.Errorf("protected call did not report an error")
	}
	code, ok := luau.AsError(callErr)
	if !ok {
		return nil, callErr
	}
	report := &ErrorReport{
		Status: code,
		Top:    state.Top(),
	}
	report.Message, _ = state.ToString(-1)
	log.Debugf(ctx, "Protected call returned status %d: %s", report.Status, report.Message)
	return report, nil
}

// CheckReport is the result of [Check].
type CheckReport struct {
	Runs  int
	Run   *RunReport
	Error *ErrorReport
}

// Check runs both scenarios n times, each in a fresh engine instance,
// with at most parallelism runs at once.
// It returns an error if any run fails verification
// or observes something different from the other runs.
func Check(ctx context.Context, n, parallelism int, opts *RunOptions) (*CheckReport, error) {
	if n < 1 {
		return nil, fmt.Errorf("check: run count must be positive")
	}
	runs := make([]*RunReport, n)
	errs := make([]*ErrorReport, n)
	grp, grpCtx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		grp.SetLimit(parallelism)
	}
	for i := range n {
		grp.Go(func() error {
			id := uuid.New()
			runOpts := &RunOptions{ChunkName: "=" + SumChunkName + "-" + id.String()}
			if opts != nil {
				runOpts.Interpreted = opts.Interpreted
			}
			log.Debugf(grpCtx, "Starting run %v", id)
			r, err := CompileAndRun(grpCtx, runOpts)
			if err != nil {
				return fmt.Errorf("run %v: compile and run: %w", id, err)
			}
			if err := r.Verify(); err != nil {
				return fmt.Errorf("run %v: compile and run: %w", id, err)
			}
			e, err := ErrorPropagation(grpCtx)
			if err != nil {
				return fmt.Errorf("run %v: error propagation: %w", id, err)
			}
			if err := e.Verify(); err != nil {
				return fmt.Errorf("run %v: error propagation: %w", id, err)
			}
			runs[i] = r
			errs[i] = e
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	for i := 1; i < n; i++ {
		if *runs[i] != *runs[0] {
			return nil, fmt.Errorf("check: run %d observed %+v; run 1 observed %+v", i+1, *runs[i], *runs[0])
		}
		if *errs[i] != *errs[0] {
			return nil, fmt.Errorf("check: run %d observed %+v; run 1 observed %+v", i+1, *errs[i], *errs[0])
		}
	}
	return &CheckReport{
		Runs:  n,
		Run:   runs[0],
		Error: errs[0],
	}, nil
}
