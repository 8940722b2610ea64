// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package harness

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"luaugo.256lights.llc/pkg/internal/luau"
	"luaugo.256lights.llc/pkg/internal/testcontext"
)

func TestCompileAndRun(t *testing.T) {
	for _, interpreted := range []bool{false, true} {
		name := "Default"
		if interpreted {
			name = "Interpreted"
		}
		t.Run(name, func(t *testing.T) {
			ctx, cancel := testcontext.New(t)
			defer cancel()

			got, err := CompileAndRun(ctx, &RunOptions{Interpreted: interpreted})
			if err != nil {
				t.Fatal(err)
			}
			want := &RunReport{
				Version:    "Luau",
				LoadStatus: 0,
				Sum:        444,
				Native:     !interpreted && luau.CodegenSupported(),
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("CompileAndRun(...) (-want +got):\n%s", diff)
			}
			if err := got.Verify(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestErrorPropagation(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	got, err := ErrorPropagation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := &ErrorReport{
		Status:  2,
		Message: "exception!",
		Top:     1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ErrorPropagation(ctx) (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	got, err := Check(ctx, 8, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &CheckReport{
		Runs: 8,
		Run: &RunReport{
			Version: "Luau",
			Sum:     444,
			Native:  luau.CodegenSupported(),
		},
		Error: &ErrorReport{
			Status:  2,
			Message: "exception!",
			Top:     1,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Check(ctx, 8, 4, nil) (-want +got):\n%s", diff)
	}

	if _, err := Check(ctx, 0, 1, nil); err == nil {
		t.Error("Check(ctx, 0, 1, nil) did not return an error")
	}
}

func TestCompileAndRunNilOptions(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	got, err := CompileAndRun(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := luau.CodegenSupported(); got.Native != want {
		t.Errorf("CompileAndRun(ctx, nil).Native = %t; want %t", got.Native, want)
	}
	if err := got.Verify(); err != nil {
		t.Error(err)
	}
}

func TestVerify(t *testing.T) {
	bad := []*RunReport{
		{Version: "Lua 5.4", Sum: 444},
		{Version: "Luau", LoadStatus: 3, Sum: 444},
		{Version: "Luau", Sum: 443},
	}
	for _, r := range bad {
		if err := r.Verify(); err == nil {
			t.Errorf("(%+v).Verify() = <nil>; want error", *r)
		}
	}
	badErrors := []*ErrorReport{
		{Status: 3, Message: "exception!", Top: 1},
		{Status: 2, Message: "[string]:1: exception!", Top: 1},
		{Status: 2, Message: "exception!", Top: 2},
	}
	for _, r := range badErrors {
		if err := r.Verify(); err == nil {
			t.Errorf("(%+v).Verify() = <nil>; want error", *r)
		}
	}
}
