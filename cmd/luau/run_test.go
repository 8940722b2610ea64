// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"luaugo.256lights.llc/pkg/internal/luau"
	"luaugo.256lights.llc/pkg/internal/testcontext"
)

func TestIsBytecode(t *testing.T) {
	tests := []struct {
		data []byte
		want bool
	}{
		{nil, false},
		{[]byte("return 1"), false},
		{[]byte("\n-- comment\nreturn 1"), false},
		{[]byte("\treturn 1"), false},
		{[]byte("\xef\xbb\xbfreturn 1"), false},
		{[]byte{0, 'e', 'r', 'r'}, true},
		{[]byte{6, 3, 0}, true},
	}
	for _, test := range tests {
		if got := isBytecode(test.data); got != test.want {
			t.Errorf("isBytecode(%q) = %t; want %t", test.data, got, test.want)
		}
	}

	bc, err := luau.Compile("return 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Free()
	if !isBytecode(bc.Bytes()) {
		t.Errorf("isBytecode(Compile(\"return 1\")) = false; want true")
	}
}

func TestPushArgument(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	state, err := luau.NewState()
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()
	state.OpenLibraries()

	const source = `local results = {}
for i = 1, select("#", ...) do
	local v = select(i, ...)
	table.insert(results, type(v))
end
return table.unpack(results)`
	if err := state.LoadString("=args", source, nil); err != nil {
		t.Fatal(err)
	}
	args := []string{"123", "-4", "1.5", "hello", ""}
	for _, arg := range args {
		pushArgument(state, arg)
	}
	if err := state.Call(ctx, len(args), luau.MultipleReturns, 0); err != nil {
		t.Fatal(err)
	}
	var got []any
	for i := 1; i <= state.Top(); i++ {
		got = append(got, resultValue(state, i))
	}
	want := []any{"number", "number", "number", "string", "string"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("argument types (-want +got):\n%s", diff)
	}
}

func TestPushArgumentRange(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"123", "321", 444},
		{"2147483647", "1", 2147483648},
		{"3000000000", "1", 3000000001},
		{"-3000000000", "-1", -3000000001},
	}
	for _, test := range tests {
		ctx, cancel := testcontext.New(t)
		state, err := luau.NewState()
		if err != nil {
			cancel()
			t.Fatal(err)
		}
		if err := state.LoadString("=sum", "local a, b = ... return a + b", nil); err != nil {
			t.Error(err)
		} else {
			pushArgument(state, test.a)
			pushArgument(state, test.b)
			if err := state.Call(ctx, 2, 1, 0); err != nil {
				t.Error(err)
			} else if got := resultValue(state, -1); got != test.want {
				t.Errorf("sum(%s, %s) = %v; want %v", test.a, test.b, got, test.want)
			}
		}
		state.Close()
		cancel()
	}
}

func TestResultValue(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	state, err := luau.NewState()
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()
	state.OpenLibraries()

	if err := state.LoadString("=results", `return 444, "x", true, nil, {}`, nil); err != nil {
		t.Fatal(err)
	}
	if err := state.Call(ctx, 0, luau.MultipleReturns, 0); err != nil {
		t.Fatal(err)
	}
	var got []any
	for i := 1; i <= state.Top(); i++ {
		got = append(got, resultValue(state, i))
	}
	want := []any{444.0, "x", true, nil, "<table>"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestRunCompileCache(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	g := defaultGlobalConfig()
	g.CacheDB = filepath.Join(t.TempDir(), "cache.db")
	cache, err := g.openCache()
	if err != nil {
		t.Fatal(err)
	}
	defer closeCache(ctx, cache)

	source := []byte("local a, b = ... return a + b")
	first, err := g.compile(ctx, cache, source)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := cache.Len(ctx); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Errorf("cache.Len(ctx) = %d after compile; want 1", n)
	}
	second, err := g.compile(ctx, cache, source)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached bytecode differs (-first +second):\n%s", diff)
	}

	if _, err := g.compile(ctx, cache, []byte("local = ")); err == nil {
		t.Error("compile of invalid source did not return an error")
	}
	if n, err := cache.Len(ctx); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Errorf("cache.Len(ctx) = %d after failed compile; want 1", n)
	}
}
