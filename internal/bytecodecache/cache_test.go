// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package bytecodecache

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"luaugo.256lights.llc/pkg/internal/luau"
	"luaugo.256lights.llc/pkg/internal/testcontext"
)

func openTestCache(tb testing.TB) *Cache {
	tb.Helper()
	c, err := Open(filepath.Join(tb.TempDir(), "cache.db"))
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := c.Close(); err != nil {
			tb.Error("Close:", err)
		}
	})
	return c
}

func TestKeyFor(t *testing.T) {
	source := []byte("return 1")
	k1 := KeyFor(source, (*luau.CompileOptions)(nil).String())
	if k2 := KeyFor(source, (*luau.CompileOptions)(nil).String()); k1 != k2 {
		t.Errorf("KeyFor is not deterministic: %v != %v", k1, k2)
	}
	if k2 := KeyFor(source, luau.DefaultCompileOptions().String()); k1 == k2 {
		t.Errorf("KeyFor(source, default) == KeyFor(source, explicit options) = %v", k1)
	}
	if k2 := KeyFor([]byte("return 2"), (*luau.CompileOptions)(nil).String()); k1 == k2 {
		t.Errorf("KeyFor ignores source: %v", k1)
	}
	// Options and source must not be confusable.
	if a, b := KeyFor([]byte("bc"), "a"), KeyFor([]byte("c"), "ab"); a == b {
		t.Errorf("KeyFor(\"bc\", \"a\") == KeyFor(\"c\", \"ab\") = %v", a)
	}
	if a, b := keyFor(5, source, "default"), keyFor(6, source, "default"); a == b {
		t.Errorf("keyFor ignores bytecode version: %v", a)
	}
	if got := len(k1.String()); got != 64 {
		t.Errorf("len(k.String()) = %d; want 64", got)
	}
}

func TestCache(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	const source = "local a, b = ... return a + b"
	k := KeyFor([]byte(source), "default")
	if _, found, err := c.Get(ctx, k); err != nil {
		t.Fatal(err)
	} else if found {
		t.Fatal("Get on empty cache found an entry")
	}

	bc, err := luau.Compile(source, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Clone(bc.Bytes())
	bc.Free()
	if err := c.Put(ctx, k, want); err != nil {
		t.Fatal(err)
	}

	got, found, err := c.Get(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("Get after Put did not find the entry")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get(...) = %x; want %x", got, want)
	}

	// Cached bytecode must load and run like freshly compiled bytecode.
	state, err := luau.NewState()
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()
	if err := state.Load("sum", got); err != nil {
		t.Fatal(err)
	}
	state.PushInteger(1)
	state.PushInteger(2)
	if err := state.Call(ctx, 2, 1, 0); err != nil {
		t.Fatal(err)
	}
	if n, _ := state.ToInteger(-1); n != 3 {
		t.Errorf("sum(1, 2) = %d; want 3", n)
	}
}

func TestPutRejectsCompileErrors(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	bc, err := luau.Compile("local = ", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Free()
	k := KeyFor([]byte("local = "), "default")
	if err := c.Put(ctx, k, bc.Bytes()); err == nil {
		t.Error("Put with compile error did not return an error")
	}
	if n, err := c.Len(ctx); err != nil {
		t.Error(err)
	} else if n != 0 {
		t.Errorf("c.Len(ctx) = %d; want 0", n)
	}
}

func TestPrune(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := start
	c.now = func() time.Time { return now }

	v := byte(luau.BytecodeVersion())
	oldKey := KeyFor([]byte("return 1"), "default")
	newKey := KeyFor([]byte("return 2"), "default")
	if err := c.Put(ctx, oldKey, []byte{v, 1}); err != nil {
		t.Fatal(err)
	}
	now = start.Add(48 * time.Hour)
	if err := c.Put(ctx, newKey, []byte{v, 2}); err != nil {
		t.Fatal(err)
	}

	n, err := c.Prune(ctx, start.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune(...) = %d; want 1", n)
	}
	if _, found, err := c.Get(ctx, oldKey); err != nil {
		t.Error(err)
	} else if found {
		t.Error("old entry still present after Prune")
	}
	if _, found, err := c.Get(ctx, newKey); err != nil {
		t.Error(err)
	} else if !found {
		t.Error("new entry missing after Prune")
	}
}

func TestGetIgnoresOtherVersions(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	v := luau.BytecodeVersion()
	if v == 0 {
		t.Fatal("BytecodeVersion() = 0")
	}
	const source = "return 1"
	k := KeyFor([]byte(source), "default")
	stale := []byte{byte(v + 1), 0}
	if err := c.Put(ctx, k, stale); err != nil {
		t.Fatal(err)
	}
	if got, found, err := c.Get(ctx, k); err != nil {
		t.Fatal(err)
	} else if found {
		t.Fatalf("Get(...) = %x for bytecode of version %d; want not found", got, v+1)
	}

	// Recompiling replaces the stale entry.
	bc, err := luau.Compile(source, nil)
	if err != nil {
		t.Fatal(err)
	}
	fresh := bytes.Clone(bc.Bytes())
	bc.Free()
	if err := c.Put(ctx, k, fresh); err != nil {
		t.Fatal(err)
	}
	got, found, err := c.Get(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if !found || !bytes.Equal(got, fresh) {
		t.Errorf("Get(...) = %x, %t; want %x, true", got, found, fresh)
	}
}
