// Copyright 2023 Roxy Light
// Copyright 2026 The luaugo Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the “Software”), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED “AS IS”, WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// SPDX-License-Identifier: MIT

package luau

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// #cgo LDFLAGS: -lLuau.Compiler -lLuau.Ast
// #include <stdlib.h>
// #include <stddef.h>
// #include "lua.h"
// #include "luacode.h"
//
// static char *compile(_GoString_ source, lua_CompileOptions *options, size_t *outsize) {
//   return luau_compile(_GoStringPtr(source), _GoStringLen(source), options, outsize);
// }
import "C"

// CompileOptions is the set of options for [Compile].
// The zero value is not the same as the engine defaults:
// pass a nil *CompileOptions to [Compile] for those.
type CompileOptions struct {
	// OptimizationLevel is 0 for no optimization,
	// 1 for baseline optimization that doesn't prevent debuggability,
	// or 2 for additional optimization that may hurt debuggability or profiling.
	OptimizationLevel int
	// DebugLevel is 0 for no debugging support,
	// 1 for line info and function names for backtraces,
	// or 2 for full debug info with local and upvalue names.
	DebugLevel int
	// CoverageLevel is 0 for no code coverage support,
	// 1 for statement coverage,
	// or 2 for statement and expression coverage.
	CoverageLevel int

	// VectorLib and VectorCtor name a global builtin to construct vectors
	// (e.g. "Vector3" and "new").
	VectorLib  string
	VectorCtor string
	// VectorType is the vector type name for type tables.
	VectorType string

	// MutableGlobals is a list of globals that are mutable.
	// Such globals disable some optimizations.
	MutableGlobals []string
}

// DefaultCompileOptions returns the options the engine uses
// when no options are given.
func DefaultCompileOptions() *CompileOptions {
	return &CompileOptions{
		OptimizationLevel: 1,
		DebugLevel:        1,
	}
}

// String returns a stable description of the options
// suitable for use in cache keys.
func (opts *CompileOptions) String() string {
	if opts == nil {
		return "default"
	}
	return fmt.Sprintf("O%d g%d c%d vlib=%q vctor=%q vtype=%q globals=%q",
		opts.OptimizationLevel,
		opts.DebugLevel,
		opts.CoverageLevel,
		opts.VectorLib,
		opts.VectorCtor,
		opts.VectorType,
		opts.MutableGlobals,
	)
}

// cOptions is a C copy of a [CompileOptions].
type cOptions struct {
	opts    C.lua_CompileOptions
	strings []*C.char
	globals unsafe.Pointer
}

func newCOptions(opts *CompileOptions) *cOptions {
	c := new(cOptions)
	c.opts.optimizationLevel = C.int(opts.OptimizationLevel)
	c.opts.debugLevel = C.int(opts.DebugLevel)
	c.opts.coverageLevel = C.int(opts.CoverageLevel)
	c.opts.vectorLib = c.cstring(opts.VectorLib)
	c.opts.vectorCtor = c.cstring(opts.VectorCtor)
	c.opts.vectorType = c.cstring(opts.VectorType)
	if len(opts.MutableGlobals) > 0 {
		// NULL-terminated array of C strings.
		c.globals = C.calloc(C.size_t(len(opts.MutableGlobals)+1), C.size_t(unsafe.Sizeof((*C.char)(nil))))
		globals := unsafe.Slice((**C.char)(c.globals), len(opts.MutableGlobals)+1)
		for i, name := range opts.MutableGlobals {
			globals[i] = c.cstring(name)
		}
		c.opts.mutableGlobals = (**C.char)(c.globals)
	}
	return c
}

func (c *cOptions) cstring(s string) *C.char {
	if s == "" {
		return nil
	}
	cs := C.CString(s)
	c.strings = append(c.strings, cs)
	return cs
}

func (c *cOptions) free() {
	for _, s := range c.strings {
		C.free(unsafe.Pointer(s))
	}
	c.strings = nil
	if c.globals != nil {
		C.free(c.globals)
		c.globals = nil
	}
}

// Bytecode is a compiled chunk produced by [Compile].
// Its memory is owned by the caller until released with [*Bytecode.Free];
// loading it into a [State] does not transfer ownership.
type Bytecode struct {
	ptr *C.char
	n   C.size_t
}

// Compile compiles Luau source text into bytecode.
// A nil opts uses the engine's defaults.
//
// Syntax errors do not make Compile fail:
// the engine encodes them in the returned bytecode,
// which [*Bytecode.Err] reports and which fails to load with [ErrSyntax].
// Compile only returns an error if the engine could not produce a buffer.
func Compile(source string, opts *CompileOptions) (*Bytecode, error) {
	var copts *C.lua_CompileOptions
	if opts != nil {
		c := newCOptions(opts)
		defer c.free()
		copts = &c.opts
	}
	var size C.size_t
	ptr := C.compile(source, copts, &size)
	if ptr == nil {
		return nil, errors.New("luau: compile: could not allocate memory")
	}
	return &Bytecode{ptr: ptr, n: size}, nil
}

// Bytes returns a view of the bytecode's memory.
// The slice must not be used after [*Bytecode.Free] is called.
func (b *Bytecode) Bytes() []byte {
	if b == nil || b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(b.ptr)), int(b.n))
}

// Len returns the size of the bytecode in bytes.
func (b *Bytecode) Len() int {
	if b == nil || b.ptr == nil {
		return 0
	}
	return int(b.n)
}

// Err returns the compile error encoded in the bytecode, if any.
func (b *Bytecode) Err() error {
	return BytecodeError(b.Bytes())
}

// BytecodeError returns the compile error encoded in bytecode, if any.
// The engine signals a failed compilation with a zero version byte
// followed by the error message.
func BytecodeError(bytecode []byte) error {
	if len(bytecode) == 0 {
		return errors.New("luau: empty bytecode")
	}
	if bytecode[0] != 0 {
		return nil
	}
	return fmt.Errorf("luau: compile: %s", bytecode[1:])
}

var bytecodeVersion = sync.OnceValue(func() int {
	bc, err := Compile("", nil)
	if err != nil {
		return 0
	}
	defer bc.Free()
	if bc.Len() == 0 || bc.Err() != nil {
		return 0
	}
	return int(bc.Bytes()[0])
})

// BytecodeVersion returns the bytecode format version
// that the linked compiler produces,
// or 0 if it could not be determined.
func BytecodeVersion() int {
	return bytecodeVersion()
}

// Free releases the bytecode through the engine's deallocator.
// Calling Free more than once is a no-op.
func (b *Bytecode) Free() {
	if b == nil || b.ptr == nil {
		return
	}
	C.free(unsafe.Pointer(b.ptr))
	b.ptr = nil
	b.n = 0
}

// Load loads bytecode into the engine as a function
// and pushes the function onto the stack.
// On failure, Load pushes the error message instead
// and returns an error that [AsError] reports the status code for.
// The engine copies what it needs: bytecode is not retained.
func (l *State) Load(chunkName string, bytecode []byte) error {
	l.checkOpen()
	l.grow(1)
	chunkNameC := C.CString(chunkName)
	defer C.free(unsafe.Pointer(chunkNameC))
	var data *C.char
	if len(bytecode) > 0 {
		data = (*C.char)(unsafe.Pointer(unsafe.SliceData(bytecode)))
	}
	ret := C.luau_load(l.ptr, chunkNameC, data, C.size_t(len(bytecode)), 0)
	if ret != 0 {
		return fmt.Errorf("luau: load %s: %w", chunkName, l.newError(ret))
	}
	return nil
}

// LoadString compiles source and loads it as a function,
// releasing the intermediate bytecode.
func (l *State) LoadString(chunkName string, source string, opts *CompileOptions) error {
	bc, err := Compile(source, opts)
	if err != nil {
		return err
	}
	defer bc.Free()
	return l.Load(chunkName, bc.Bytes())
}
