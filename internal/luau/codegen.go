// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

//go:build !noluaucodegen

package luau

// #cgo LDFLAGS: -lLuau.CodeGen
// #include "lua.h"
// #include "luacodegen.h"
import "C"

// CodegenSupported reports whether the native-code backend
// is linked in and supports the current machine.
func CodegenSupported() bool {
	return C.luau_codegen_supported() != 0
}

// EnableCodegen attaches a native-code context to the engine instance.
// It must be called before any functions are loaded.
// EnableCodegen reports false if the backend is unavailable.
func (l *State) EnableCodegen() bool {
	l.checkOpen()
	if !CodegenSupported() {
		return false
	}
	C.luau_codegen_create(l.ptr)
	l.data().codegen = true
	return true
}

// CompileNative compiles the loaded function at idx
// (and the functions it defines) to native code.
// It reports false if [*State.EnableCodegen] has not succeeded on l,
// in which case the function keeps running in the interpreter.
// CompileNative panics if the value at idx is not a function loaded from bytecode.
func (l *State) CompileNative(idx int) bool {
	l.checkLuauFunction(idx)
	if !l.data().codegen {
		return false
	}
	C.luau_codegen_compile(l.ptr, C.int(idx))
	return true
}
