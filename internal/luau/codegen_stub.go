// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

//go:build noluaucodegen

package luau

// CodegenSupported reports whether the native-code backend
// is linked in and supports the current machine.
// This build omits the backend.
func CodegenSupported() bool {
	return false
}

// EnableCodegen reports false: this build omits the native-code backend.
func (l *State) EnableCodegen() bool {
	l.checkOpen()
	return false
}

// CompileNative reports false: this build omits the native-code backend.
// The function at idx keeps running in the interpreter.
func (l *State) CompileNative(idx int) bool {
	l.checkLuauFunction(idx)
	return false
}
