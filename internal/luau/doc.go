// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

/*
Package luau provides cgo bindings to the [Luau] engine:
its virtual machine, bytecode compiler, and optional native code generator.

[NewState] creates an engine instance,
[Compile] turns source text into [Bytecode],
and [*State.Load] loads bytecode as a function to run with [*State.Call].

# Relation to the C API

Methods on [State] are generally equivalent to C functions that start with “lua_”;
[Compile] wraps luau_compile and the codegen methods wrap luau_codegen_*.

However, there are some differences:

  - Error handling is handled using the standard Go error type.
    [*State.Call] runs in protected mode and leaves the error message on the stack,
    with [AsError] reporting the engine's status code.
    [*State.CallUnprotected] is provided for parity with lua_call,
    but an error raised under it terminates the process.
  - Go functions pushed with [*State.PushClosure] raise errors by returning them
    (or by calling [*State.RaiseError]).
    They are invoked through a C trampoline,
    so engine errors never unwind through Go frames.
  - Indices are checked before calling into the engine:
    misuse panics instead of corrupting memory.

# Building

The package links against the static libraries produced by Luau's CMake build
(Luau.VM, Luau.Compiler, Luau.Ast, and Luau.CodeGen).
Point cgo at them with the usual environment variables:

	CGO_CFLAGS="-I$LUAU/VM/include -I$LUAU/Compiler/include -I$LUAU/CodeGen/include"
	CGO_LDFLAGS="-L$LUAU/build"

The pseudo-indices ([GlobalsIndex] and friends) are computed from LUAI_MAXCSTACK in lua.h.
If the engine was built with a non-default LUAI_MAXCSTACK,
pass the same definition in CGO_CFLAGS (for example, -DLUAI_MAXCSTACK=100000),
otherwise the pseudo-indices will not match the engine's.

Build with the noluaucodegen tag for engines built without the native code generator.
[CodegenSupported] then always reports false.

[Luau]: https://luau.org/
*/
package luau
