// Copyright 2023 Ross Light
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

import "runtime/cgo"

// This file is used to contain Go code exported to C.
// It's kept in a separate file with a minimal C preamble
// to avoid unintentional redefinitions.
// See the caveat in https://pkg.go.dev/cmd/cgo for more details.

// #include <stdint.h>
// #include "lua.h"
//
// void luaugo_pushstring(lua_State *L, _GoString_ s);
// uint64_t luaugo_closureid(lua_State *L);
// uintptr_t luaugo_statehandle(lua_State *L);
import "C"

//export luaugo_callback
func luaugo_callback(l *C.lua_State) C.int {
	state := stateForCallback(l)
	defer func() {
		// Once the callback has finished, clear the State.
		// This prevents use of the State after the engine has moved on.
		*state = State{}
	}()
	funcID := uint64(C.luaugo_closureid(l))
	f := state.data().closures[funcID]
	if f == nil {
		C.luaugo_pushstring(l, "Go closure upvalue corrupted")
		return -1
	}

	results, err := pcall(f, state)
	if err != nil {
		C.luaugo_pushstring(l, err.Error())
		return -1
	}
	if results < 0 {
		C.luaugo_pushstring(l, "Go callback returned negative results")
		return -1
	}
	if results > int(C.lua_gettop(l)) {
		C.luaugo_pushstring(l, "Go callback returned more results than stack values")
		return -1
	}
	return C.int(results)
}

//export luaugo_release
func luaugo_release(l *C.lua_State, funcID C.uint64_t) {
	handle := cgo.Handle(C.luaugo_statehandle(l))
	delete(handle.Value().(*stateData).closures, uint64(funcID))
}
