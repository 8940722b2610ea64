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
	"context"
	"errors"
	"fmt"
	"runtime/cgo"
	"unsafe"
)

// #cgo CFLAGS: -fexceptions
// #cgo LDFLAGS: -lLuau.VM -lstdc++ -lm
// #include <stdlib.h>
// #include <stddef.h>
// #include <stdint.h>
// #include "lua.h"
// #include "lualib.h"
//
// #define LUAUGO_CLOSURE_TAG 47
//
// int luaugo_callback(lua_State *L);
// void luaugo_release(lua_State *L, uint64_t funcID);
//
// struct luaugo_state {
//   uintptr_t handle;
//   int interrupted;
// };
//
// static struct luaugo_state *gostate(lua_State *L) {
//   return (struct luaugo_state *)(lua_callbacks(L)->userdata);
// }
//
// static void interruptcb(lua_State *L, int gc) {
//   if (gc >= 0) {
//     return;
//   }
//   if (__atomic_exchange_n(&gostate(L)->interrupted, 0, __ATOMIC_SEQ_CST)) {
//     luaL_errorL(L, "interrupted");
//   }
// }
//
// static void setinterrupt(lua_State *L, int v) {
//   __atomic_store_n(&gostate(L)->interrupted, v, __ATOMIC_SEQ_CST);
// }
//
// static void closuredtor(lua_State *L, void *p) {
//   luaugo_release(L, *(uint64_t *)p);
// }
//
// static lua_State *newstate(uintptr_t handle) {
//   struct luaugo_state *gs = calloc(1, sizeof(struct luaugo_state));
//   if (gs == NULL) {
//     return NULL;
//   }
//   lua_State *L = luaL_newstate();
//   if (L == NULL) {
//     free(gs);
//     return NULL;
//   }
//   gs->handle = handle;
//   lua_Callbacks *cb = lua_callbacks(L);
//   cb->userdata = gs;
//   cb->interrupt = interruptcb;
//   lua_setuserdatadtor(L, LUAUGO_CLOSURE_TAG, closuredtor);
//   return L;
// }
//
// uintptr_t luaugo_statehandle(lua_State *L) {
//   return gostate(L)->handle;
// }
//
// static void closestate(lua_State *L) {
//   struct luaugo_state *gs = gostate(L);
//   lua_close(L);
//   free(gs);
// }
//
// static l_noret raiseerror(lua_State *L) {
//   luaL_errorL(L, "%s", lua_tostring(L, -1));
// }
//
// static int trampoline(lua_State *L) {
//   int nresults = luaugo_callback(L);
//   if (nresults < 0) {
//     raiseerror(L);
//   }
//   return nresults;
// }
//
// static void pushclosure(lua_State *L, uint64_t funcID, const char *debugname, int n) {
//   uint64_t *data = (uint64_t *)lua_newuserdatatagged(L, sizeof(uint64_t), LUAUGO_CLOSURE_TAG);
//   *data = funcID;
//   lua_insert(L, -1 - n);
//   lua_pushcclosurek(L, trampoline, debugname, 1 + n, NULL);
// }
//
// uint64_t luaugo_closureid(lua_State *L) {
//   uint64_t *data = (uint64_t *)lua_touserdatatagged(L, lua_upvalueindex(1), LUAUGO_CLOSURE_TAG);
//   return data != NULL ? *data : 0;
// }
//
// void luaugo_pushstring(lua_State *L, _GoString_ s) {
//   lua_pushlstring(L, _GoStringPtr(s), _GoStringLen(s));
// }
//
// static int getfieldcb(lua_State *L) {
//   lua_gettable(L, 1);
//   return 1;
// }
//
// static int getfield(lua_State *L, int index, _GoString_ k, int *tp) {
//   index = lua_absindex(L, index);
//   lua_pushcclosurek(L, getfieldcb, "getfield", 0, NULL);
//   lua_pushvalue(L, index);
//   lua_pushlstring(L, _GoStringPtr(k), _GoStringLen(k));
//   int ret = lua_pcall(L, 2, 1, 0);
//   *tp = ret == LUA_OK ? lua_type(L, -1) : LUA_TNIL;
//   return ret;
// }
//
// static int setfieldcb(lua_State *L) {
//   lua_settable(L, 1);
//   return 0;
// }
//
// static int setfield(lua_State *L, int index, _GoString_ k) {
//   index = lua_absindex(L, index);
//   lua_pushcclosurek(L, setfieldcb, "setfield", 0, NULL);
//   lua_pushvalue(L, index);
//   lua_pushlstring(L, _GoStringPtr(k), _GoStringLen(k));
//   lua_pushvalue(L, -4);
//   lua_remove(L, -5);
//   return lua_pcall(L, 3, 0, 0);
// }
import "C"

// Pseudo-indices. They are taken from the linked engine's headers
// and must not be treated as ordinary stack positions.
const (
	RegistryIndex int = C.LUA_REGISTRYINDEX
	EnvironIndex  int = C.LUA_ENVIRONINDEX
	GlobalsIndex  int = C.LUA_GLOBALSINDEX
)

// MultipleReturns is passed as nResults to [*State.Call]
// to keep every value the function returns.
const MultipleReturns int = C.LUA_MULTRET

// VersionGlobal is the name of the global variable
// that [*State.OpenLibraries] sets to the engine's version identifier.
const VersionGlobal = "_VERSION"

type Type C.int

const (
	TypeNone          Type = C.LUA_TNONE
	TypeNil           Type = C.LUA_TNIL
	TypeBoolean       Type = C.LUA_TBOOLEAN
	TypeLightUserdata Type = C.LUA_TLIGHTUSERDATA
	TypeNumber        Type = C.LUA_TNUMBER
	TypeVector        Type = C.LUA_TVECTOR
	TypeString        Type = C.LUA_TSTRING
	TypeTable         Type = C.LUA_TTABLE
	TypeFunction      Type = C.LUA_TFUNCTION
	TypeUserdata      Type = C.LUA_TUSERDATA
	TypeThread        Type = C.LUA_TTHREAD
	TypeBuffer        Type = C.LUA_TBUFFER
)

func (tp Type) String() string {
	switch tp {
	case TypeNone:
		return "no value"
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeLightUserdata, TypeUserdata:
		return "userdata"
	case TypeNumber:
		return "number"
	case TypeVector:
		return "vector"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeThread:
		return "thread"
	case TypeBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("luau.Type(%d)", C.int(tp))
	}
}

// State is a handle to a Luau engine instance.
// A State is created by [NewState] and must be released with [*State.Close].
// A State must not be used concurrently from multiple goroutines.
type State struct {
	ptr      *C.lua_State
	callback bool
}

type stateData struct {
	nextID     uint64
	closures   map[uint64]Function
	debugNames map[string]*C.char
	codegen    bool
}

// NewState creates a new engine instance.
// The instance has no libraries loaded: call [*State.OpenLibraries] for those.
func NewState() (*State, error) {
	data := cgo.NewHandle(&stateData{
		nextID:     1,
		closures:   make(map[uint64]Function),
		debugNames: make(map[string]*C.char),
	})
	ptr := C.newstate(C.uintptr_t(data))
	if ptr == nil {
		data.Delete()
		return nil, errors.New("luau: new state: could not allocate memory")
	}
	return &State{ptr: ptr}, nil
}

// stateForCallback returns a new State for the given *lua_State
// that is only valid for the duration of a Go function call.
func stateForCallback(ptr *C.lua_State) *State {
	return &State{
		ptr:      ptr,
		callback: true,
	}
}

// Close releases the engine instance.
// Calling Close more than once is a no-op.
func (l *State) Close() error {
	if l == nil || l.ptr == nil {
		return nil
	}
	if l.callback {
		return errors.New("luau: cannot close state from inside a Go function")
	}
	handle := cgo.Handle(C.luaugo_statehandle(l.ptr))
	C.closestate(l.ptr)
	for _, s := range handle.Value().(*stateData).debugNames {
		C.free(unsafe.Pointer(s))
	}
	handle.Delete()
	*l = State{}
	return nil
}

// data returns the interpreter-wide data.
func (l *State) data() *stateData {
	return cgo.Handle(C.luaugo_statehandle(l.ptr)).Value().(*stateData)
}

func (l *State) checkOpen() {
	if l.ptr == nil {
		panic("luau: use of closed State")
	}
}

// checkIndex panics if idx is not an acceptable index.
func (l *State) checkIndex(idx int) {
	l.checkOpen()
	switch {
	case idx == goClosureUpvalueIndex:
		panic("unacceptable index")
	case isPseudo(idx):
	case idx == 0:
		panic("unacceptable index")
	case idx < 0 && -idx > l.Top():
		panic("unacceptable index")
	}
}

func (l *State) checkElems(n int) {
	if l.Top() < n {
		panic("not enough elements in the stack")
	}
}

func (l *State) grow(n int) {
	if C.lua_checkstack(l.ptr, C.int(n)) == 0 {
		panic("stack overflow")
	}
}

// AbsIndex converts idx into an equivalent index that does not depend on the stack top.
func (l *State) AbsIndex(idx int) int {
	l.checkIndex(idx)
	return int(C.lua_absindex(l.ptr, C.int(idx)))
}

// Top returns the index of the top element in the stack,
// which is also the number of elements in the stack.
func (l *State) Top() int {
	l.checkOpen()
	return int(C.lua_gettop(l.ptr))
}

// SetTop sets the stack top to idx,
// filling new slots with nil or dropping values.
func (l *State) SetTop(idx int) {
	l.checkOpen()
	switch {
	case isPseudo(idx):
		panic("pseudo-index invalid for top")
	case idx < 0 && -idx-1 > l.Top():
		panic("stack underflow")
	case idx > l.Top():
		l.grow(idx - l.Top())
	}
	C.lua_settop(l.ptr, C.int(idx))
}

// Pop removes n values from the top of the stack.
func (l *State) Pop(n int) {
	l.SetTop(-n - 1)
}

func (l *State) PushValue(idx int) {
	l.checkIndex(idx)
	l.grow(1)
	C.lua_pushvalue(l.ptr, C.int(idx))
}

func (l *State) Remove(idx int) {
	l.checkIndex(idx)
	if isPseudo(idx) {
		panic("cannot remove a pseudo-index")
	}
	C.lua_remove(l.ptr, C.int(idx))
}

func (l *State) Insert(idx int) {
	l.checkIndex(idx)
	if isPseudo(idx) {
		panic("cannot insert at a pseudo-index")
	}
	C.lua_insert(l.ptr, C.int(idx))
}

// CheckStack ensures the stack has space for at least n more elements.
func (l *State) CheckStack(n int) bool {
	l.checkOpen()
	return C.lua_checkstack(l.ptr, C.int(n)) != 0
}

func (l *State) Type(idx int) Type {
	l.checkIndex(idx)
	return Type(C.lua_type(l.ptr, C.int(idx)))
}

func (l *State) IsFunction(idx int) bool { return l.Type(idx) == TypeFunction }
func (l *State) IsTable(idx int) bool    { return l.Type(idx) == TypeTable }
func (l *State) IsNil(idx int) bool      { return l.Type(idx) == TypeNil }
func (l *State) IsBoolean(idx int) bool  { return l.Type(idx) == TypeBoolean }
func (l *State) IsNone(idx int) bool     { return l.Type(idx) == TypeNone }

// checkLuauFunction panics if the value at idx
// is not a function loaded from bytecode.
func (l *State) checkLuauFunction(idx int) {
	if !l.IsFunction(idx) || C.lua_iscfunction(l.ptr, C.int(idx)) != 0 {
		panic("luau: value is not a function loaded from bytecode")
	}
}

func (l *State) IsNumber(idx int) bool {
	l.checkIndex(idx)
	return C.lua_isnumber(l.ptr, C.int(idx)) != 0
}

func (l *State) IsString(idx int) bool {
	l.checkIndex(idx)
	return C.lua_isstring(l.ptr, C.int(idx)) != 0
}

func (l *State) ToNumber(idx int) (n float64, ok bool) {
	l.checkIndex(idx)
	var isNum C.int
	n = float64(C.lua_tonumberx(l.ptr, C.int(idx), &isNum))
	return n, isNum != 0
}

// ToInteger converts the value at idx to an integer.
// The engine's integers are C ints,
// so values outside that range are truncated by the engine.
func (l *State) ToInteger(idx int) (n int, ok bool) {
	l.checkIndex(idx)
	var isNum C.int
	n = int(C.lua_tointegerx(l.ptr, C.int(idx), &isNum))
	return n, isNum != 0
}

func (l *State) ToBoolean(idx int) bool {
	l.checkIndex(idx)
	return C.lua_toboolean(l.ptr, C.int(idx)) != 0
}

// ToString converts the value at idx to a string.
// Like the C API, numbers are converted in place to strings.
// The length reported by the engine is always used:
// strings may contain NUL bytes.
func (l *State) ToString(idx int) (s string, ok bool) {
	l.checkIndex(idx)
	var n C.size_t
	ptr := C.lua_tolstring(l.ptr, C.int(idx), &n)
	if ptr == nil {
		return "", false
	}
	return C.GoStringN(ptr, C.int(n)), true
}

func (l *State) PushNil() {
	l.checkOpen()
	l.grow(1)
	C.lua_pushnil(l.ptr)
}

func (l *State) PushNumber(n float64) {
	l.checkOpen()
	l.grow(1)
	C.lua_pushnumber(l.ptr, C.double(n))
}

// PushInteger pushes an integer onto the stack.
// The engine's integers are C ints,
// so values outside that range are truncated.
// Use [*State.PushNumber] for larger values.
func (l *State) PushInteger(n int) {
	l.checkOpen()
	l.grow(1)
	C.lua_pushinteger(l.ptr, C.int(n))
}

func (l *State) PushString(s string) {
	l.checkOpen()
	l.grow(1)
	C.luaugo_pushstring(l.ptr, s)
}

func (l *State) PushBoolean(b bool) {
	l.checkOpen()
	l.grow(1)
	i := C.int(0)
	if b {
		i = 1
	}
	C.lua_pushboolean(l.ptr, i)
}

func (l *State) CreateTable(nArr, nRec int) {
	l.checkOpen()
	l.grow(1)
	C.lua_createtable(l.ptr, C.int(nArr), C.int(nRec))
}

// OpenLibraries loads the engine's standard libraries into the global table.
func (l *State) OpenLibraries() {
	l.checkOpen()
	C.luaL_openlibs(l.ptr)
}

// Function is a Go function that can be called from Luau.
// It receives its arguments on the stack
// and returns the number of results it pushed.
// A non-nil error is raised as a Luau runtime error
// whose value is the error's message.
type Function = func(*State) (int, error)

func pcall(f Function, l *State) (nResults int, err error) {
	defer func() {
		if v := recover(); v != nil {
			nResults = 0
			switch v := v.(type) {
			case raisedError:
				err = v
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = fmt.Errorf("%v", v)
			}
		}
	}()
	return f(l)
}

// PushClosure pops n values from the stack
// and pushes a closure that calls f with those values as upvalues.
// Upvalues are accessed with [UpvalueIndex].
// debugName is the name the engine reports in tracebacks.
func (l *State) PushClosure(debugName string, n int, f Function) {
	if f == nil {
		panic("nil Function")
	}
	if n < 0 || n > 254 {
		panic("invalid upvalue count")
	}
	l.checkOpen()
	l.checkElems(n)
	l.grow(2)
	data := l.data()
	funcID := data.nextID
	if funcID == 0 {
		panic("ID wrap-around")
	}
	data.nextID++
	data.closures[funcID] = f

	var cname *C.char
	if debugName != "" {
		cname = data.debugNames[debugName]
		if cname == nil {
			// The engine keeps the pointer for the closure's lifetime,
			// so names are interned until the State is closed.
			cname = C.CString(debugName)
			data.debugNames[debugName] = cname
		}
	}
	C.pushclosure(l.ptr, C.uint64_t(funcID), cname, C.int(n))
}

// RaiseError raises msg as a runtime error.
// It may only be called from a [Function] running on l,
// and it does not return.
func (l *State) RaiseError(msg string) {
	if !l.callback {
		panic("luau: RaiseError called outside of a Go function")
	}
	panic(raisedError(msg))
}

type raisedError string

func (e raisedError) Error() string { return string(e) }

// Field pushes t[k] onto the stack, where t is the value at idx,
// and returns the type of the pushed value.
// Metamethods may run; they are run in protected mode.
// If an error occurs, Field pushes the error message instead.
func (l *State) Field(idx int, k string) (Type, error) {
	l.checkIndex(idx)
	l.grow(4)
	var tp C.int
	ret := C.getfield(l.ptr, C.int(idx), k, &tp)
	if ret != C.LUA_OK {
		return TypeNil, fmt.Errorf("luau: get field %q: %w", k, l.newError(ret))
	}
	return Type(tp), nil
}

// Global pushes the value of the global name onto the stack
// and returns its type.
// It is equivalent to looking up name at [GlobalsIndex].
func (l *State) Global(name string) (Type, error) {
	return l.Field(GlobalsIndex, name)
}

// SetField does t[k] = v, where t is the value at idx
// and v is the value at the top of the stack.
// SetField pops the value from the stack.
// If an error occurs, SetField replaces the value with the error message.
func (l *State) SetField(idx int, k string) error {
	l.checkIndex(idx)
	l.checkElems(1)
	l.grow(4)
	ret := C.setfield(l.ptr, C.int(idx), k)
	if ret != C.LUA_OK {
		return fmt.Errorf("luau: set field %q: %w", k, l.newError(ret))
	}
	return nil
}

// SetGlobal pops a value from the stack and sets it as the new value of the global name.
func (l *State) SetGlobal(name string) error {
	return l.SetField(GlobalsIndex, name)
}

// Call calls a function in protected mode.
// The function and its nArgs arguments are popped from the stack;
// nResults values (or all of them for [MultipleReturns]) are pushed.
// On error, Call leaves the error message on the stack
// and returns an error that [AsError] reports the status code for.
// If msgHandler is non-zero, it is the stack index of a message handler.
//
// If ctx is canceled while the function is running,
// the engine raises a runtime error at its next interrupt check.
func (l *State) Call(ctx context.Context, nArgs, nResults, msgHandler int) error {
	l.checkOpen()
	if nArgs < 0 {
		panic("negative arguments")
	}
	if nResults < 0 && nResults != MultipleReturns {
		panic("negative results")
	}
	l.checkElems(1 + nArgs)
	if msgHandler != 0 {
		msgHandler = l.AbsIndex(msgHandler)
	}
	if nResults > 0 {
		l.grow(nResults)
	}

	ptr := l.ptr
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		C.setinterrupt(ptr, 1)
		close(interrupted)
	})
	ret := C.lua_pcall(l.ptr, C.int(nArgs), C.int(nResults), C.int(msgHandler))
	if !stop() {
		<-interrupted
		C.setinterrupt(l.ptr, 0)
	}
	if ret != C.LUA_OK {
		err := l.newError(ret)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err.cause = ctxErr
		}
		return err
	}
	return nil
}

// CallUnprotected calls a function without a protected boundary.
// Any error raised by the function unwinds past the Go caller,
// which terminates the process.
// Use it only for functions known not to raise errors;
// prefer [*State.Call].
func (l *State) CallUnprotected(nArgs, nResults int) {
	l.checkOpen()
	if nArgs < 0 {
		panic("negative arguments")
	}
	l.checkElems(1 + nArgs)
	if nResults > 0 {
		l.grow(nResults)
	}
	C.lua_call(l.ptr, C.int(nArgs), C.int(nResults))
}

func isPseudo(i int) bool {
	return i <= RegistryIndex
}

const goClosureUpvalueIndex = C.LUA_GLOBALSINDEX - 1

// UpvalueIndex returns the pseudo-index of the i-th upvalue
// of the running Go function.
func UpvalueIndex(i int) int {
	if i < 1 || i > 255 {
		panic("invalid upvalue index")
	}
	return C.LUA_GLOBALSINDEX - (i + 1)
}

// Status codes returned by the engine.
const (
	OK        int = C.LUA_OK
	Yield     int = C.LUA_YIELD
	ErrRun    int = C.LUA_ERRRUN
	ErrSyntax int = C.LUA_ERRSYNTAX
	ErrMem    int = C.LUA_ERRMEM
	ErrErr    int = C.LUA_ERRERR
	Break     int = C.LUA_BREAK
)

type luaError struct {
	code  C.int
	msg   string
	cause error
}

func (l *State) newError(code C.int) *luaError {
	e := &luaError{code: code}
	if l.Type(-1) == TypeString {
		e.msg, _ = l.ToString(-1)
	}
	return e
}

func (e *luaError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	switch e.code {
	case C.LUA_ERRRUN:
		return "runtime error"
	case C.LUA_ERRMEM:
		return "memory allocation error"
	case C.LUA_ERRERR:
		return "error while running message handler"
	case C.LUA_ERRSYNTAX:
		return "syntax error"
	case C.LUA_YIELD:
		return "coroutine yield"
	case C.LUA_BREAK:
		return "break"
	default:
		return "unknown error"
	}
}

func (e *luaError) Unwrap() error {
	return e.cause
}

// AsError returns the engine status code carried by err.
// AsError(nil) returns [OK], true.
func AsError(err error) (code int, ok bool) {
	if err == nil {
		return OK, true
	}
	var e *luaError
	if !errors.As(err, &e) {
		return 0, false
	}
	return int(e.code), true
}
