// Package lua runs policy scripts written in Lua.
//
// A script is compiled once and executed in a fresh Lua state per call, so a
// compiled Script may be shared across goroutines.
package lua

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ErrFunctionNotDefined is returned when a script does not define the called function
var ErrFunctionNotDefined = errors.New("lua function not defined")

// Script is a compiled Lua chunk plus the services it runs with
type Script struct {
	name   string
	proto  *lua.FunctionProto
	config *ConfigService
	json   *JSONService
}

// Compile parses and compiles source. config is exposed to the script as the
// config module.
func Compile(name, source string, config map[string]any) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lua script %s: %w", name, err)
	}

	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile lua script %s: %w", name, err)
	}

	return &Script{
		name:   name,
		proto:  proto,
		config: NewConfigService(config),
		json:   NewJSONService(),
	}, nil
}

// Name returns the script name used in error messages
func (s *Script) Name() string {
	return s.name
}

// Defines reports whether running the script defines a global function fn
func (s *Script) Defines(fn string) (bool, error) {
	L, err := s.load()
	if err != nil {
		return false, err
	}
	defer L.Close()

	_, ok := L.GetGlobal(fn).(*lua.LFunction)
	return ok, nil
}

// Call runs the script and then calls the global function fn with args,
// returning its first result converted with LuaToGo.
func (s *Script) Call(fn string, args ...any) (any, error) {
	L, err := s.load()
	if err != nil {
		return nil, err
	}
	defer L.Close()

	f, ok := L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrFunctionNotDefined, fn, s.name)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = GoToLua(L, a)
	}

	if err := L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, luaArgs...); err != nil {
		return nil, fmt.Errorf("lua function %s in %s failed: %w", fn, s.name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return LuaToGo(ret), nil
}

func (s *Script) load() (*lua.LState, error) {
	L := lua.NewState()
	s.config.Register(L)
	s.json.Register(L)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run lua script %s: %w", s.name, err)
	}
	return L, nil
}
