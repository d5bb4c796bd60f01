package lua

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	lua "github.com/yuin/gopher-lua"
)

// ConfigService exposes a policy's static configuration to scripts
type ConfigService struct {
	values map[string]any
}

// NewConfigService creates a config service over values; nil means no configuration
func NewConfigService(values map[string]any) *ConfigService {
	if values == nil {
		values = make(map[string]any)
	}
	return &ConfigService{values: values}
}

// Register adds the config module to the Lua state
// Usage in Lua:
//
//	local value = config.get("key")
//	local value = config.get("key", "default_value")
//	local exists = config.has("key")
//	local names = config.keys()
func (s *ConfigService) Register(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(s.luaGet))
	L.SetField(mod, "has", L.NewFunction(s.luaHas))
	L.SetField(mod, "keys", L.NewFunction(s.luaKeys))
	L.SetGlobal("config", mod)
}

func (s *ConfigService) luaGet(L *lua.LState) int {
	key := L.CheckString(1)
	fallback := L.Get(2)

	if value, ok := s.values[key]; ok {
		L.Push(GoToLua(L, value))
	} else {
		L.Push(fallback)
	}
	return 1
}

func (s *ConfigService) luaHas(L *lua.LState) int {
	_, ok := s.values[L.CheckString(1)]
	L.Push(lua.LBool(ok))
	return 1
}

func (s *ConfigService) luaKeys(L *lua.LState) int {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	L.Push(GoToLua(L, keys))
	return 1
}

// JSONService lets scripts decode structured header values
type JSONService struct{}

// NewJSONService creates a new JSON service
func NewJSONService() *JSONService {
	return &JSONService{}
}

// Register adds the json module to the Lua state
// Usage in Lua:
//
//	local obj = json.decode('{"key": "value"}')
//	local str = json.encode({key = "value"})
func (s *JSONService) Register(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "encode", L.NewFunction(s.luaEncode))
	L.SetField(mod, "decode", L.NewFunction(s.luaDecode))
	L.SetGlobal("json", mod)
}

// Returns: json_string or (nil, error)
func (s *JSONService) luaEncode(L *lua.LState) int {
	b, err := json.Marshal(LuaToGo(L.Get(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to encode JSON: %v", err)))
		return 2
	}
	L.Push(lua.LString(string(b)))
	return 1
}

// Returns: value or (nil, error)
func (s *JSONService) luaDecode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to decode JSON: %v", err)))
		return 2
	}
	L.Push(GoToLua(L, v))
	return 1
}
