package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// GoToLua converts a Go value to a Lua value.
// Unsupported types become nil.
func GoToLua(L *lua.LState, value any) lua.LValue {
	if value == nil {
		return lua.LNil
	}

	switch v := value.(type) {
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case []string:
		tbl := L.NewTable()
		for i, s := range v {
			tbl.RawSetInt(i+1, lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, val := range v {
			tbl.RawSetInt(i+1, GoToLua(L, val))
		}
		return tbl
	case []map[string]any:
		// HCL decodes nested blocks as lists of objects
		tbl := L.NewTable()
		for i, val := range v {
			tbl.RawSetInt(i+1, GoToLua(L, val))
		}
		return tbl
	case map[string][]string:
		tbl := L.NewTable()
		for key, vals := range v {
			L.SetField(tbl, key, GoToLua(L, vals))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for key, val := range v {
			L.SetField(tbl, key, GoToLua(L, val))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// LuaToGo converts a Lua value to a Go value.
// Tables with a positive length are treated as arrays, others as objects.
func LuaToGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		if maxn := v.MaxN(); maxn > 0 {
			arr := make([]any, 0, maxn)
			for i := 1; i <= maxn; i++ {
				arr = append(arr, LuaToGo(v.RawGetInt(i)))
			}
			return arr
		}
		obj := make(map[string]any)
		v.ForEach(func(key, value lua.LValue) {
			if key.Type() == lua.LTString {
				obj[key.String()] = LuaToGo(value)
			}
		})
		return obj
	default:
		return nil
	}
}
