package modules

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/huebridge/internal/hue"
)

// LuaToGo converts a Lua value to a Go value. Tables with only positive integer
// keys become slices, others maps.
func LuaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			num, ok := k.(lua.LNumber)
			if !ok || num < 1 {
				isArray = false
				return
			}
			if idx := int(num); idx > maxIdx {
				maxIdx = idx
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				arr[int(k.(lua.LNumber))-1] = LuaToGo(v)
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = LuaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

// GoToLuaValue converts a Go value to a Lua value
func GoToLuaValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, GoToLuaValue(L, item))
		}
		return tbl
	case map[string]any:
		return MapToLuaTable(L, val)
	case hue.Snapshot:
		return MapToLuaTable(L, val)
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// MapToLuaTable converts a Go map to a Lua table
func MapToLuaTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, GoToLuaValue(L, v))
	}
	return tbl
}

// LuaTableToPayload converts a table of attributes to a payload.
func LuaTableToPayload(tbl *lua.LTable) hue.Payload {
	p := make(hue.Payload)
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			p[string(ks)] = LuaToGo(v)
		}
	})
	return p
}

// checkIdentifier reads an identifier argument: a number is an id, a string is
// parsed like on the command line, a table lists several.
func checkIdentifier(L *lua.LState, n int) hue.Identifier {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		return hue.ID(int(v))
	case lua.LString:
		return hue.ParseIdentifier(string(v))
	case *lua.LTable:
		var items []hue.Identifier
		v.ForEach(func(_, item lua.LValue) {
			switch it := item.(type) {
			case lua.LNumber:
				items = append(items, hue.ID(int(it)))
			case lua.LString:
				items = append(items, hue.ParseIdentifier(string(it)))
			}
		})
		return hue.List(items...)
	default:
		L.ArgError(n, "id, name or list expected")
		return hue.Identifier{}
	}
}

func checkKind(L *lua.LState, n int) hue.Kind {
	kind, err := hue.ParseKind(L.CheckString(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return kind
}

// luaContext returns the context the runtime attached to L.
func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// pushResult pushes (ok, err) for an error.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}
