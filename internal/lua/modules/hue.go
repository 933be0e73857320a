package modules

import (
	"errors"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/huebridge/internal/hue"
)

// HueModule provides hue.* functions to Lua.
//
// ERROR HANDLING CONVENTION:
// All functions that can fail return two values: (result, error_string).
//   - On success: (result, nil)
//   - On error: (nil/false, "error message")
//
// Identifiers are a number (id), a string ("all", "3", "Kitchen", "1,2") or a
// table of those. Example:
//
//	local ok, err = hue.set("light", "Kitchen", "bri", 127)
//	if not ok then
//	    log.error("Failed: " .. err)
//	end
//
//	hue.set_raw("group", "Living", {on = true, xy = {0.45, 0.41}})
//
// Chainable handles wrap one identifier:
//
//	hue.light("Desk"):on():set_bri(200)
//	hue.group(1):transition(40):off()
type HueModule struct {
	bridge *hue.Bridge
}

// NewHueModule creates a new hue module
func NewHueModule(bridge *hue.Bridge) *HueModule {
	return &HueModule{bridge: bridge}
}

// Loader is the module loader for Lua
func (m *HueModule) Loader(L *lua.LState) int {
	registerHandleType(L)

	mod := L.NewTable()

	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "set_raw", L.NewFunction(m.setRaw))
	L.SetField(mod, "refresh", L.NewFunction(m.refresh))
	L.SetField(mod, "ids", L.NewFunction(m.ids))
	L.SetField(mod, "transition", L.NewFunction(m.transition))
	L.SetField(mod, "run_scene", L.NewFunction(m.runScene))
	L.SetField(mod, "sleep", L.NewFunction(sleep))

	L.SetField(mod, "light", L.NewFunction(m.handle(hue.KindLight)))
	L.SetField(mod, "group", L.NewFunction(m.handle(hue.KindGroup)))

	L.Push(mod)
	return 1
}

// get(kind, ident, attr) -> ({[id] = value}, err)
// attr may be omitted for whole documents. err reports the first failed id; the
// table still holds the ones that succeeded.
func (m *HueModule) get(L *lua.LState) int {
	kind := checkKind(L, 1)
	ident := checkIdentifier(L, 2)
	attr := L.OptString(3, "")

	readings, err := m.bridge.Get(luaContext(L), kind, ident, attr)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	tbl := L.NewTable()
	var first error
	for _, r := range readings {
		if r.Err != nil {
			if first == nil {
				first = r.Err
			}
			continue
		}
		tbl.RawSetString(r.ID, GoToLuaValue(L, r.Value))
	}

	L.Push(tbl)
	if first != nil {
		L.Push(lua.LString(first.Error()))
	} else {
		L.Push(lua.LNil)
	}
	return 2
}

// set(kind, ident, attr, value) -> (ok, err)
func (m *HueModule) set(L *lua.LState) int {
	kind := checkKind(L, 1)
	ident := checkIdentifier(L, 2)
	attr := L.CheckString(3)
	value := LuaToGo(L.CheckAny(4))

	return m.dispatch(L, kind, ident, hue.Attr(attr, value))
}

// set_raw(kind, ident, {attr = value, ...}) -> (ok, err)
func (m *HueModule) setRaw(L *lua.LState) int {
	kind := checkKind(L, 1)
	ident := checkIdentifier(L, 2)
	payload := LuaTableToPayload(L.CheckTable(3))

	return m.dispatch(L, kind, ident, payload)
}

func (m *HueModule) dispatch(L *lua.LState, kind hue.Kind, ident hue.Identifier, p hue.Payload) int {
	res, err := m.bridge.SetRaw(luaContext(L), kind, ident, p)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		log.Debug().Err(err).Str("kind", string(kind)).Str("target", ident.String()).Msg("Lua write failed")
	}
	return pushResult(L, err)
}

// refresh() -> (ok, err)
func (m *HueModule) refresh(L *lua.LState) int {
	return pushResult(L, m.bridge.Refresh(luaContext(L)))
}

// ids(kind, ident) -> ({id, ...}, err)
func (m *HueModule) ids(L *lua.LState) int {
	kind := checkKind(L, 1)
	ident := hue.All()
	if L.GetTop() >= 2 {
		ident = checkIdentifier(L, 2)
	}

	ids, err := m.bridge.Resolve(luaContext(L), kind, ident)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(GoToLuaValue(L, ids))
	L.Push(lua.LNil)
	return 2
}

// transition(kind, ident, ds) -> (ok, err)
// ds is in deciseconds; nil clears the sticky transition time.
func (m *HueModule) transition(L *lua.LState) int {
	kind := checkKind(L, 1)
	ident := checkIdentifier(L, 2)

	if L.Get(3) == lua.LNil {
		return pushResult(L, m.bridge.ClearTransitionTime(luaContext(L), kind, ident))
	}
	ds, err := hue.Deciseconds(float64(L.CheckNumber(3)))
	if err != nil {
		return pushResult(L, err)
	}
	return pushResult(L, m.bridge.SetTransitionTime(luaContext(L), kind, ident, ds))
}

// run_scene(group_name, scene_name) -> (ok, err)
func (m *HueModule) runScene(L *lua.LState) int {
	group := L.CheckString(1)
	scene := L.CheckString(2)

	err := m.bridge.RunScene(luaContext(L), group, scene)
	if errors.Is(err, hue.ErrAmbiguousResource) {
		log.Warn().Err(err).Str("group", group).Str("scene", scene).Msg("Scene is ambiguous")
	}
	return pushResult(L, err)
}
