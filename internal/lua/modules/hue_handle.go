package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/huebridge/internal/hue"
)

const handleTypeName = "hue.handle"

// Handle is a light or group identifier bound for chained writes. Chained calls
// never raise; the last failure is kept for handle:err().
type Handle struct {
	module  *HueModule
	kind    hue.Kind
	ident   hue.Identifier
	lastErr error
}

func registerHandleType(L *lua.LState) {
	mt := L.NewTypeMetatable(handleTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), handleMethods))
}

var handleMethods = map[string]lua.LGFunction{
	// Getters
	"id":   handleID,
	"ids":  handleIDs,
	"get":  handleGet,
	"err":  handleErr,
	"ct_k": handleKelvin,

	// Chainable setters (return self for chaining)
	"on":         handleOn,
	"off":        handleOff,
	"set_bri":    handleSetBri,
	"set_color":  handleSetColorXY,
	"set_ct":     handleSetColorTemp,
	"set_ct_k":   handleSetKelvin,
	"set_hue":    handleSetHue,
	"set_sat":    handleSetSat,
	"alert":      handleAlert,
	"set_state":  handleSetState,
	"transition": handleTransition,
}

// handle(kind) returns the hue.light / hue.group factory.
// hue.light(ident) -> handle
func (m *HueModule) handle(kind hue.Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		ud := L.NewUserData()
		ud.Value = &Handle{module: m, kind: kind, ident: checkIdentifier(L, 1)}
		L.SetMetatable(ud, L.GetTypeMetatable(handleTypeName))
		L.Push(ud)
		return 1
	}
}

func checkHandle(L *lua.LState) (*Handle, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*Handle); ok {
		return v, ud
	}
	L.ArgError(1, "hue.handle expected")
	return nil, nil
}

// write sends p and keeps the error for handle:err().
func (h *Handle) write(L *lua.LState, p hue.Payload) {
	res, err := h.module.bridge.SetRaw(luaContext(L), h.kind, h.ident, p)
	if err == nil {
		err = res.Err()
	}
	h.lastErr = err
	if err != nil {
		log.Error().Err(err).Str("kind", string(h.kind)).Str("target", h.ident.String()).Msg("Failed to set state")
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// handle:id() -> string
func handleID(L *lua.LState) int {
	h, _ := checkHandle(L)
	L.Push(lua.LString(h.ident.String()))
	return 1
}

// handle:ids() -> ({id, ...}, err)
func handleIDs(L *lua.LState) int {
	h, _ := checkHandle(L)
	ids, err := h.module.bridge.Resolve(luaContext(L), h.kind, h.ident)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(GoToLuaValue(L, ids))
	L.Push(lua.LNil)
	return 2
}

// handle:get(attr) -> (value, err)
// Reads the first addressed resource.
func handleGet(L *lua.LState) int {
	h, _ := checkHandle(L)
	attr := L.OptString(2, "")

	readings, err := h.module.bridge.Get(luaContext(L), h.kind, h.ident, attr)
	if err == nil && len(readings) > 0 {
		err = readings[0].Err
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if len(readings) == 0 {
		L.Push(lua.LNil)
		L.Push(lua.LNil)
		return 2
	}
	L.Push(GoToLuaValue(L, readings[0].Value))
	L.Push(lua.LNil)
	return 2
}

// handle:err() -> string or nil
func handleErr(L *lua.LState) int {
	h, _ := checkHandle(L)
	if h.lastErr == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(h.lastErr.Error()))
	return 1
}

// handle:on() -> self
func handleOn(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("on", true))
	L.Push(ud)
	return 1
}

// handle:off() -> self
func handleOff(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("on", false))
	L.Push(ud)
	return 1
}

// handle:set_bri(value) -> self
// value is clamped to 1-254
func handleSetBri(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("bri", clamp(L.CheckInt(2), 1, 254)))
	L.Push(ud)
	return 1
}

// handle:set_color(x, y) -> self
// CIE xy coordinates
func handleSetColorXY(L *lua.LState) int {
	h, ud := checkHandle(L)
	x := float64(L.CheckNumber(2))
	y := float64(L.CheckNumber(3))
	h.write(L, hue.Attr("xy", []float64{x, y}))
	L.Push(ud)
	return 1
}

// handle:set_ct(mirek) -> self
// mirek is clamped to 153-500
func handleSetColorTemp(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("ct", clamp(L.CheckInt(2), 153, 500)))
	L.Push(ud)
	return 1
}

// handle:set_ct_k(kelvin) -> self
// kelvin is clamped to 2000-6500 and sent as mireds
func handleSetKelvin(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("ct", hue.MiredsFromKelvin(L.CheckInt(2))))
	L.Push(ud)
	return 1
}

// handle:ct_k() -> (kelvin, err)
func handleKelvin(L *lua.LState) int {
	h, _ := checkHandle(L)
	readings, err := h.module.bridge.Get(luaContext(L), h.kind, h.ident, "ct")
	if err == nil && len(readings) > 0 {
		err = readings[0].Err
	}
	if err == nil && len(readings) == 0 {
		err = hue.ErrUnknownResource
	}
	var kelvin int
	if err == nil {
		mireds, _ := readings[0].Value.(float64)
		kelvin, err = hue.KelvinFromMireds(int(mireds))
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(kelvin))
	L.Push(lua.LNil)
	return 2
}

// handle:set_hue(value) -> self
// value is clamped to 0-65535
func handleSetHue(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("hue", clamp(L.CheckInt(2), 0, 65535)))
	L.Push(ud)
	return 1
}

// handle:set_sat(value) -> self
// value is clamped to 0-254
func handleSetSat(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("sat", clamp(L.CheckInt(2), 0, 254)))
	L.Push(ud)
	return 1
}

// handle:alert(type) -> self
// type: "none", "select" (single flash), "lselect" (15 second flash)
func handleAlert(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, hue.Attr("alert", L.OptString(2, "select")))
	L.Push(ud)
	return 1
}

// handle:set_state({on = true, bri = 200, xy = {0.5, 0.4}}) -> self
func handleSetState(L *lua.LState) int {
	h, ud := checkHandle(L)
	h.write(L, LuaTableToPayload(L.CheckTable(2)))
	L.Push(ud)
	return 1
}

// handle:transition(ds) -> self
// Sets the sticky transition time in deciseconds; nil clears it.
func handleTransition(L *lua.LState) int {
	h, ud := checkHandle(L)
	ctx := luaContext(L)

	if L.Get(2) == lua.LNil {
		h.lastErr = h.module.bridge.ClearTransitionTime(ctx, h.kind, h.ident)
	} else {
		h.lastErr = h.module.bridge.SetTransitionTime(ctx, h.kind, h.ident, clamp(L.CheckInt(2), 0, 65535))
	}
	if h.lastErr != nil {
		log.Error().Err(h.lastErr).Str("kind", string(h.kind)).Str("target", h.ident.String()).Msg("Failed to set transition time")
	}
	L.Push(ud)
	return 1
}
