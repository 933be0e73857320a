package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// UtilsModule provides utility functions to Lua
type UtilsModule struct{}

// NewUtilsModule creates a new utils module
func NewUtilsModule() *UtilsModule {
	return &UtilsModule{}
}

// Loader is the module loader for Lua
func (m *UtilsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "sleep", L.NewFunction(sleep))
	L.SetField(mod, "now", L.NewFunction(now))

	L.Push(mod)
	return 1
}

// sleep(ms) -> (ok, err)
// Returns early with an error when the script is cancelled.
func sleep(L *lua.LState) int {
	ms := L.CheckInt(1)

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return pushResult(L, nil)
	case <-luaContext(L).Done():
		return pushResult(L, luaContext(L).Err())
	}
}

// now() -> unix time in seconds, with fraction
func now(L *lua.LState) int {
	L.Push(lua.LNumber(float64(time.Now().UnixNano()) / 1e9))
	return 1
}
