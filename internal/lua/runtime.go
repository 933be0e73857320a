// Package lua runs user scripts against a bridge.
package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/huebridge/internal/hue"
	"github.com/dokzlo13/huebridge/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Runtime owns one Lua VM. Scripts run one at a time.
type Runtime struct {
	L      *lua.LState
	bridge *hue.Bridge

	mu     sync.Mutex
	closed bool
}

// NewRuntime creates a runtime with the log, hue and utils modules preloaded.
func NewRuntime(bridge *hue.Bridge) *Runtime {
	r := &Runtime{
		L:      lua.NewState(),
		bridge: bridge,
	}
	r.registerModules()
	return r
}

func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("hue", modules.NewHueModule(r.bridge).Loader)
	r.L.PreloadModule("utils", modules.NewUtilsModule().Loader)
}

// Close releases the VM. Later runs return ErrRuntimeClosed.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}

// RunFile executes a script file. Cancelling ctx aborts the script.
func (r *Runtime) RunFile(ctx context.Context, path string) error {
	log.Info().Str("path", path).Msg("Running Lua script")
	return r.run(ctx, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// RunString executes a chunk of Lua source.
func (r *Runtime) RunString(ctx context.Context, src string) error {
	return r.run(ctx, func(L *lua.LState) error {
		return L.DoString(src)
	})
}

func (r *Runtime) run(ctx context.Context, fn func(*lua.LState) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Lua script panicked")
			err = fmt.Errorf("lua script panicked: %v", rec)
		}
	}()

	// Modules read the context through L.Context().
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	if err := fn(r.L); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}
