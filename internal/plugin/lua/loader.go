package lua

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/pluginfw/pluginfw/internal/plugin"
)

// Loader resolves and loads Lua-scripted plugins. A plugin with id
// "foo" is the script <dir>/foo/plugin.lua.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at the given scripts directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Resolve returns the script path for a plugin id.
func (l *Loader) Resolve(id string) (string, error) {
	path := filepath.Join(l.dir, id, "plugin.lua")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", plugin.ErrModuleNotFound, id)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return path, nil
}

// libs opened in every plugin state. The io and os libraries stay
// closed; plugins reach the outside world through the host only.
var sandboxLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// Load runs a plugin script and adapts it to the plugin contract. The
// script must define a global table named plugin carrying at least id,
// name, version, and vendor.
func (l *Loader) Load(path string) (plugin.Handle, error) {
	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range sandboxLibs {
		if err := state.CallByParam(lua.P{
			Fn:      state.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			state.Close()
			return nil, fmt.Errorf("failed to open %s library: %w", lib.name, err)
		}
	}
	// The base library leaks script loading back in. Take it out.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		state.SetGlobal(name, lua.LNil)
	}

	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, fmt.Errorf("%w: %s: %v", plugin.ErrLoadFailed, path, err)
	}

	p, err := newLuaPlugin(state)
	if err != nil {
		state.Close()
		return nil, err
	}
	return &handle{plugin: p}, nil
}

type handle struct {
	plugin *luaPlugin
}

func (h *handle) Instance() plugin.Plugin { return h.plugin }

// Release closes the interpreter state. The plugin must not be used
// afterwards.
func (h *handle) Release() error {
	h.plugin.close()
	return nil
}
