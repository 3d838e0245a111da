package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/pluginfw/pluginfw/internal/plugin"
)

// luaPlugin adapts a loaded script to the plugin contract. The
// interpreter state is single-threaded, so every call into it takes
// the plugin's own mutex; command dispatch runs outside the manager's
// critical section and may race lifecycle hooks otherwise.
type luaPlugin struct {
	mu    sync.Mutex
	state *lua.LState

	id          string
	name        string
	version     string
	vendor      string
	description string
	deps        []string
}

// newLuaPlugin reads the global plugin table out of a freshly run
// script and validates the required descriptor fields.
func newLuaPlugin(state *lua.LState) (*luaPlugin, error) {
	tbl, ok := state.GetGlobal("plugin").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: script defines no plugin table", plugin.ErrContractViolation)
	}

	p := &luaPlugin{
		state:       state,
		id:          tableString(tbl, "id"),
		name:        tableString(tbl, "name"),
		version:     tableString(tbl, "version"),
		vendor:      tableString(tbl, "vendor"),
		description: tableString(tbl, "description"),
	}
	if p.id == "" || p.name == "" || p.version == "" || p.vendor == "" {
		return nil, fmt.Errorf("%w: plugin table missing id, name, version, or vendor", plugin.ErrContractViolation)
	}
	if deps, ok := tbl.RawGetString("dependencies").(*lua.LTable); ok {
		for i := 1; i <= deps.MaxN(); i++ {
			if dep := deps.RawGetInt(i); dep != lua.LNil {
				p.deps = append(p.deps, dep.String())
			}
		}
	}
	return p, nil
}

func tableString(tbl *lua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func (p *luaPlugin) ID() string             { return p.id }
func (p *luaPlugin) Name() string           { return p.name }
func (p *luaPlugin) Version() string        { return p.version }
func (p *luaPlugin) Vendor() string         { return p.vendor }
func (p *luaPlugin) Description() string    { return p.description }
func (p *luaPlugin) Dependencies() []string { return append([]string(nil), p.deps...) }

func (p *luaPlugin) Metadata() *plugin.Metadata {
	return &plugin.Metadata{
		ID:           p.id,
		Name:         p.name,
		Version:      p.version,
		Vendor:       p.vendor,
		Description:  p.description,
		Dependencies: p.Dependencies(),
	}
}

func (p *luaPlugin) Initialize() error { return p.callHook("initialize") }
func (p *luaPlugin) Activate() error   { return p.callHook("activate") }
func (p *luaPlugin) Deactivate() error { return p.callHook("deactivate") }
func (p *luaPlugin) Shutdown() error   { return p.callHook("shutdown") }

// callHook invokes a global lifecycle function. A missing hook is a
// success. A Lua error or an explicit false return is a failure.
func (p *luaPlugin) callHook(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn := p.state.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	lfn, ok := fn.(*lua.LFunction)
	if !ok {
		return fmt.Errorf("global %q is not a function", name)
	}
	if err := p.state.CallByParam(lua.P{Fn: lfn, NRet: 1, Protect: true}); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	ret := p.state.Get(-1)
	p.state.Pop(1)
	if ret == lua.LFalse {
		return fmt.Errorf("%s returned false", name)
	}
	return nil
}

// ExecuteCommand dispatches to the script's global execute function.
func (p *luaPlugin) ExecuteCommand(command string, params map[string]any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.state.GetGlobal("execute").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not handle commands", p.id)
	}
	if err := p.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(command), goToLua(p.state, params)); err != nil {
		return nil, fmt.Errorf("command %q: %w", command, err)
	}
	ret := p.state.Get(-1)
	p.state.Pop(1)
	return luaToGo(ret), nil
}

func (p *luaPlugin) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Close()
}

// goToLua converts a Go value into its Lua representation. Unknown
// types degrade to their string form.
func goToLua(state *lua.LState, v any) lua.LValue {
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
	case []any:
		tbl := state.NewTable()
		for _, item := range val {
			tbl.Append(goToLua(state, item))
		}
		return tbl
	case map[string]any:
		tbl := state.NewTable()
		for key, item := range val {
			tbl.RawSetString(key, goToLua(state, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value into a plain Go value. Tables with a
// positive array length become slices, everything else a string map.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, luaToGo(val.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]any)
		val.ForEach(func(key, item lua.LValue) {
			m[key.String()] = luaToGo(item)
		})
		return m
	default:
		return v.String()
	}
}
