package lua

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pluginfw/pluginfw/internal/plugin"
)

// writeScript lays out <dir>/<id>/plugin.lua and returns the loader.
func writeScript(t *testing.T, id, script string) *Loader {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id, "plugin.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewLoader(dir)
}

const counterScript = `
plugin = {
  id = "counter",
  name = "Counter",
  version = "1.0.0",
  vendor = "test",
  description = "counts things",
  dependencies = {"core"},
}

state = "new"

function initialize()
  state = "initialized"
end

function activate()
  state = "active"
end

function deactivate()
  state = "initialized"
end

function execute(command, params)
  if command == "state" then
    return state
  end
  if command == "add" then
    return params.a + params.b
  end
  if command == "echo" then
    return params
  end
  error("unknown command: " .. command)
end
`

func TestResolve(t *testing.T) {
	loader := writeScript(t, "counter", counterScript)

	path, err := loader.Resolve("counter")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if filepath.Base(path) != "plugin.lua" {
		t.Errorf("Resolve = %q, want a plugin.lua path", path)
	}

	if _, err := loader.Resolve("missing"); !errors.Is(err, plugin.ErrModuleNotFound) {
		t.Errorf("error = %v, want ErrModuleNotFound", err)
	}
}

func TestLoadReadsDescriptor(t *testing.T) {
	loader := writeScript(t, "counter", counterScript)
	handle := mustLoad(t, loader, "counter")
	defer handle.Release()

	p := handle.Instance()
	if p.ID() != "counter" || p.Name() != "Counter" || p.Version() != "1.0.0" || p.Vendor() != "test" {
		t.Errorf("descriptor fields wrong: %s %s %s %s", p.ID(), p.Name(), p.Version(), p.Vendor())
	}
	if deps := p.Dependencies(); len(deps) != 1 || deps[0] != "core" {
		t.Errorf("Dependencies = %v, want [core]", deps)
	}
}

func TestLifecycleHooks(t *testing.T) {
	loader := writeScript(t, "counter", counterScript)
	handle := mustLoad(t, loader, "counter")
	defer handle.Release()
	p := handle.Instance()

	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := p.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	got, err := p.ExecuteCommand("state", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "active" {
		t.Errorf("state = %v, want active", got)
	}

	if err := p.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	// shutdown is not defined in the script; missing hooks succeed.
	if err := p.Shutdown(); err != nil {
		t.Errorf("Shutdown without hook = %v, want nil", err)
	}
}

func TestExecuteCommand(t *testing.T) {
	loader := writeScript(t, "counter", counterScript)
	handle := mustLoad(t, loader, "counter")
	defer handle.Release()
	p := handle.Instance()

	got, err := p.ExecuteCommand("add", map[string]any{"a": 2, "b": 40})
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}
	if got != float64(42) {
		t.Errorf("add = %v, want 42", got)
	}

	echo, err := p.ExecuteCommand("echo", map[string]any{"k": "v", "n": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"k": "v", "n": float64(1)}
	if !reflect.DeepEqual(echo, want) {
		t.Errorf("echo = %#v, want %#v", echo, want)
	}

	if _, err := p.ExecuteCommand("nope", nil); err == nil {
		t.Error("unknown command succeeded")
	}
}

func TestHookFailures(t *testing.T) {
	script := `
plugin = {id = "bad", name = "Bad", version = "1.0.0", vendor = "test"}

function initialize()
  error("cannot start")
end

function activate()
  return false
end
`
	loader := writeScript(t, "bad", script)
	handle := mustLoad(t, loader, "bad")
	defer handle.Release()
	p := handle.Instance()

	if err := p.Initialize(); err == nil {
		t.Error("failing initialize hook succeeded")
	}
	if err := p.Activate(); err == nil {
		t.Error("activate returning false succeeded")
	}
}

func TestLoadRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr error
	}{
		{
			name:    "syntax error",
			script:  `plugin = {`,
			wantErr: plugin.ErrLoadFailed,
		},
		{
			name:    "no plugin table",
			script:  `x = 1`,
			wantErr: plugin.ErrContractViolation,
		},
		{
			name:    "missing required fields",
			script:  `plugin = {id = "x"}`,
			wantErr: plugin.ErrContractViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := writeScript(t, "x", tt.script)
			path, err := loader.Resolve("x")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := loader.Load(path); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSandbox(t *testing.T) {
	script := `
plugin = {id = "sandboxed", name = "S", version = "1.0.0", vendor = "test"}

if io ~= nil or os ~= nil then
  error("io or os leaked into the sandbox")
end
if dofile ~= nil or loadfile ~= nil or load ~= nil then
  error("script loading leaked into the sandbox")
end
if string.upper("ok") ~= "OK" then
  error("string library missing")
end
`
	loader := writeScript(t, "sandboxed", script)
	handle := mustLoad(t, loader, "sandboxed")
	handle.Release()
}

func mustLoad(t *testing.T, loader *Loader, id string) plugin.Handle {
	t.Helper()
	path, err := loader.Resolve(id)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return handle
}
