package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pluginfw/pluginfw/internal/config"
	"github.com/pluginfw/pluginfw/internal/plugin"
	luaplugin "github.com/pluginfw/pluginfw/internal/plugin/lua"
)

const helloDescriptor = `{
  "id": "hello",
  "name": "Hello",
  "version": "1.0.0",
  "vendor": "test"
}`

const helloScript = `
plugin = {id = "hello", name = "Hello", version = "1.0.0", vendor = "test"}

function execute(command, params)
  if command == "greet" then
    return "hello " .. params.name
  end
  error("unknown command: " .. command)
end
`

// newLuaHost lays out a metadata dir and a Lua module dir holding the
// "hello" plugin, wired the way run() wires a lua-backend host.
func newLuaHost(t *testing.T) (*plugin.Manager, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		MetadataDir:      filepath.Join(root, "plugins.d"),
		ModuleDir:        filepath.Join(root, "plugins"),
		FrameworkVersion: "1.0.0",
		Backend:          config.BackendLua,
	}
	if err := os.MkdirAll(cfg.MetadataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.ModuleDir, "hello"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.MetadataDir, "hello.json"), []byte(helloDescriptor), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ModuleDir, "hello", "plugin.lua"), []byte(helloScript), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := plugin.NewManager(plugin.Config{
		MetadataDir:      cfg.MetadataDir,
		ModuleDir:        cfg.ModuleDir,
		FrameworkVersion: cfg.FrameworkVersion,
	},
		plugin.WithLoader(luaplugin.NewLoader(cfg.ModuleDir)),
		plugin.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr, cfg
}

// The activate subcommand must drive a plugin all the way to Active in
// a fresh process, where nothing is loaded yet.
func TestCmdActivate(t *testing.T) {
	mgr, cfg := newLuaHost(t)
	defer mgr.Shutdown()

	if code := cmdActivate(mgr, cfg, []string{"hello"}); code != 0 {
		t.Fatalf("cmdActivate exit = %d, want 0", code)
	}
	if got := mgr.State("hello"); got != plugin.StateActive {
		t.Errorf("State = %v, want %v", got, plugin.StateActive)
	}
}

func TestCmdActivateEnabledFromConfig(t *testing.T) {
	mgr, cfg := newLuaHost(t)
	defer mgr.Shutdown()
	cfg.Plugins = map[string]config.PluginConfig{
		"hello": {Enabled: true},
	}

	if code := cmdActivate(mgr, cfg, nil); code != 0 {
		t.Fatalf("cmdActivate exit = %d, want 0", code)
	}
	if got := mgr.State("hello"); got != plugin.StateActive {
		t.Errorf("State = %v, want %v", got, plugin.StateActive)
	}
}

func TestCmdActivateUnknownPlugin(t *testing.T) {
	mgr, cfg := newLuaHost(t)
	defer mgr.Shutdown()

	if code := cmdActivate(mgr, cfg, []string{"missing"}); code == 0 {
		t.Error("cmdActivate succeeded for a plugin with no descriptor")
	}
}

// The exec subcommand must load, activate, and dispatch in one shot.
func TestCmdExec(t *testing.T) {
	mgr, _ := newLuaHost(t)
	defer mgr.Shutdown()

	if code := cmdExec(mgr, []string{"hello", "greet", `{"name": "world"}`}); code != 0 {
		t.Fatalf("cmdExec exit = %d, want 0", code)
	}
	if got := mgr.State("hello"); got != plugin.StateActive {
		t.Errorf("State = %v, want %v", got, plugin.StateActive)
	}

	if code := cmdExec(mgr, []string{"hello", "greet", `not json`}); code == 0 {
		t.Error("cmdExec accepted malformed params")
	}
	if code := cmdExec(mgr, []string{"hello"}); code == 0 {
		t.Error("cmdExec accepted a missing command argument")
	}
}
