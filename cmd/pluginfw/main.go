// Package main is the entry point for the pluginfw host CLI.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/pluginfw/pluginfw/internal/config"
	"github.com/pluginfw/pluginfw/internal/plugin"
	"github.com/pluginfw/pluginfw/internal/plugin/comm"
	luaplugin "github.com/pluginfw/pluginfw/internal/plugin/lua"
	"github.com/pluginfw/pluginfw/internal/plugin/security"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath string
	logLevel   string
	verbose    bool
	args       []string
}

func run() int {
	opts := parseFlags()
	logger := newLogger(opts.logLevel)

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	gate := security.NewGate(security.WithLogger(logger))
	if cfg.GrantsFile != "" {
		if _, err := os.Stat(cfg.GrantsFile); err == nil {
			if err := gate.LoadGrants(cfg.GrantsFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
		}
	}
	for id, pc := range cfg.Plugins {
		for _, grant := range pc.Grants {
			if err := gate.Grant(id, grant); err != nil {
				fmt.Fprintf(os.Stderr, "Error: grant %s to %s: %v\n", grant, id, err)
				return 1
			}
		}
	}

	bus := comm.NewBus(gate, comm.WithLogger(logger))

	mgrOpts := []plugin.Option{
		plugin.WithPermissionGate(gate),
		plugin.WithBus(bus),
		plugin.WithLogger(logger),
	}
	if cfg.Backend == config.BackendLua {
		mgrOpts = append(mgrOpts, plugin.WithLoader(luaplugin.NewLoader(cfg.ModuleDir)))
	}

	mgr, err := plugin.NewManager(plugin.Config{
		MetadataDir:      cfg.MetadataDir,
		ModuleDir:        cfg.ModuleDir,
		FrameworkVersion: cfg.FrameworkVersion,
	}, mgrOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure cleanup on all exit paths
	defer mgr.Shutdown()

	if opts.verbose {
		mgr.Subscribe(func(e plugin.Event) {
			if e.Err != nil {
				fmt.Fprintf(os.Stderr, "[%s] %s: %v (%s)\n", e.Type, e.Plugin, e.Err, e.Message)
				return
			}
			fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Type, e.Plugin)
		})
	}

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		mgr.Shutdown()
		os.Exit(130)
	}()

	if len(opts.args) == 0 {
		usage()
		return 2
	}

	switch cmd, args := opts.args[0], opts.args[1:]; cmd {
	case "scan":
		return cmdScan(mgr, gate)
	case "list":
		return cmdList(mgr, gate)
	case "activate":
		return cmdActivate(mgr, cfg, args)
	case "deactivate":
		return cmdDeactivate(mgr, args)
	case "unload":
		return cmdUnload(mgr, args)
	case "exec":
		return cmdExec(mgr, args)
	case "perms":
		return cmdPerms(gate, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		usage()
		return 2
	}
}

func cmdScan(mgr *plugin.Manager, gate *security.Gate) int {
	ids, err := mgr.Scan()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	registerRequested(mgr, gate)
	for _, id := range ids {
		fmt.Println(id)
	}
	return 0
}

func cmdList(mgr *plugin.Manager, gate *security.Gate) int {
	if _, err := mgr.Scan(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	registerRequested(mgr, gate)
	available := mgr.AvailablePlugins()
	ids := make([]string, 0, len(available))
	for id := range available {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		meta := available[id]
		fmt.Printf("%-24s %-10s %-12s %s\n", id, meta.Version, mgr.State(id), meta.Name)
	}
	return 0
}

// registerRequested makes every permission requested by known plugin
// metadata grantable.
func registerRequested(mgr *plugin.Manager, gate *security.Gate) {
	for _, meta := range mgr.AvailablePlugins() {
		gate.RegisterRequested(meta.RequiredPermissions)
	}
}

// cmdActivate activates the named plugins, or every plugin marked
// enabled in the configuration when no ids are given.
func cmdActivate(mgr *plugin.Manager, cfg *config.Config, ids []string) int {
	if len(ids) == 0 {
		for id, pc := range cfg.Plugins {
			if pc.Enabled {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no plugin ids given and none enabled in config")
		return 2
	}
	code := 0
	for _, id := range ids {
		// A fresh process starts with an empty registry; the module has
		// to be loaded before it can be activated.
		if err := mgr.Load(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", id, err)
			code = 1
			continue
		}
		if err := mgr.Activate(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: activate %s: %v\n", id, err)
			code = 1
		}
	}
	return code
}

func cmdDeactivate(mgr *plugin.Manager, ids []string) int {
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: deactivate needs a plugin id")
		return 2
	}
	code := 0
	for _, id := range ids {
		if err := mgr.Deactivate(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: deactivate %s: %v\n", id, err)
			code = 1
		}
	}
	return code
}

func cmdUnload(mgr *plugin.Manager, ids []string) int {
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: unload needs a plugin id")
		return 2
	}
	code := 0
	for _, id := range ids {
		if err := mgr.Unload(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: unload %s: %v\n", id, err)
			code = 1
		}
	}
	return code
}

// cmdExec activates a plugin and dispatches a command to it. Params
// are given as a JSON object string.
func cmdExec(mgr *plugin.Manager, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Error: usage: exec <plugin> <command> [json-params]")
		return 2
	}
	id, command := args[0], args[1]

	params := map[string]any{}
	if len(args) > 2 {
		raw := args[2]
		if !gjson.Valid(raw) {
			fmt.Fprintf(os.Stderr, "Error: params are not valid JSON: %s\n", raw)
			return 2
		}
		parsed := gjson.Parse(raw)
		if !parsed.IsObject() {
			fmt.Fprintln(os.Stderr, "Error: params must be a JSON object")
			return 2
		}
		for key, value := range parsed.Map() {
			params[key] = value.Value()
		}
	}

	if err := mgr.Load(id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", id, err)
		return 1
	}
	if err := mgr.Activate(id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: activate %s: %v\n", id, err)
		return 1
	}
	result, err := mgr.ExecuteCommand(id, command, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if result != nil {
		fmt.Printf("%v\n", result)
	}
	return 0
}

// cmdPerms inspects and edits the grant table:
//
//	perms                    list registered permissions
//	perms <plugin>           list the plugin's grants
//	perms grant <plugin> <permission>
//	perms revoke <plugin> <permission>
func cmdPerms(gate *security.Gate, cfg *config.Config, args []string) int {
	save := func() int {
		if cfg.GrantsFile == "" {
			return 0
		}
		if err := gate.SaveGrants(cfg.GrantsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	switch {
	case len(args) == 0:
		for _, name := range gate.RegisteredPermissions() {
			fmt.Printf("%-28s %s\n", name, gate.Description(name))
		}
		return 0
	case args[0] == "grant" && len(args) == 3:
		if err := gate.Grant(args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return save()
	case args[0] == "revoke" && len(args) == 3:
		if err := gate.Revoke(args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return save()
	case len(args) == 1:
		for _, name := range gate.PluginPermissions(args[0]) {
			fmt.Println(name)
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, "Error: usage: perms [<plugin> | grant <plugin> <permission> | revoke <plugin> <permission>]")
		return 2
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.verbose, "verbose", false, "Print lifecycle events")
	flag.BoolVar(&opts.verbose, "V", false, "Print lifecycle events (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		usage()
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showHelp {
		usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("pluginfw %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}

	opts.args = flag.Args()
	return opts
}

func usage() {
	fmt.Fprintf(os.Stderr, "pluginfw - plugin host runtime\n\n")
	fmt.Fprintf(os.Stderr, "Usage: pluginfw [options] <command> [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  scan                          Discover plugin descriptors\n")
	fmt.Fprintf(os.Stderr, "  list                          List known plugins and their states\n")
	fmt.Fprintf(os.Stderr, "  activate [id...]              Activate plugins (default: enabled in config)\n")
	fmt.Fprintf(os.Stderr, "  deactivate <id...>            Deactivate active plugins\n")
	fmt.Fprintf(os.Stderr, "  unload <id...>                Unload plugin modules\n")
	fmt.Fprintf(os.Stderr, "  exec <id> <cmd> [json]        Run a plugin command\n")
	fmt.Fprintf(os.Stderr, "  perms [...]                   Inspect or edit permission grants\n")
}
