// Package plugin provides the plugin host runtime: discovery,
// version checking, dependency resolution, and lifecycle management
// for dynamically loadable extension modules.
//
// # Architecture
//
// The Manager owns a registry of plugin records and drives each plugin
// through its lifecycle:
//
//	not-loaded -> loaded -> initialized -> active
//	                  ^          |
//	                  +----------+  (deactivate returns to initialized)
//
// A failed load, initialize, or activate attempt parks the plugin in
// the failed state. Deactivate and unload failures are retriable and
// never force the failed state.
//
// # Quick start
//
//	mgr, err := plugin.NewManager(plugin.Config{
//	    MetadataDir:      "/etc/myapp/plugins.d",
//	    ModuleDir:        "/usr/lib/myapp/plugins",
//	    FrameworkVersion: "1.4.0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	ids, _ := mgr.Scan()
//	for _, id := range ids {
//	    if err := mgr.Activate(id); err != nil {
//	        log.Printf("activate %s: %v", id, err)
//	    }
//	}
//
// # Metadata descriptors
//
// Each plugin is described by a JSON descriptor named <id>.json in the
// metadata directory, separate from the module binaries:
//
//	{
//	  "id": "mysql-backup",
//	  "name": "MySQL Backup",
//	  "version": "1.2.0",
//	  "vendor": "Example Corp",
//	  "minFrameworkVersion": "1.0.0",
//	  "dependencies": ["storage-core"],
//	  "requiredPermissions": ["database.access", "file.write"]
//	}
//
// id, name, version, and vendor are required; a descriptor missing any
// of them never enters the registry.
//
// # Dependencies
//
// Declared dependencies form a directed graph over plugin ids.
// Initialize and activate walk the graph depth-first, bringing every
// dependency to the required stage before the dependent's own hook
// runs. Deactivation cascades in the opposite direction over active
// dependents, and unload is refused while any registered plugin
// declares a dependency on the target. Cycles are detected and
// rejected with ErrCyclicDependency.
//
// # Loaders
//
// Module loading is behind the Loader interface. NativeLoader loads Go
// shared objects; package lua hosts Lua-scripted plugins. Tests inject
// fakes.
//
// # Concurrency
//
// The Manager serializes lifecycle operations under one mutex. Plugin
// hooks run inside that critical section and must not call back into
// the Manager. ExecuteCommand and message-bus dispatch run outside the
// lock so command handlers may use the Manager's query surface.
package plugin
