package plugin

import "errors"

// Plugin system errors.
var (
	// ErrMetadataMissing is returned when no metadata descriptor exists for a plugin id.
	ErrMetadataMissing = errors.New("plugin metadata not found")

	// ErrMetadataInvalid is returned when a descriptor cannot be parsed or
	// is missing required fields, or when its self-reported id does not
	// match the lookup key.
	ErrMetadataInvalid = errors.New("plugin metadata invalid")

	// ErrIncompatibleVersion is returned when a plugin requires a newer
	// framework than the one running.
	ErrIncompatibleVersion = errors.New("plugin incompatible with framework version")

	// ErrUnsatisfiedDependency is returned when a declared dependency has
	// no loadable, framework-compatible metadata.
	ErrUnsatisfiedDependency = errors.New("plugin has unsatisfied dependencies")

	// ErrModuleNotFound is returned when no module file can be resolved for a plugin id.
	ErrModuleNotFound = errors.New("plugin module not found")

	// ErrLoadFailed is returned when the module loader fails.
	ErrLoadFailed = errors.New("plugin load failed")

	// ErrContractViolation is returned when a loaded module does not
	// satisfy the plugin contract.
	ErrContractViolation = errors.New("module does not satisfy the plugin contract")

	// ErrDependencyInitFailed is returned when a dependency could not be
	// loaded or initialized on behalf of a dependent plugin.
	ErrDependencyInitFailed = errors.New("plugin dependency failed to initialize")

	// ErrDependencyActivateFailed is returned when a dependency could not
	// be activated on behalf of a dependent plugin.
	ErrDependencyActivateFailed = errors.New("plugin dependency failed to activate")

	// ErrHookFailed is returned when a plugin lifecycle hook returns an
	// error or panics.
	ErrHookFailed = errors.New("plugin hook failed")

	// ErrUnloadFailed is returned when the module handle cannot be released.
	ErrUnloadFailed = errors.New("plugin unload failed")

	// ErrBlockedByDependents is returned when an unload is refused because
	// other registered plugins declare a dependency on the target.
	ErrBlockedByDependents = errors.New("plugin has dependents")

	// ErrCyclicDependency is returned when the dependency graph contains a cycle.
	ErrCyclicDependency = errors.New("cyclic plugin dependency detected")

	// ErrNotLoaded is returned when an operation requires a loaded plugin.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrNotActive is returned when an operation requires an active plugin.
	ErrNotActive = errors.New("plugin is not active")

	// ErrPluginFailed is returned when an operation is attempted on a
	// plugin in the failed state.
	ErrPluginFailed = errors.New("plugin is in failed state")

	// ErrPermissionDenied is returned when the permission gate refuses an operation.
	ErrPermissionDenied = errors.New("permission denied")
)
