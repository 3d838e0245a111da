package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
)

// Loader resolves plugin ids to module files and loads them.
// It is an injectable collaborator so hosts and tests can substitute
// alternative backends.
type Loader interface {
	// Resolve returns the module path for a plugin id, or
	// ErrModuleNotFound if no module file exists.
	Resolve(id string) (string, error)

	// Load opens the module at path and extracts a contract-satisfying
	// instance. A module that loads but does not satisfy the contract
	// fails with ErrContractViolation.
	Load(path string) (Handle, error)
}

// Handle is an opaque reference to a loaded module. The instance's
// lifetime is bound to the handle; after Release the instance must not
// be used.
type Handle interface {
	Instance() Plugin
	Release() error
}

// NativeLoader loads shared-object modules using the Go plugin
// mechanism. A module must export a `Plugin` symbol that is, points
// to, or constructs a value satisfying the Plugin interface.
type NativeLoader struct {
	dir string
}

// NewNativeLoader creates a loader probing dir for shared objects.
func NewNativeLoader(dir string) *NativeLoader {
	return &NativeLoader{dir: dir}
}

// moduleCandidates returns platform shared-library names for an id.
func moduleCandidates(id string) []string {
	return []string{
		id + ".so",
		"lib" + id + ".so",
		id + ".dll",
		id + ".dylib",
		"lib" + id + ".dylib",
	}
}

// Resolve probes platform naming conventions for the id.
func (l *NativeLoader) Resolve(id string) (string, error) {
	for _, name := range moduleCandidates(id) {
		path := filepath.Join(l.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrModuleNotFound, id)
}

// Load opens the shared object and searches for the `Plugin` symbol.
func (l *NativeLoader) Load(path string) (Handle, error) {
	if path == "" {
		return nil, errors.New("module path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	var instance Plugin
	switch p := symbol.(type) {
	case Plugin:
		instance = p
	case *Plugin:
		if p == nil || *p == nil {
			return nil, fmt.Errorf("%w: Plugin symbol is nil", ErrContractViolation)
		}
		instance = *p
	case func() Plugin:
		instance = p()
	default:
		return nil, fmt.Errorf("%w: Plugin symbol has type %T", ErrContractViolation, symbol)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: Plugin symbol yielded no instance", ErrContractViolation)
	}

	return &nativeHandle{instance: instance}, nil
}

// nativeHandle holds an instance extracted from a shared object.
// The Go runtime cannot unload shared objects, so Release only drops
// the reference.
type nativeHandle struct {
	instance Plugin
}

func (h *nativeHandle) Instance() Plugin {
	return h.instance
}

func (h *nativeHandle) Release() error {
	h.instance = nil
	return nil
}
