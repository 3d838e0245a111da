// Package security provides the permission gate for the plugin host:
// a registry of named permissions and per-plugin grant sets consulted
// by the manager and the communication bus.
package security

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Permission errors.
var (
	// ErrAlreadyRegistered is returned when registering a known permission.
	ErrAlreadyRegistered = errors.New("permission already registered")

	// ErrUnknownPermission is returned when granting an unregistered permission.
	ErrUnknownPermission = errors.New("permission not registered")

	// ErrNotGranted is returned when revoking a permission a plugin does not hold.
	ErrNotGranted = errors.New("permission not granted")
)

// defaultPermissions are registered with every new gate.
var defaultPermissions = map[string]string{
	"file.read":               "Read files from the file system",
	"file.write":              "Write files to the file system",
	"network.access":          "Access network resources",
	"database.access":         "Access database resources",
	"ui.modify":               "Modify the user interface",
	"system.execute":          "Execute system commands",
	"command.execute":         "Invoke plugin commands through the manager",
	"communication.send":      "Send messages to other plugins",
	"communication.receive":   "Receive messages from other plugins",
	"communication.broadcast": "Broadcast messages to all plugins",
}

// Gate holds registered permissions and per-plugin grants.
// Grants are default-deny: a plugin holds only what the host granted.
type Gate struct {
	mu          sync.RWMutex
	permissions map[string]string              // name -> description
	grants      map[string]map[string]struct{} // plugin id -> granted names
	log         *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) GateOption {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGate creates a gate with the default permission set registered.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		permissions: make(map[string]string, len(defaultPermissions)),
		grants:      make(map[string]map[string]struct{}),
		log:         slog.Default(),
	}
	for name, desc := range defaultPermissions {
		g.permissions[name] = desc
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterPermission adds a permission to the registry.
func (g *Gate) RegisterPermission(name, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.permissions[name]; ok {
		g.log.Warn("permission already registered", "permission", name)
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	g.permissions[name] = description
	g.log.Info("registered permission", "permission", name)
	return nil
}

// UnregisterPermission removes a permission from the registry.
// Existing grants of the permission are revoked.
func (g *Gate) UnregisterPermission(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.permissions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
	}
	delete(g.permissions, name)
	for _, granted := range g.grants {
		delete(granted, name)
	}
	g.log.Info("unregistered permission", "permission", name)
	return nil
}

// RegisterRequested registers every name in the list that is not yet
// known, with an empty description, and returns the names it added.
// Plugins declare the permissions they request in their metadata;
// registering them makes the names grantable without a pre-declared
// catalogue.
func (g *Gate) RegisterRequested(names []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var added []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := g.permissions[name]; ok {
			continue
		}
		g.permissions[name] = ""
		added = append(added, name)
	}
	if len(added) > 0 {
		g.log.Info("registered requested permissions", "permissions", added)
	}
	return added
}

// IsRegistered returns true if the permission is known.
func (g *Gate) IsRegistered(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.permissions[name]
	return ok
}

// Description returns the description of a registered permission.
func (g *Gate) Description(name string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.permissions[name]
}

// RegisteredPermissions returns all registered permission names, sorted.
func (g *Gate) RegisteredPermissions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.permissions))
	for name := range g.permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Grant grants a registered permission to a plugin. Granting an
// already-held permission succeeds.
func (g *Gate) Grant(pluginID, permission string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.permissions[permission]; !ok {
		g.log.Warn("cannot grant unregistered permission", "plugin", pluginID, "permission", permission)
		return fmt.Errorf("%w: %s", ErrUnknownPermission, permission)
	}
	granted, ok := g.grants[pluginID]
	if !ok {
		granted = make(map[string]struct{})
		g.grants[pluginID] = granted
	}
	if _, ok := granted[permission]; ok {
		return nil
	}
	granted[permission] = struct{}{}
	g.log.Info("granted permission", "plugin", pluginID, "permission", permission)
	return nil
}

// Revoke removes a granted permission from a plugin.
func (g *Gate) Revoke(pluginID, permission string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	granted, ok := g.grants[pluginID]
	if !ok {
		return fmt.Errorf("plugin %q: %w: %s", pluginID, ErrNotGranted, permission)
	}
	if _, ok := granted[permission]; !ok {
		return fmt.Errorf("plugin %q: %w: %s", pluginID, ErrNotGranted, permission)
	}
	delete(granted, permission)
	g.log.Info("revoked permission", "plugin", pluginID, "permission", permission)
	return nil
}

// HasPermission returns true if the plugin holds the permission.
func (g *Gate) HasPermission(pluginID, permission string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	granted, ok := g.grants[pluginID]
	if !ok {
		return false
	}
	_, ok = granted[permission]
	return ok
}

// PluginPermissions returns the permissions granted to a plugin, sorted.
func (g *Gate) PluginPermissions(pluginID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	granted, ok := g.grants[pluginID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(granted))
	for name := range granted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PluginsWithPermission returns the plugin ids holding a permission, sorted.
func (g *Gate) PluginsWithPermission(permission string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, granted := range g.grants {
		if _, ok := granted[permission]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
