package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// PermCommandExecute is the permission consulted before dispatching a
// plugin command through the manager.
const PermCommandExecute = "command.execute"

// PermissionGate answers permission queries for plugins. It is an
// external collaborator; the manager consults it before dispatching
// plugin commands.
type PermissionGate interface {
	HasPermission(pluginID, permission string) bool
}

// HandlerPurger removes message-bus handlers owned by a plugin. The
// manager purges handlers during unload, before the module handle is
// released.
type HandlerPurger interface {
	PurgeHandlers(pluginID string) int
}

// Config configures a Manager.
type Config struct {
	// MetadataDir is the directory holding <id>.json descriptors.
	MetadataDir string

	// ModuleDir is the directory holding module binaries. Used by the
	// default native loader; ignored when a loader is injected.
	ModuleDir string

	// FrameworkVersion is the running framework version plugins are
	// checked against. Defaults to "1.0.0".
	FrameworkVersion string
}

// Manager owns the plugin registry and drives every plugin through its
// lifecycle. It is safe for concurrent use.
//
// Locking: all registry mutation happens under a single mutex held by
// thin public wrappers; dependency recursion goes through unexported
// methods that assume the lock is held, so no re-entrant lock is
// needed. Plugin hooks run inside the critical section - a hook must
// not call back into the manager, and a hung hook hangs the calling
// goroutine. Callers wanting timeouts must wrap calls themselves.
type Manager struct {
	mu        sync.Mutex
	registry  map[string]*record
	resolving map[string]bool
	pending   []Event

	loader Loader
	gate   PermissionGate
	bus    HandlerPurger
	log    *slog.Logger

	metadataDir  string
	framework    Version
	frameworkRaw string

	hmu      sync.Mutex
	handlers []EventHandler
}

// record tracks a single plugin. The metadata persists across
// unloads; the handle is present only while the module is loaded.
type record struct {
	meta   *Metadata
	handle Handle
	state  State
}

func (r *record) instance() Plugin {
	if r.handle == nil {
		return nil
	}
	return r.handle.Instance()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLoader overrides the default native module loader.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithPermissionGate sets the permission gate consulted before plugin commands.
func WithPermissionGate(gate PermissionGate) Option {
	return func(m *Manager) {
		m.gate = gate
	}
}

// WithBus sets the communication bus whose handlers are purged on unload.
func WithBus(bus HandlerPurger) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a plugin manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MetadataDir == "" {
		return nil, errors.New("metadata directory cannot be empty")
	}
	raw := cfg.FrameworkVersion
	if raw == "" {
		raw = DefaultMinFrameworkVersion
	}
	framework, err := ParseVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("framework version: %w", err)
	}

	m := &Manager{
		registry:     make(map[string]*record),
		resolving:    make(map[string]bool),
		log:          slog.Default(),
		metadataDir:  cfg.MetadataDir,
		framework:    framework,
		frameworkRaw: framework.String(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loader == nil {
		if cfg.ModuleDir == "" {
			return nil, errors.New("module directory cannot be empty without an injected loader")
		}
		m.loader = NewNativeLoader(cfg.ModuleDir)
	}
	return m, nil
}

// FrameworkVersion returns the running framework version string.
func (m *Manager) FrameworkVersion() string {
	return m.frameworkRaw
}

// Scan reads all metadata descriptors in the metadata directory and
// registers the valid ones. Invalid descriptors are skipped with a
// logged warning. Re-scanning refreshes metadata but never changes the
// state of an already-known plugin. Returns the successfully parsed
// ids, sorted.
func (m *Manager) Scan() ([]string, error) {
	entries, err := os.ReadDir(m.metadataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		meta, err := LoadMetadata(filepath.Join(m.metadataDir, entry.Name()))
		if err != nil {
			m.log.Warn("skipping invalid descriptor", "plugin", id, "error", err)
			continue
		}
		if meta.ID != id {
			m.log.Warn("skipping descriptor with mismatched id", "plugin", id, "declared", meta.ID)
			continue
		}
		rec, ok := m.registry[id]
		if !ok {
			rec = &record{state: StateNotLoaded}
			m.registry[id] = rec
		}
		rec.meta = meta
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m.log.Info("metadata scan complete", "found", len(ids))
	return ids, nil
}

// Load loads the module for a plugin id. It verifies metadata,
// framework compatibility, and dependency metadata before invoking the
// module loader. Dependencies are verified, not loaded. A no-op if the
// plugin is already loaded.
func (m *Manager) Load(id string) error {
	m.mu.Lock()
	err := m.loadLocked(id)
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
	return err
}

// Initialize initializes a loaded plugin, first loading and
// initializing all of its dependencies.
func (m *Manager) Initialize(id string) error {
	m.mu.Lock()
	err := m.initializeLocked(id)
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
	return err
}

// Activate activates a loaded plugin, initializing it and activating
// all of its dependencies first.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	err := m.activateLocked(id)
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
	return err
}

// Deactivate deactivates an active plugin, first deactivating every
// active plugin that depends on it. The plugin returns to the
// initialized state. A no-op if the plugin is not active.
func (m *Manager) Deactivate(id string) error {
	m.mu.Lock()
	err := m.deactivateLocked(id)
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
	return err
}

// Unload releases a plugin's module. It fails if any registered
// plugin declares a dependency on id, regardless of that dependent's
// load state. Metadata is retained; the plugin returns to the
// not-loaded state. A no-op if no module is held.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	err := m.unloadLocked(id, false)
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
	return err
}

// Shutdown deactivates and unloads every registered plugin in reverse
// dependency order, best-effort, then clears the registry. Individual
// failures are logged and do not stop the teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdownLocked()
	events := m.takePendingLocked()
	m.mu.Unlock()
	m.emit(events...)
}

// ExecuteCommand dispatches a command to an active plugin. When a
// permission gate is configured the plugin must hold the
// command.execute permission.
func (m *Manager) ExecuteCommand(id, command string, params map[string]any) (any, error) {
	m.mu.Lock()
	rec, ok := m.registry[id]
	if !ok || rec.handle == nil {
		m.mu.Unlock()
		m.log.Error("command on unloaded plugin", "plugin", id, "command", command)
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotLoaded)
	}
	if rec.state != StateActive {
		m.mu.Unlock()
		m.log.Error("command on inactive plugin", "plugin", id, "command", command)
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotActive)
	}
	instance := rec.instance()
	m.mu.Unlock()

	if m.gate != nil && !m.gate.HasPermission(id, PermCommandExecute) {
		m.log.Warn("command denied", "plugin", id, "command", command, "permission", PermCommandExecute)
		return nil, fmt.Errorf("plugin %q: %w: %s", id, ErrPermissionDenied, PermCommandExecute)
	}

	var result any
	err := safeCall(func() error {
		var err error
		result, err = instance.ExecuteCommand(command, params)
		return err
	})
	if err != nil {
		m.log.Error("command failed", "plugin", id, "command", command, "error", err)
		return nil, fmt.Errorf("plugin %q command %q: %w: %v", id, command, ErrHookFailed, err)
	}
	return result, nil
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.registry[id]
	if !ok {
		return StateNotLoaded
	}
	return rec.state
}

// Metadata returns a copy of the metadata for a plugin.
func (m *Manager) Metadata(id string) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.registry[id]
	if !ok || rec.meta == nil {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrMetadataMissing)
	}
	return rec.meta.Clone(), nil
}

// LoadedPlugins returns the ids of all plugins holding a module, sorted.
func (m *Manager) LoadedPlugins() []string {
	return m.selectIDs(func(r *record) bool { return r.handle != nil })
}

// ActivePlugins returns the ids of all active plugins, sorted.
func (m *Manager) ActivePlugins() []string {
	return m.selectIDs(func(r *record) bool { return r.state == StateActive })
}

// AvailablePlugins returns copies of all known metadata keyed by id.
func (m *Manager) AvailablePlugins() map[string]*Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Metadata)
	for id, rec := range m.registry {
		if rec.meta != nil {
			out[id] = rec.meta.Clone()
		}
	}
	return out
}

// Subscribe adds a lifecycle event handler. Events are delivered
// synchronously after the emitting operation leaves the registry lock.
// Returns an unsubscribe function.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}
	m.hmu.Lock()
	m.handlers = append(m.handlers, handler)
	index := len(m.handlers) - 1
	m.hmu.Unlock()

	return func() {
		m.hmu.Lock()
		defer m.hmu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.handlers) {
			m.handlers[index] = nil
		}
	}
}

// --- internal (lock held) ---

func (m *Manager) loadLocked(id string) error {
	rec, ok := m.registry[id]
	if ok && rec.handle != nil {
		return nil
	}

	meta, err := m.metadataLocked(id)
	if err != nil {
		m.log.Error("failed to load metadata", "plugin", id, "error", err)
		return err
	}
	rec = m.registry[id]

	if !meta.CompatibleWith(m.framework) {
		rec.state = StateFailed
		m.failLocked(id, ErrIncompatibleVersion,
			fmt.Sprintf("requires framework >= %s, running %s", meta.MinFrameworkVersion, m.frameworkRaw))
		return fmt.Errorf("plugin %q: %w", id, ErrIncompatibleVersion)
	}

	// Dependencies need loadable, compatible metadata at this point;
	// they are not loaded until initialization.
	for _, dep := range meta.Dependencies {
		depMeta, err := m.metadataLocked(dep)
		if err != nil {
			rec.state = StateFailed
			m.failLocked(id, ErrUnsatisfiedDependency,
				fmt.Sprintf("dependency %s: %v", dep, err))
			return fmt.Errorf("plugin %q: %w: %s", id, ErrUnsatisfiedDependency, dep)
		}
		if !depMeta.CompatibleWith(m.framework) {
			rec.state = StateFailed
			m.failLocked(id, ErrUnsatisfiedDependency,
				fmt.Sprintf("dependency %s requires framework >= %s", dep, depMeta.MinFrameworkVersion))
			return fmt.Errorf("plugin %q: %w: %s", id, ErrUnsatisfiedDependency, dep)
		}
	}

	path, err := m.loader.Resolve(id)
	if err != nil {
		rec.state = StateFailed
		m.failLocked(id, ErrModuleNotFound, err.Error())
		return fmt.Errorf("plugin %q: %w", id, ErrModuleNotFound)
	}

	handle, err := m.loader.Load(path)
	if err != nil {
		rec.state = StateFailed
		reason := ErrLoadFailed
		if errors.Is(err, ErrContractViolation) {
			reason = ErrContractViolation
		}
		m.failLocked(id, reason, err.Error())
		return fmt.Errorf("plugin %q: %w", id, err)
	}

	instance := handle.Instance()
	if instance == nil {
		_ = handle.Release()
		rec.state = StateFailed
		m.failLocked(id, ErrContractViolation, "loader returned no instance")
		return fmt.Errorf("plugin %q: %w", id, ErrContractViolation)
	}
	if reported := instance.ID(); reported != id {
		_ = handle.Release()
		rec.state = StateFailed
		m.failLocked(id, ErrContractViolation,
			fmt.Sprintf("module reports id %q", reported))
		return fmt.Errorf("plugin %q: %w: module reports id %q", id, ErrContractViolation, reported)
	}

	if obs, ok := instance.(Observable); ok {
		obs.SetObserver(&managerObserver{m: m, id: id})
	}

	rec.handle = handle
	rec.state = StateLoaded

	m.log.Info("plugin loaded", "plugin", id, "version", meta.Version)
	m.pending = append(m.pending, Event{Type: EventPluginLoaded, Plugin: id})
	return nil
}

func (m *Manager) initializeLocked(id string) error {
	rec, ok := m.registry[id]
	if !ok || rec.handle == nil {
		m.log.Error("plugin not loaded", "plugin", id)
		return fmt.Errorf("plugin %q: %w", id, ErrNotLoaded)
	}
	switch rec.state {
	case StateInitialized, StateActive:
		return nil
	case StateFailed:
		m.log.Error("plugin in failed state", "plugin", id)
		return fmt.Errorf("plugin %q: %w", id, ErrPluginFailed)
	}
	if m.resolving[id] {
		return fmt.Errorf("plugin %q: %w", id, ErrCyclicDependency)
	}
	m.resolving[id] = true
	defer delete(m.resolving, id)

	for _, dep := range rec.meta.Dependencies {
		if err := m.ensureDependencyInitializedLocked(rec, id, dep); err != nil {
			return err
		}
	}

	if err := safeCall(rec.instance().Initialize); err != nil {
		rec.state = StateFailed
		m.failLocked(id, ErrHookFailed, fmt.Sprintf("initialize: %v", err))
		return fmt.Errorf("plugin %q initialize: %w: %v", id, ErrHookFailed, err)
	}

	rec.state = StateInitialized
	m.log.Info("plugin initialized", "plugin", id)
	m.pending = append(m.pending, Event{Type: EventPluginInitialized, Plugin: id})
	return nil
}

// ensureDependencyInitializedLocked loads and initializes a dependency
// on behalf of rec. A dependency failure fails the dependent, not the
// dependency (the dependency keeps whatever state its own attempt left).
func (m *Manager) ensureDependencyInitializedLocked(rec *record, id, dep string) error {
	drec, ok := m.registry[dep]
	if !ok || drec.handle == nil {
		if err := m.loadLocked(dep); err != nil {
			return m.failDependencyLocked(rec, id, dep, err, ErrDependencyInitFailed)
		}
		drec = m.registry[dep]
	}
	if drec.state != StateInitialized && drec.state != StateActive {
		if err := m.initializeLocked(dep); err != nil {
			return m.failDependencyLocked(rec, id, dep, err, ErrDependencyInitFailed)
		}
	}
	return nil
}

// failDependencyLocked marks rec failed because dependency dep failed.
// A cycle detected down the chain surfaces as ErrCyclicDependency
// instead of the generic dependency reason.
func (m *Manager) failDependencyLocked(rec *record, id, dep string, cause, reason error) error {
	if errors.Is(cause, ErrCyclicDependency) {
		reason = ErrCyclicDependency
	}
	rec.state = StateFailed
	m.failLocked(id, reason, fmt.Sprintf("dependency %s: %v", dep, cause))
	return fmt.Errorf("plugin %q: %w: %s", id, reason, dep)
}

func (m *Manager) activateLocked(id string) error {
	rec, ok := m.registry[id]
	if !ok || rec.handle == nil {
		m.log.Error("plugin not loaded", "plugin", id)
		return fmt.Errorf("plugin %q: %w", id, ErrNotLoaded)
	}
	switch rec.state {
	case StateActive:
		return nil
	case StateFailed:
		m.log.Error("plugin in failed state", "plugin", id)
		return fmt.Errorf("plugin %q: %w", id, ErrPluginFailed)
	}
	if m.resolving[id] {
		return fmt.Errorf("plugin %q: %w", id, ErrCyclicDependency)
	}

	if rec.state != StateInitialized {
		if err := m.initializeLocked(id); err != nil {
			return err
		}
	}

	m.resolving[id] = true
	defer delete(m.resolving, id)

	for _, dep := range rec.meta.Dependencies {
		drec, ok := m.registry[dep]
		if ok && drec.state == StateActive {
			continue
		}
		if err := m.activateLocked(dep); err != nil {
			return m.failDependencyLocked(rec, id, dep, err, ErrDependencyActivateFailed)
		}
	}

	if err := safeCall(rec.instance().Activate); err != nil {
		rec.state = StateFailed
		m.failLocked(id, ErrHookFailed, fmt.Sprintf("activate: %v", err))
		return fmt.Errorf("plugin %q activate: %w: %v", id, ErrHookFailed, err)
	}

	rec.state = StateActive
	m.log.Info("plugin activated", "plugin", id)
	m.pending = append(m.pending, Event{Type: EventPluginActivated, Plugin: id})
	return nil
}

func (m *Manager) deactivateLocked(id string) error {
	rec, ok := m.registry[id]
	if !ok || rec.state != StateActive {
		return nil
	}
	if m.resolving[id] {
		return fmt.Errorf("plugin %q: %w", id, ErrCyclicDependency)
	}
	m.resolving[id] = true
	defer delete(m.resolving, id)

	// Active dependents must never outlive the capability they depend
	// on; cascade over them first.
	for _, depID := range m.dependentsLocked(id, true) {
		if m.registry[depID].state != StateActive {
			continue
		}
		if err := m.deactivateLocked(depID); err != nil {
			m.log.Error("failed to deactivate dependent", "plugin", depID, "dependency", id, "error", err)
			return fmt.Errorf("dependent %q of %q: %w", depID, id, err)
		}
	}

	if err := safeCall(rec.instance().Deactivate); err != nil {
		// Deactivation failure is retriable; the plugin stays active.
		m.log.Error("plugin deactivate hook failed", "plugin", id, "error", err)
		return fmt.Errorf("plugin %q deactivate: %w: %v", id, ErrHookFailed, err)
	}

	rec.state = StateInitialized
	m.log.Info("plugin deactivated", "plugin", id)
	m.pending = append(m.pending, Event{Type: EventPluginDeactivated, Plugin: id})
	return nil
}

func (m *Manager) unloadLocked(id string, loadedDependentsOnly bool) error {
	rec, ok := m.registry[id]
	if !ok || rec.handle == nil {
		return nil
	}

	dependents := m.dependentsLocked(id, loadedDependentsOnly)
	if len(dependents) > 0 {
		m.log.Error("cannot unload plugin", "plugin", id, "dependents", strings.Join(dependents, ", "))
		return fmt.Errorf("plugin %q: %w: %s", id, ErrBlockedByDependents, strings.Join(dependents, ", "))
	}

	if rec.state == StateActive {
		if err := m.deactivateLocked(id); err != nil {
			return err
		}
	}

	if rec.state == StateInitialized {
		if err := safeCall(rec.instance().Shutdown); err != nil {
			// Retriable; do not force the failed state on a plugin the
			// caller is trying to remove.
			m.log.Error("plugin shutdown hook failed", "plugin", id, "error", err)
			return fmt.Errorf("plugin %q shutdown: %w: %v", id, ErrHookFailed, err)
		}
	}

	// Purge before the handle is released so no handler can outlive
	// the module that registered it.
	if m.bus != nil {
		m.bus.PurgeHandlers(id)
	}

	if err := rec.handle.Release(); err != nil {
		m.log.Error("failed to release module", "plugin", id, "error", err)
		return fmt.Errorf("plugin %q: %w: %v", id, ErrUnloadFailed, err)
	}

	rec.handle = nil
	rec.state = StateNotLoaded

	m.log.Info("plugin unloaded", "plugin", id)
	m.pending = append(m.pending, Event{Type: EventPluginUnloaded, Plugin: id})
	return nil
}

func (m *Manager) shutdownLocked() {
	ids := make([]string, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	order := m.sortByDependencyLocked(ids)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	m.log.Info("shutting down", "plugins", len(order))

	for _, id := range order {
		rec, ok := m.registry[id]
		if !ok {
			continue
		}
		if rec.state == StateActive {
			if err := m.deactivateLocked(id); err != nil {
				m.log.Error("shutdown: deactivate failed", "plugin", id, "error", err)
			}
		}
		if rec.handle != nil {
			// Dependents were torn down earlier in the reverse order;
			// only still-loaded ones may block here.
			if err := m.unloadLocked(id, true); err != nil {
				m.log.Error("shutdown: unload failed", "plugin", id, "error", err)
			}
		}
	}

	m.registry = make(map[string]*record)
}

// metadataLocked returns the metadata for id, loading the descriptor
// on demand and registering a fresh record when needed.
func (m *Manager) metadataLocked(id string) (*Metadata, error) {
	if rec, ok := m.registry[id]; ok && rec.meta != nil {
		return rec.meta, nil
	}

	meta, err := LoadMetadata(filepath.Join(m.metadataDir, id+".json"))
	if err != nil {
		return nil, err
	}
	if meta.ID != id {
		return nil, fmt.Errorf("%w: descriptor id %q does not match %q", ErrMetadataInvalid, meta.ID, id)
	}

	rec, ok := m.registry[id]
	if !ok {
		rec = &record{state: StateNotLoaded}
		m.registry[id] = rec
	}
	rec.meta = meta
	return meta, nil
}

// dependentsLocked returns the sorted ids of registered plugins whose
// metadata declares a dependency on id. With loadedOnly set, plugins
// not currently holding a module are ignored.
func (m *Manager) dependentsLocked(id string, loadedOnly bool) []string {
	var dependents []string
	for otherID, rec := range m.registry {
		if otherID == id || rec.meta == nil {
			continue
		}
		if loadedOnly && rec.handle == nil {
			continue
		}
		if rec.meta.DependsOn(id) {
			dependents = append(dependents, otherID)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// sortByDependencyLocked orders ids so every id appears after all of
// its declared dependencies (depth-first post-order over metadata).
func (m *Manager) sortByDependencyLocked(ids []string) []string {
	visited := make(map[string]bool)
	order := make([]string, 0, len(ids))

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		if rec, ok := m.registry[id]; ok && rec.meta != nil {
			for _, dep := range rec.meta.Dependencies {
				if !visited[dep] {
					visit(dep)
				}
			}
		}
		order = append(order, id)
	}

	for _, id := range ids {
		if !visited[id] {
			visit(id)
		}
	}
	return order
}

// failLocked logs a failure and queues the failed event.
func (m *Manager) failLocked(id string, reason error, detail string) {
	m.log.Error("plugin failed", "plugin", id, "reason", reason, "detail", detail)
	m.pending = append(m.pending, Event{Type: EventPluginFailed, Plugin: id, Err: reason, Message: detail})
}

func (m *Manager) takePendingLocked() []Event {
	events := m.pending
	m.pending = nil
	return events
}

func (m *Manager) selectIDs(keep func(*record) bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, rec := range m.registry {
		if keep(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// emit delivers events to all handlers, outside any lock, with panic recovery.
func (m *Manager) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	m.hmu.Lock()
	handlers := make([]EventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.hmu.Unlock()

	for _, event := range events {
		for _, handler := range handlers {
			if handler == nil {
				continue
			}
			func() {
				defer func() {
					recover() // Ignore panics from handlers
				}()
				handler(event)
			}()
		}
	}
}

// safeCall is the failure boundary around plugin hooks: a panic inside
// the hook is converted into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// managerObserver republishes plugin status and event notifications as
// manager events. Notifications may arrive from any goroutine.
type managerObserver struct {
	m  *Manager
	id string
}

func (o *managerObserver) OnStatus(status string) {
	o.m.emit(Event{Type: EventPluginStatus, Plugin: o.id, Message: status})
}

func (o *managerObserver) OnEvent(eventType string, payload any) {
	o.m.emit(Event{Type: EventPluginNotice, Plugin: o.id, Name: eventType, Payload: payload})
}
