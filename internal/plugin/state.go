package plugin

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateNotLoaded - Plugin is known by metadata only; no module is loaded.
	StateNotLoaded State = iota

	// StateLoaded - Plugin module is loaded but not initialized.
	StateLoaded

	// StateInitialized - Plugin is initialized and ready to activate.
	StateInitialized

	// StateActive - Plugin is active and providing its functionality.
	StateActive

	// StateInactive - Reserved. Normal deactivation lands on
	// StateInitialized; no manager operation produces this state.
	StateInactive

	// StateFailed - Plugin failed a load, initialize, or activate attempt.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsLoaded returns true if a module is held for this state.
func (s State) IsLoaded() bool {
	switch s {
	case StateLoaded, StateInitialized, StateActive, StateInactive:
		return true
	default:
		return false
	}
}

// CanActivate returns true if an activate attempt is permitted from
// this state. StateInactive and StateLoaded are treated identically.
func (s State) CanActivate() bool {
	switch s {
	case StateLoaded, StateInitialized, StateInactive:
		return true
	default:
		return false
	}
}

// CanDeactivate returns true if the plugin has something to deactivate.
func (s State) CanDeactivate() bool {
	return s == StateActive
}

// CanUnload returns true if an unload attempt makes sense from this state.
func (s State) CanUnload() bool {
	return s.IsLoaded() || s == StateFailed
}
