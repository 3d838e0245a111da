package plugin

// EventHandler handles plugin manager events.
// Handlers are invoked synchronously on the emitting goroutine and
// must not call back into the Manager. Panics in handlers are recovered.
type EventHandler func(event Event)

// Event represents a plugin lifecycle notification.
type Event struct {
	Type   EventType
	Plugin string

	// Err carries the failure reason for EventPluginFailed.
	Err error

	// Message carries a status text for EventPluginStatus, or a
	// human-readable detail for EventPluginFailed.
	Message string

	// Name and Payload carry the plugin-defined event for EventPluginNotice.
	Name    string
	Payload any
}

// EventType is the type of manager event.
type EventType int

const (
	// EventPluginLoaded is emitted when a plugin module is loaded.
	EventPluginLoaded EventType = iota
	// EventPluginUnloaded is emitted when a plugin module is released.
	EventPluginUnloaded
	// EventPluginInitialized is emitted when a plugin is initialized.
	EventPluginInitialized
	// EventPluginActivated is emitted when a plugin becomes active.
	EventPluginActivated
	// EventPluginDeactivated is emitted when a plugin returns to initialized.
	EventPluginDeactivated
	// EventPluginFailed is emitted when a lifecycle attempt fails.
	EventPluginFailed
	// EventPluginStatus is emitted when a plugin reports a status message.
	EventPluginStatus
	// EventPluginNotice is emitted when a plugin raises a typed event.
	EventPluginNotice
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginInitialized:
		return "initialized"
	case EventPluginActivated:
		return "activated"
	case EventPluginDeactivated:
		return "deactivated"
	case EventPluginFailed:
		return "failed"
	case EventPluginStatus:
		return "status"
	case EventPluginNotice:
		return "notice"
	default:
		return "unknown"
	}
}
