package plugin

// Plugin is the contract every loaded module must satisfy.
//
// Lifecycle hooks are invoked by the Manager under a failure boundary:
// a returned error or a panic is converted into a structured failure,
// never propagated as a crash. Hooks must not call back into the
// Manager; they run inside its critical section.
type Plugin interface {
	// Initialize prepares the plugin for use. Called after the module
	// is loaded, before activation.
	Initialize() error

	// Activate starts the plugin providing its functionality.
	Activate() error

	// Deactivate stops the plugin providing its functionality. The
	// plugin remains initialized and may be activated again.
	Deactivate() error

	// Shutdown releases plugin resources. Called before the module is unloaded.
	Shutdown() error

	// Identity accessors. ID must match the id declared in the
	// plugin's metadata descriptor.
	ID() string
	Name() string
	Version() string
	Vendor() string
	Description() string

	// Dependencies returns the plugin ids this plugin depends on.
	Dependencies() []string

	// Metadata returns the plugin's full self-declared metadata. The
	// descriptor file remains authoritative for the registry; this
	// accessor exists for hosts inspecting a live instance.
	Metadata() *Metadata

	// ExecuteCommand invokes a plugin-defined operation. Only usable
	// while the plugin is active.
	ExecuteCommand(command string, params map[string]any) (any, error)
}

// Observer receives out-of-band notifications from a plugin: a status
// message stream and a typed event stream.
type Observer interface {
	OnStatus(status string)
	OnEvent(eventType string, payload any)
}

// Observable is implemented by plugins that emit status or event
// notifications. The Manager attaches an observer at load time and
// republishes notifications as manager events.
type Observable interface {
	SetObserver(Observer)
}
