// Package comm provides the mediated message-passing channel between
// plugins. Handlers are keyed by (plugin id, message type) and every
// exchange is gated by communication permissions.
package comm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Communication permissions checked by the bus.
const (
	PermSend      = "communication.send"
	PermReceive   = "communication.receive"
	PermBroadcast = "communication.broadcast"
)

// Bus errors.
var (
	// ErrHandlerExists is returned when a (plugin, message type) pair is
	// already registered.
	ErrHandlerExists = errors.New("handler already registered")

	// ErrHandlerNotFound is returned when unregistering an unknown handler.
	ErrHandlerNotFound = errors.New("handler not registered")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// Handler processes a message addressed to the plugin that registered
// it and returns a response. Handlers run outside the bus lock and may
// call back into the bus or the manager.
type Handler func(senderID string, payload any) any

// PermissionChecker answers permission queries. Satisfied by the
// security gate.
type PermissionChecker interface {
	HasPermission(pluginID, permission string) bool
}

// Bus mediates inter-plugin messages. It carries its own lock,
// independent of the manager's, so message dispatch never holds the
// registry lock.
type Bus struct {
	mu       sync.Mutex
	handlers map[string]Handler // "<plugin id>:<message type>"
	perms    PermissionChecker
	log      *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBus creates a bus gated by the given permission checker.
func NewBus(perms PermissionChecker, opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[string]Handler),
		perms:    perms,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func handlerKey(pluginID, messageType string) string {
	return pluginID + ":" + messageType
}

// RegisterHandler registers a message handler for a plugin. A handler
// for the exact (pluginID, messageType) pair may exist only once.
func (b *Bus) RegisterHandler(pluginID, messageType string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	key := handlerKey(pluginID, messageType)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[key]; ok {
		b.log.Warn("handler already registered", "plugin", pluginID, "type", messageType)
		return fmt.Errorf("%w: %s %s", ErrHandlerExists, pluginID, messageType)
	}
	b.handlers[key] = handler
	b.log.Info("registered handler", "plugin", pluginID, "type", messageType)
	return nil
}

// UnregisterHandler removes a single message handler.
func (b *Bus) UnregisterHandler(pluginID, messageType string) error {
	key := handlerKey(pluginID, messageType)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[key]; !ok {
		return fmt.Errorf("%w: %s %s", ErrHandlerNotFound, pluginID, messageType)
	}
	delete(b.handlers, key)
	b.log.Info("unregistered handler", "plugin", pluginID, "type", messageType)
	return nil
}

// PurgeHandlers removes every handler registered by a plugin and
// returns how many were removed. The manager calls this during unload.
func (b *Bus) PurgeHandlers(pluginID string) int {
	prefix := pluginID + ":"

	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key := range b.handlers {
		if strings.HasPrefix(key, prefix) {
			delete(b.handlers, key)
			removed++
		}
	}
	if removed > 0 {
		b.log.Info("purged handlers", "plugin", pluginID, "count", removed)
	}
	return removed
}

// Send delivers a message to one receiver and returns its response.
// The sender needs communication.send and the receiver
// communication.receive; a failed check or a missing handler yields a
// nil response. The caller cannot distinguish the cases; the log can.
func (b *Bus) Send(senderID, receiverID, messageType string, payload any) any {
	msgID := uuid.NewString()

	if !b.perms.HasPermission(senderID, PermSend) {
		b.log.Warn("sender lacks send permission", "msg", msgID, "sender", senderID)
		return nil
	}
	if !b.perms.HasPermission(receiverID, PermReceive) {
		b.log.Warn("receiver lacks receive permission", "msg", msgID, "receiver", receiverID)
		return nil
	}

	b.mu.Lock()
	handler, ok := b.handlers[handlerKey(receiverID, messageType)]
	b.mu.Unlock()
	if !ok {
		b.log.Warn("no handler for message", "msg", msgID, "receiver", receiverID, "type", messageType)
		return nil
	}

	b.log.Debug("sending message", "msg", msgID, "sender", senderID, "receiver", receiverID, "type", messageType)
	return handler(senderID, payload)
}

// Broadcast delivers a message to every plugin with a handler for the
// message type, skipping receivers without the receive permission, and
// returns the responses keyed by receiver id. The sender needs
// communication.broadcast.
func (b *Bus) Broadcast(senderID, messageType string, payload any) map[string]any {
	msgID := uuid.NewString()

	if !b.perms.HasPermission(senderID, PermBroadcast) {
		b.log.Warn("sender lacks broadcast permission", "msg", msgID, "sender", senderID)
		return map[string]any{}
	}

	suffix := ":" + messageType
	type target struct {
		receiver string
		handler  Handler
	}
	b.mu.Lock()
	var targets []target
	for key, handler := range b.handlers {
		if strings.HasSuffix(key, suffix) {
			targets = append(targets, target{receiver: strings.TrimSuffix(key, suffix), handler: handler})
		}
	}
	b.mu.Unlock()

	b.log.Debug("broadcasting message", "msg", msgID, "sender", senderID, "type", messageType, "targets", len(targets))

	responses := make(map[string]any)
	for _, t := range targets {
		if !b.perms.HasPermission(t.receiver, PermReceive) {
			b.log.Warn("receiver lacks receive permission", "msg", msgID, "receiver", t.receiver)
			continue
		}
		responses[t.receiver] = t.handler(senderID, payload)
	}
	return responses
}
