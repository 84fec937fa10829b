package core

import (
	"github.com/rs/zerolog"

	"github.com/chatrelay/chatrelay-server/internal/store"
)

// Options carries the tunables the core needs from configuration.
type Options struct {
	DefaultRoom        string
	RecentHistoryLimit int
	HistoryPageSize    int
}

// Coordinator owns the process-wide registry and broadcaster and hands out
// per-connection sessions wired to them. It holds no business state of its
// own beyond these references.
type Coordinator struct {
	registry    *Registry
	broadcaster *Broadcaster
	messages    store.MessageStore
	opts        Options
	log         *zerolog.Logger
}

// NewCoordinator wires the registry, broadcaster and message store.
func NewCoordinator(messages store.MessageStore, opts Options, logger *zerolog.Logger) *Coordinator {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "global"
	}
	if opts.RecentHistoryLimit <= 0 {
		opts.RecentHistoryLimit = 200
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 20
	}

	reg := NewRegistry(opts.DefaultRoom)
	return &Coordinator{
		registry:    reg,
		broadcaster: NewBroadcaster(reg, logger),
		messages:    messages,
		opts:        opts,
		log:         logger,
	}
}

// Registry exposes the session registry, mainly for tests and handlers
// that need presence snapshots.
func (co *Coordinator) Registry() *Registry {
	return co.registry
}

// NewSession builds the connection handler for one accepted transport
// connection. identity is non-nil when the handshake carried a verified
// credential.
func (co *Coordinator) NewSession(c *Client, identity *Identity) *Session {
	return &Session{
		client:   c,
		verified: identity,
		state:    stateForIdentity(identity),
		reg:      co.registry,
		bc:       co.broadcaster,
		messages: co.messages,
		opts:     co.opts,
		log:      co.log,
	}
}

func stateForIdentity(identity *Identity) SessionState {
	if identity != nil {
		return StateAuthenticated
	}
	return StateConnecting
}
