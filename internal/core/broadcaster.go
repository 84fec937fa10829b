package core

import "github.com/rs/zerolog"

// Broadcaster fans events out to connections. Recipient sets are
// snapshotted under the registry lock and delivery happens after it is
// released, so a slow consumer never blocks the registry's critical
// section. Delivery is fire and forget: events to a full channel are
// dropped for that one recipient and the rest still get theirs.
type Broadcaster struct {
	reg *Registry
	log *zerolog.Logger
}

// NewBroadcaster builds a broadcaster over the given registry.
func NewBroadcaster(reg *Registry, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: logger}
}

// ToRoom delivers an event to every connection joined to the room,
// skipping exclude if given.
func (b *Broadcaster) ToRoom(room string, ev *Event, exclude *Client) {
	for _, c := range b.reg.RoomClients(room, exclude) {
		b.deliver(c, ev)
	}
}

// ToClient delivers an event to a single connection.
func (b *Broadcaster) ToClient(c *Client, ev *Event) {
	b.deliver(c, ev)
}

// ToAll delivers an event to every registered connection. Used only for
// presence updates.
func (b *Broadcaster) ToAll(ev *Event) {
	for _, c := range b.reg.AllClients() {
		b.deliver(c, ev)
	}
}

func (b *Broadcaster) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		if b.log != nil {
			b.log.Debug().Str("client_id", c.ID).Int("kind", int(ev.Kind)).Msg("dropping event for slow consumer")
		}
	}
}
