package core

import (
	"sort"
	"sync"
)

// Registry is the authoritative in-memory mapping of live connections to
// identities and room memberships. All tables live behind one mutex so
// membership and presence reads are linearizable with respect to each
// other. The registry performs no I/O and never broadcasts; callers
// compose it with the Broadcaster and the message store.
type Registry struct {
	mu sync.RWMutex

	defaultRoom string
	clients     map[string]*Client            // connection id -> client
	routes      map[string]*Client            // display name -> latest registered client
	rooms       map[string]map[*Client]struct{} // room name -> members
}

// NewRegistry constructs an empty registry around the given default room.
func NewRegistry(defaultRoom string) *Registry {
	return &Registry{
		defaultRoom: defaultRoom,
		clients:     make(map[string]*Client),
		routes:      make(map[string]*Client),
		rooms:       make(map[string]map[*Client]struct{}),
	}
}

// DefaultRoom returns the room every connection joins on registration.
func (r *Registry) DefaultRoom() string {
	return r.defaultRoom
}

// Register binds an identity to the connection and joins it to the default
// room. A later registration for the same display name displaces the
// earlier one's routing entry (last write wins) but does not close the
// earlier connection. Re-registering an already bound connection keeps its
// original identity.
func (r *Registry) Register(c *Client, id Identity) Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.identity == nil {
		c.identity = &id
	}
	r.clients[c.ID] = c
	r.routes[c.identity.DisplayName] = c
	r.joinLocked(c, r.defaultRoom)
	return *c.identity
}

// JoinRoom adds the room to the connection's membership set. Idempotent.
// Returns whether the set changed and the membership count afterwards.
func (r *Registry) JoinRoom(c *Client, room string) (changed bool, memberRooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed = r.joinLocked(c, room)
	return changed, len(c.rooms)
}

// LeaveRoom removes the room from the connection's membership set.
// Idempotent; a no-op if absent.
func (r *Registry) LeaveRoom(c *Client, room string) (changed bool, memberRooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return false, len(c.rooms)
	}
	delete(c.rooms, room)
	r.dropMemberLocked(c, room)
	return true, len(c.rooms)
}

// Unregister removes the connection and all of its memberships. It returns
// the identity if this was that identity's last live connection, plus the
// exact set of rooms the connection was joined to, so the caller can
// notify them without relying on transport side effects.
func (r *Registry) Unregister(c *Client) (removed *Identity, rooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c.ID)

	rooms = make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		r.dropMemberLocked(c, room)
	}
	sort.Strings(rooms)
	c.rooms = make(map[string]struct{})

	if c.identity == nil {
		return nil, rooms
	}

	name := c.identity.DisplayName
	if r.routes[name] == c {
		delete(r.routes, name)
	}

	for _, other := range r.clients {
		if other.identity != nil && other.identity.DisplayName == name {
			// Another live connection still represents this identity.
			return nil, rooms
		}
	}
	return c.identity, rooms
}

// OnlineNames returns the sorted set of display names with at least one
// live connection joined to at least one room.
func (r *Registry) OnlineNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range r.clients {
		if c.identity == nil || len(c.rooms) == 0 {
			continue
		}
		seen[c.identity.DisplayName] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the most recently registered connection for a display
// name, or nil when the identity is offline.
func (r *Registry) Resolve(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes[name]
}

// RoomClients snapshots the members of a room, skipping exclude if given.
func (r *Registry) RoomClients(room string, exclude *Client) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		if c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AllClients snapshots every registered connection.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) joinLocked(c *Client, room string) bool {
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

func (r *Registry) dropMemberLocked(c *Client, room string) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
