package core

// Identity is the verified principal bound to a connection after it joins.
// Immutable for the connection's lifetime.
type Identity struct {
	ID          int64
	DisplayName string
}

// Client is a live connection as seen by the core layer. Once registered it
// is owned by the Registry: rooms and identity are only written under the
// registry lock.
type Client struct {
	ID     string
	Events chan *Event

	identity *Identity
	rooms    map[string]struct{}
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 32),
		rooms:  make(map[string]struct{}),
	}
}

// Name returns the client's display name, or "" before it has joined.
func (c *Client) Name() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.DisplayName
}
