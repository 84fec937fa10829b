package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client. ID is an
// optional client-chosen correlation id; when set, the server answers the
// event with an Outbound carrying the same id.
type Inbound struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event types.
const (
	InboundTypeJoin      = "user:join"
	InboundTypeSend      = "message:send"
	InboundTypeAck       = "message:ack"
	InboundTypeTyping    = "typing"
	InboundTypeReaction  = "reaction"
	InboundTypeJoinRoom  = "join:room"
	InboundTypeLeaveRoom = "leave:room"
	InboundTypeHistory   = "message:history"
)

// Outbound envelope types.
const (
	OutboundTypeEvent = "event"
	OutboundTypeReply = "reply"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventMessageNew     = "message:new"
	EventMessageRead    = "message:read"
	EventReactionUpdate = "reaction:update"
	EventTyping         = "typing"
	EventNotification   = "notification"
	EventPresenceUpdate = "presence:update"
)

// JoinData introduces the user. Username is a fallback for anonymous
// connections; a verified handshake identity takes precedence.
type JoinData struct {
	Username string `json:"username"`
}

// SendData is a chat message from the client.
type SendData struct {
	Room     string         `json:"room,omitempty"`
	To       string         `json:"to,omitempty"`
	Text     string         `json:"text,omitempty"`
	Type     string         `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AckData marks a message as read. Username is accepted for wire
// compatibility but the session's own identity is what gets recorded.
type AckData struct {
	MessageID int64  `json:"messageId"`
	Username  string `json:"username,omitempty"`
}

// TypingData signals that the user is typing in a room.
type TypingData struct {
	Room string `json:"room,omitempty"`
}

// ReactionData toggles on a reaction for a message.
type ReactionData struct {
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
	Username  string `json:"username,omitempty"`
}

// RoomData names a room for join:room / leave:room.
type RoomData struct {
	Room string `json:"room"`
}

// HistoryData requests a page of persisted messages.
type HistoryData struct {
	Room     string `json:"room,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is the wire shape of a persisted message.
type MessagePayload struct {
	ID        int64               `json:"id"`
	Room      string              `json:"room"`
	From      string              `json:"from"`
	To        string              `json:"to,omitempty"`
	Text      string              `json:"text,omitempty"`
	Type      string              `json:"type"`
	Metadata  map[string]any      `json:"metadata,omitempty"`
	TS        int64               `json:"ts"`
	Reactions map[string][]string `json:"reactions"`
	ReadBy    []string            `json:"readBy"`
}

// JoinReply answers user:join.
type JoinReply struct {
	OK     bool             `json:"ok"`
	Room   string           `json:"room"`
	Recent []MessagePayload `json:"recent"`
}

// SendReply answers message:send.
type SendReply struct {
	Delivered bool  `json:"delivered"`
	MessageID int64 `json:"id"`
}

// RoomReply answers join:room and leave:room.
type RoomReply struct {
	OK   bool   `json:"ok"`
	Room string `json:"room,omitempty"`
}

// HistoryReply answers message:history.
type HistoryReply struct {
	Messages []MessagePayload `json:"messages"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// NotificationPayload announces join/leave/join-room/leave-room.
type NotificationPayload struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username"`
}

// TypingPayload re-emits a typing signal.
type TypingPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// ReadPayload announces a read receipt.
type ReadPayload struct {
	MessageID int64  `json:"messageId"`
	Username  string `json:"username"`
}

// ReactionPayload carries the full reactor set for one emoji.
type ReactionPayload struct {
	MessageID int64    `json:"messageId"`
	Emoji     string   `json:"emoji"`
	Users     []string `json:"users"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
