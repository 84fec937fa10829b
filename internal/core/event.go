package core

import "github.com/chatrelay/chatrelay-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageNew carries a freshly persisted chat message.
	EventMessageNew EventKind = iota
	// EventMessageRead notifies a room that someone read a message.
	EventMessageRead
	// EventReactionUpdate carries the full reactor set for one emoji.
	EventReactionUpdate
	// EventTyping re-emits a typing signal to other room members.
	EventTyping
	// EventNotification announces join/leave/join-room/leave-room.
	EventNotification
	// EventPresence carries the recomputed set of online display names.
	EventPresence

	// Reply kinds answer a specific inbound request and carry its AckID.

	// EventJoinReply answers a join with the room and recent history.
	EventJoinReply
	// EventSendReply confirms persistence of a sent message.
	EventSendReply
	// EventRoomReply answers joinRoom/leaveRoom.
	EventRoomReply
	// EventHistoryReply answers a history page request.
	EventHistoryReply
	// EventError surfaces a domain error to one client.
	EventError
)

// Notification types announced to rooms.
const (
	NoticeJoin      = "join"
	NoticeLeave     = "leave"
	NoticeJoinRoom  = "join-room"
	NoticeLeaveRoom = "leave-room"
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind  EventKind
	AckID string // set on replies to correlate with the request

	Room   string
	User   string
	Notice string

	Message  *store.Message
	Messages []*store.Message

	MessageID int64
	Emoji     string
	Reactors  []string

	Names []string // presence snapshot

	OK        bool
	Delivered bool
	Page      int
	PageSize  int

	Error *CoreError
}
