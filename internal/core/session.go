package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/chatrelay/chatrelay-server/internal/store"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int

const (
	// StateConnecting means the transport is open but no identity is bound.
	StateConnecting SessionState = iota
	// StateAuthenticated means the handshake carried a verified credential.
	StateAuthenticated
	// StateJoined means the connection is registered and may use every operation.
	StateJoined
	// StateClosed means the transport has gone away.
	StateClosed
)

// SendRequest is the payload of a send operation.
type SendRequest struct {
	Room     string
	To       string
	Text     string
	Type     string
	Metadata map[string]any
}

// Session is the per-connection handler. It validates inbound events
// against registry state, persists through the message store when
// applicable, and fans results out via the broadcaster. All Handle
// methods run on the connection's read goroutine; outbound delivery to
// this connection goes through the client's event channel so replies and
// broadcasts stay ordered.
type Session struct {
	client   *Client
	verified *Identity // from the handshake credential, nil when anonymous
	state    SessionState

	reg      *Registry
	bc       *Broadcaster
	messages store.MessageStore
	opts     Options
	log      *zerolog.Logger
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// Client returns the underlying connection.
func (s *Session) Client() *Client {
	return s.client
}

// HandleJoin registers the connection in the default room, loads the
// recent history snapshot and announces the arrival. The display name
// from the payload is ignored when the handshake already verified an
// identity: the verified identity wins.
func (s *Session) HandleJoin(ctx context.Context, ackID, username string) {
	if s.state == StateClosed {
		return
	}

	id := Identity{DisplayName: username}
	if s.verified != nil {
		id = *s.verified
	}
	if id.DisplayName == "" {
		s.replyError(ackID, ErrCodeBadRequest, "display name required")
		return
	}

	bound := s.reg.Register(s.client, id)
	s.state = StateJoined

	room := s.reg.DefaultRoom()
	s.bc.ToRoom(room, &Event{
		Kind:   EventNotification,
		Notice: NoticeJoin,
		Room:   room,
		User:   bound.DisplayName,
	}, s.client)
	s.broadcastPresence()

	recent, err := s.messages.RecentMessages(ctx, room, s.opts.RecentHistoryLimit)
	if err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("load recent history")
		s.replyError(ackID, ErrCodeStoreUnavailable, "history unavailable")
		return
	}

	s.bc.ToClient(s.client, &Event{
		Kind:     EventJoinReply,
		AckID:    ackID,
		OK:       true,
		Room:     room,
		Messages: recent,
	})
}

// HandleSend persists a message, broadcasts it to the room (sender
// included) and unicasts to the direct recipient when one is online. The
// reply confirms persistence; nothing is broadcast if the store fails.
func (s *Session) HandleSend(ctx context.Context, ackID string, req SendRequest) {
	if !s.requireJoined(ackID) {
		return
	}

	room := req.Room
	if room == "" {
		room = s.reg.DefaultRoom()
	}

	msg := &store.Message{
		Room:     room,
		From:     s.client.Name(),
		To:       req.To,
		Text:     req.Text,
		Type:     req.Type,
		Metadata: req.Metadata,
	}
	if _, err := s.messages.InsertMessage(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("persist message")
		s.replyError(ackID, ErrCodeStoreUnavailable, "message not persisted")
		return
	}

	ev := &Event{Kind: EventMessageNew, Room: room, Message: msg}
	s.bc.ToRoom(room, ev, nil)
	if msg.To != "" {
		if direct := s.reg.Resolve(msg.To); direct != nil {
			s.bc.ToClient(direct, ev)
		}
	}

	s.bc.ToClient(s.client, &Event{
		Kind:      EventSendReply,
		AckID:     ackID,
		Delivered: true,
		MessageID: msg.ID,
	})
}

// HandleAck idempotently records a read receipt and broadcasts it to the
// message's room on first addition. Unknown message ids are ignored so
// stale clients don't see errors.
func (s *Session) HandleAck(ctx context.Context, messageID int64) {
	if !s.requireJoined("") {
		return
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		s.storeUnavailable(err, "load message for read mark")
		return
	}

	name := s.client.Name()
	added, err := s.messages.MarkRead(ctx, messageID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		s.storeUnavailable(err, "persist read mark")
		return
	}
	if !added {
		return
	}

	s.bc.ToRoom(msg.Room, &Event{
		Kind:      EventMessageRead,
		Room:      msg.Room,
		User:      name,
		MessageID: messageID,
	}, nil)
}

// HandleTyping re-emits a typing signal to the other members of the room.
// Nothing is persisted and the server tracks no expiry; the 1.5s fade-out
// is a client-side contract.
func (s *Session) HandleTyping(room string) {
	if !s.requireJoined("") {
		return
	}
	if room == "" {
		room = s.reg.DefaultRoom()
	}

	s.bc.ToRoom(room, &Event{
		Kind: EventTyping,
		Room: room,
		User: s.client.Name(),
	}, s.client)
}

// HandleReact idempotently adds the reactor and broadcasts the full
// reactor set for the emoji. The broadcast fires even for a repeated
// reaction, carrying the unchanged set. Unknown ids are ignored.
func (s *Session) HandleReact(ctx context.Context, messageID int64, emoji string) {
	if !s.requireJoined("") {
		return
	}
	if emoji == "" {
		return
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		s.storeUnavailable(err, "load message for reaction")
		return
	}

	reactors, err := s.messages.AddReaction(ctx, messageID, emoji, s.client.Name())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		s.storeUnavailable(err, "persist reaction")
		return
	}

	s.bc.ToRoom(msg.Room, &Event{
		Kind:      EventReactionUpdate,
		Room:      msg.Room,
		MessageID: messageID,
		Emoji:     emoji,
		Reactors:  reactors,
	}, nil)
}

// HandleJoinRoom adds a room membership and announces it to the room,
// the joiner included. Idempotent.
func (s *Session) HandleJoinRoom(ackID, room string) {
	if !s.requireJoined(ackID) {
		return
	}
	if room == "" {
		s.replyError(ackID, ErrCodeBadRequest, "room is required")
		return
	}

	changed, memberRooms := s.reg.JoinRoom(s.client, room)
	s.bc.ToRoom(room, &Event{
		Kind:   EventNotification,
		Notice: NoticeJoinRoom,
		Room:   room,
		User:   s.client.Name(),
	}, nil)
	if changed && memberRooms == 1 {
		// First membership again: the identity is back in the presence set.
		s.broadcastPresence()
	}

	s.bc.ToClient(s.client, &Event{
		Kind:  EventRoomReply,
		AckID: ackID,
		OK:    true,
		Room:  room,
	})
}

// HandleLeaveRoom removes a room membership and announces it to the
// remaining members. Idempotent; a no-op leave still replies ok.
func (s *Session) HandleLeaveRoom(ackID, room string) {
	if !s.requireJoined(ackID) {
		return
	}
	if room == "" {
		s.replyError(ackID, ErrCodeBadRequest, "room is required")
		return
	}

	changed, memberRooms := s.reg.LeaveRoom(s.client, room)
	s.bc.ToRoom(room, &Event{
		Kind:   EventNotification,
		Notice: NoticeLeaveRoom,
		Room:   room,
		User:   s.client.Name(),
	}, nil)
	if changed && memberRooms == 0 {
		// No memberships left: the identity may drop out of presence.
		s.broadcastPresence()
	}

	s.bc.ToClient(s.client, &Event{
		Kind:  EventRoomReply,
		AckID: ackID,
		OK:    true,
	})
}

// HandleHistory replies with one page of persisted messages, oldest
// first. Negative pages clamp to zero; a missing room falls back to the
// default room.
func (s *Session) HandleHistory(ctx context.Context, ackID, room string, page, pageSize int) {
	if !s.requireJoined(ackID) {
		return
	}
	if room == "" {
		room = s.reg.DefaultRoom()
	}
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = s.opts.HistoryPageSize
	}

	msgs, err := s.messages.ListMessages(ctx, room, page*pageSize, pageSize)
	if err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("load history page")
		s.replyError(ackID, ErrCodeStoreUnavailable, "history unavailable")
		return
	}

	s.bc.ToClient(s.client, &Event{
		Kind:     EventHistoryReply,
		AckID:    ackID,
		Room:     room,
		Messages: msgs,
		Page:     page,
		PageSize: pageSize,
	})
}

// Close unregisters the connection. Runs unconditionally once the
// transport signals closure; when this was the identity's last live
// connection it announces the leave to every room the connection was in
// and re-broadcasts presence.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed

	removed, rooms := s.reg.Unregister(s.client)
	if removed == nil {
		return
	}

	for _, room := range rooms {
		s.bc.ToRoom(room, &Event{
			Kind:   EventNotification,
			Notice: NoticeLeave,
			Room:   room,
			User:   removed.DisplayName,
		}, nil)
	}
	s.broadcastPresence()
}

func (s *Session) broadcastPresence() {
	s.bc.ToAll(&Event{
		Kind:  EventPresence,
		Names: s.reg.OnlineNames(),
	})
}

// requireJoined rejects room-scoped actions before the join event. The
// connection stays open; the caller just gets a not_joined error.
func (s *Session) requireJoined(ackID string) bool {
	if s.state == StateJoined {
		return true
	}
	s.replyError(ackID, ErrCodeNotJoined, "join before using this operation")
	return false
}

func (s *Session) replyError(ackID, code, msg string) {
	s.bc.ToClient(s.client, &Event{
		Kind:  EventError,
		AckID: ackID,
		Error: coreError(code, msg),
	})
}

func (s *Session) storeUnavailable(err error, what string) {
	s.log.Error().Err(err).Msg(what)
	s.replyError("", ErrCodeStoreUnavailable, "storage unavailable")
}
