package http

import (
	"context"
	"encoding/json"

	"github.com/chatrelay/chatrelay-server/internal/core"
	"github.com/chatrelay/chatrelay-server/internal/proto"
	"github.com/chatrelay/chatrelay-server/internal/store"
)

// dispatch decodes an inbound envelope and hands it to the session. A
// non-nil return is a protocol-level error (malformed payload, unknown
// type); domain errors travel through the session's event channel.
func dispatch(ctx context.Context, session *core.Session, inbound proto.Inbound) *proto.Error {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var data proto.JoinData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleJoin(ctx, inbound.ID, data.Username)

	case proto.InboundTypeSend:
		var data proto.SendData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleSend(ctx, inbound.ID, core.SendRequest{
			Room:     data.Room,
			To:       data.To,
			Text:     data.Text,
			Type:     data.Type,
			Metadata: data.Metadata,
		})

	case proto.InboundTypeAck:
		var data proto.AckData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleAck(ctx, data.MessageID)

	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleTyping(data.Room)

	case proto.InboundTypeReaction:
		var data proto.ReactionData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleReact(ctx, data.MessageID, data.Emoji)

	case proto.InboundTypeJoinRoom:
		var data proto.RoomData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleJoinRoom(inbound.ID, data.Room)

	case proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleLeaveRoom(inbound.ID, data.Room)

	case proto.InboundTypeHistory:
		var data proto.HistoryData
		if err := unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		session.HandleHistory(ctx, inbound.ID, data.Room, data.Page, data.PageSize)

	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}

	return nil
}

func unmarshal(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed payload"}
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageNew:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageNew,
			Data:  messagePayload(event.Message),
		}
	case core.EventMessageRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageRead,
			Data: proto.ReadPayload{
				MessageID: event.MessageID,
				Username:  event.User,
			},
		}
	case core.EventReactionUpdate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReactionUpdate,
			Data: proto.ReactionPayload{
				MessageID: event.MessageID,
				Emoji:     event.Emoji,
				Users:     event.Reactors,
			},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTyping,
			Data: proto.TypingPayload{
				Room:     event.Room,
				Username: event.User,
			},
		}
	case core.EventNotification:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNotification,
			Data: proto.NotificationPayload{
				Type:     event.Notice,
				Room:     event.Room,
				Username: event.User,
			},
		}
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresenceUpdate,
			Data:  event.Names,
		}
	case core.EventJoinReply:
		return proto.Outbound{
			ID:   event.AckID,
			Type: proto.OutboundTypeReply,
			Data: proto.JoinReply{
				OK:     event.OK,
				Room:   event.Room,
				Recent: messagePayloads(event.Messages),
			},
		}
	case core.EventSendReply:
		return proto.Outbound{
			ID:   event.AckID,
			Type: proto.OutboundTypeReply,
			Data: proto.SendReply{
				Delivered: event.Delivered,
				MessageID: event.MessageID,
			},
		}
	case core.EventRoomReply:
		return proto.Outbound{
			ID:   event.AckID,
			Type: proto.OutboundTypeReply,
			Data: proto.RoomReply{
				OK:   event.OK,
				Room: event.Room,
			},
		}
	case core.EventHistoryReply:
		return proto.Outbound{
			ID:   event.AckID,
			Type: proto.OutboundTypeReply,
			Data: proto.HistoryReply{
				Messages: messagePayloads(event.Messages),
				Page:     event.Page,
				PageSize: event.PageSize,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			ID:    event.AckID,
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	readBy := msg.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return proto.MessagePayload{
		ID:        msg.ID,
		Room:      msg.Room,
		From:      msg.From,
		To:        msg.To,
		Text:      msg.Text,
		Type:      msg.Type,
		Metadata:  msg.Metadata,
		TS:        msg.CreatedAt.Unix(),
		Reactions: reactions,
		ReadBy:    readBy,
	}
}

func messagePayloads(msgs []*store.Message) []proto.MessagePayload {
	out := make([]proto.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messagePayload(msg))
	}
	return out
}
