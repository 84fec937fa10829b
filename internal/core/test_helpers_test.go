package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatrelay/chatrelay-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got kind %v", ev.Kind)
	case <-time.After(wait):
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func newTestCoordinator(ms store.MessageStore) *Coordinator {
	logger := zerolog.Nop()
	return NewCoordinator(ms, Options{
		DefaultRoom:        "global",
		RecentHistoryLimit: 200,
		HistoryPageSize:    20,
	}, &logger)
}

// memStore is an in-memory store.MessageStore for handler tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[int64]*store.Message
	order  []int64
	fail   bool
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[int64]*store.Message)}
}

func (m *memStore) InsertMessage(_ context.Context, msg *store.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, fmt.Errorf("store down")
	}

	m.nextID++
	msg.ID = m.nextID
	if msg.Type == "" {
		msg.Type = "text"
	}
	msg.CreatedAt = time.Unix(1700000000+m.nextID, 0)
	if msg.Reactions == nil {
		msg.Reactions = map[string][]string{}
	}
	stored := *msg
	m.msgs[msg.ID] = &stored
	m.order = append(m.order, msg.ID)
	return msg.ID, nil
}

func (m *memStore) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("store down")
	}

	msg, ok := m.msgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memStore) AddReaction(_ context.Context, id int64, emoji, username string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("store down")
	}

	msg, ok := m.msgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	present := false
	for _, name := range msg.Reactions[emoji] {
		if name == username {
			present = true
			break
		}
	}
	if !present {
		msg.Reactions[emoji] = append(msg.Reactions[emoji], username)
	}
	out := append([]string(nil), msg.Reactions[emoji]...)
	sort.Strings(out)
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, id int64, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, fmt.Errorf("store down")
	}

	msg, ok := m.msgs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	for _, name := range msg.ReadBy {
		if name == username {
			return false, nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, username)
	return true, nil
}

func (m *memStore) ListMessages(_ context.Context, room string, offset, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("store down")
	}

	var inRoom []*store.Message
	for _, id := range m.order {
		if msg := m.msgs[id]; msg.Room == room {
			cp := *msg
			inRoom = append(inRoom, &cp)
		}
	}
	if offset >= len(inRoom) {
		return nil, nil
	}
	end := offset + limit
	if end > len(inRoom) {
		end = len(inRoom)
	}
	return inRoom[offset:end], nil
}

func (m *memStore) RecentMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	all, err := m.ListMessages(ctx, room, 0, len(m.order))
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) ListRooms(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]struct{}{}
	var rooms []string
	for _, msg := range m.msgs {
		if _, ok := seen[msg.Room]; !ok {
			seen[msg.Room] = struct{}{}
			rooms = append(rooms, msg.Room)
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}
