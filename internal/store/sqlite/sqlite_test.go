package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chatrelay/chatrelay-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMessages(t *testing.T, s *SQLiteStore, room string, texts ...string) []int64 {
	t.Helper()

	ctx := context.Background()
	ids := make([]int64, 0, len(texts))
	for _, text := range texts {
		id, err := s.InsertMessage(ctx, &store.Message{Room: room, From: "alice", Text: text})
		if err != nil {
			t.Fatalf("failed to insert %q: %v", text, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestMessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{
		Room: "global",
		From: "alice",
		To:   "bob",
		Text: "hello",
		Type: "file",
		Metadata: map[string]any{
			"url": "/uploads/x.png",
		},
	}
	id, err := s.InsertMessage(ctx, msg)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id == 0 || msg.ID != id {
		t.Fatalf("expected assigned id, got %d / %d", id, msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatalf("expected timestamp to be read back")
	}

	got, err := s.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Room != "global" || got.From != "alice" || got.To != "bob" || got.Text != "hello" || got.Type != "file" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Metadata["url"] != "/uploads/x.png" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}

func TestInsertDefaultsTypeToText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertMessage(ctx, &store.Message{Room: "global", From: "alice", Text: "plain"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Type != "text" {
		t.Fatalf("expected type text, got %q", got.Type)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetMessage(context.Background(), 12345); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedMessages(t, s, "global", "m1", "m2", "m3", "m4", "m5")
	seedMessages(t, s, "other", "x1")

	page0, err := s.ListMessages(ctx, "global", 0, 2)
	if err != nil {
		t.Fatalf("page 0 failed: %v", err)
	}
	page1, err := s.ListMessages(ctx, "global", 2, 2)
	if err != nil {
		t.Fatalf("page 1 failed: %v", err)
	}

	var got []int64
	for _, m := range append(page0, page1...) {
		got = append(got, m.ID)
	}
	if !reflect.DeepEqual(got, ids[:4]) {
		t.Fatalf("pages must be oldest first with no gaps or overlaps: %v vs %v", got, ids[:4])
	}

	empty, err := s.ListMessages(ctx, "global", 10, 2)
	if err != nil {
		t.Fatalf("past-the-end page failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d messages", len(empty))
	}
}

func TestRecentMessagesReturnsNewestOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedMessages(t, s, "global", "m1", "m2", "m3", "m4", "m5")

	recent, err := s.RecentMessages(ctx, "global", 3)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}

	var got []int64
	for _, m := range recent {
		got = append(got, m.ID)
	}
	if !reflect.DeepEqual(got, ids[2:]) {
		t.Fatalf("expected newest three oldest first, got %v", got)
	}
}

func TestAddReactionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedMessages(t, s, "global", "react here")
	id := ids[0]

	set, err := s.AddReaction(ctx, id, "👍", "alice")
	if err != nil {
		t.Fatalf("first reaction failed: %v", err)
	}
	if !reflect.DeepEqual(set, []string{"alice"}) {
		t.Fatalf("first set = %v", set)
	}

	set, err = s.AddReaction(ctx, id, "👍", "bob")
	if err != nil {
		t.Fatalf("second reaction failed: %v", err)
	}
	if !reflect.DeepEqual(set, []string{"alice", "bob"}) {
		t.Fatalf("second set = %v", set)
	}

	// Repeating a reactor must not duplicate them.
	set, err = s.AddReaction(ctx, id, "👍", "alice")
	if err != nil {
		t.Fatalf("repeat reaction failed: %v", err)
	}
	if !reflect.DeepEqual(set, []string{"alice", "bob"}) {
		t.Fatalf("repeat changed the set: %v", set)
	}

	got, err := s.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(got.Reactions["👍"], []string{"alice", "bob"}) {
		t.Fatalf("loaded reactions = %v", got.Reactions)
	}

	if _, err := s.AddReaction(ctx, 999, "👍", "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown message, got %v", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedMessages(t, s, "global", "read me")
	id := ids[0]

	added, err := s.MarkRead(ctx, id, "bob")
	if err != nil {
		t.Fatalf("first mark failed: %v", err)
	}
	if !added {
		t.Fatalf("first mark should report newly added")
	}

	added, err = s.MarkRead(ctx, id, "bob")
	if err != nil {
		t.Fatalf("second mark failed: %v", err)
	}
	if added {
		t.Fatalf("second mark must be a no-op")
	}

	got, err := s.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(got.ReadBy, []string{"bob"}) {
		t.Fatalf("readBy = %v", got.ReadBy)
	}

	if _, err := s.MarkRead(ctx, 999, "bob"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown message, got %v", err)
	}
}

func TestListRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedMessages(t, s, "global", "a")
	seedMessages(t, s, "dev", "b")
	seedMessages(t, s, "dev", "c")

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms failed: %v", err)
	}
	if !reflect.DeepEqual(rooms, []string{"dev", "global"}) {
		t.Fatalf("rooms = %v", rooms)
	}
}
