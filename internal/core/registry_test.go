package core

import (
	"reflect"
	"testing"
)

func TestRegistryPresenceLifecycle(t *testing.T) {
	reg := NewRegistry("global")

	alice := NewClient("a")
	bob := NewClient("b")

	reg.Register(alice, Identity{DisplayName: "alice"})
	if got := reg.OnlineNames(); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("presence after alice joins = %v", got)
	}

	reg.Register(bob, Identity{DisplayName: "bob"})
	if got := reg.OnlineNames(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("presence after bob joins = %v", got)
	}

	removed, _ := reg.Unregister(bob)
	if removed == nil || removed.DisplayName != "bob" {
		t.Fatalf("expected bob's identity on last unregister, got %+v", removed)
	}
	if got := reg.OnlineNames(); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("presence after bob leaves = %v", got)
	}
}

func TestRegistryJoinRoomIdempotent(t *testing.T) {
	reg := NewRegistry("global")
	alice := NewClient("a")
	reg.Register(alice, Identity{DisplayName: "alice"})

	changed, rooms := reg.JoinRoom(alice, "dev")
	if !changed || rooms != 2 {
		t.Fatalf("first join: changed=%v rooms=%d", changed, rooms)
	}

	changed, rooms = reg.JoinRoom(alice, "dev")
	if changed || rooms != 2 {
		t.Fatalf("repeat join must be a no-op: changed=%v rooms=%d", changed, rooms)
	}

	if members := reg.RoomClients("dev", nil); len(members) != 1 {
		t.Fatalf("expected one member in dev, got %d", len(members))
	}
}

func TestRegistryLeaveRoomNoopWhenAbsent(t *testing.T) {
	reg := NewRegistry("global")
	alice := NewClient("a")
	reg.Register(alice, Identity{DisplayName: "alice"})

	changed, rooms := reg.LeaveRoom(alice, "ghost")
	if changed || rooms != 1 {
		t.Fatalf("leave of unjoined room: changed=%v rooms=%d", changed, rooms)
	}
}

func TestRegistryUnregisterReturnsJoinedRooms(t *testing.T) {
	reg := NewRegistry("global")
	alice := NewClient("a")
	reg.Register(alice, Identity{DisplayName: "alice"})
	reg.JoinRoom(alice, "dev")
	reg.JoinRoom(alice, "random")

	removed, rooms := reg.Unregister(alice)
	if removed == nil {
		t.Fatalf("expected identity on unregister")
	}
	if !reflect.DeepEqual(rooms, []string{"dev", "global", "random"}) {
		t.Fatalf("unexpected rooms on unregister: %v", rooms)
	}
	if members := reg.RoomClients("dev", nil); len(members) != 0 {
		t.Fatalf("dev still has members after unregister")
	}
}

func TestRegistryDuplicateSessionLastWriteWins(t *testing.T) {
	reg := NewRegistry("global")

	first := NewClient("c1")
	second := NewClient("c2")

	reg.Register(first, Identity{DisplayName: "carol"})
	reg.Register(second, Identity{DisplayName: "carol"})

	if got := reg.Resolve("carol"); got != second {
		t.Fatalf("expected most recent connection to win routing")
	}

	// Both connections stay registered; the older one keeps room traffic.
	if members := reg.RoomClients("global", nil); len(members) != 2 {
		t.Fatalf("expected both connections in default room, got %d", len(members))
	}

	// The first connection going away is not the identity's last.
	removed, _ := reg.Unregister(first)
	if removed != nil {
		t.Fatalf("first unregister must not report identity removal, got %+v", removed)
	}
	if got := reg.OnlineNames(); !reflect.DeepEqual(got, []string{"carol"}) {
		t.Fatalf("carol should remain online, presence = %v", got)
	}

	removed, _ = reg.Unregister(second)
	if removed == nil || removed.DisplayName != "carol" {
		t.Fatalf("second unregister should report carol, got %+v", removed)
	}
	if got := reg.OnlineNames(); len(got) != 0 {
		t.Fatalf("presence should be empty, got %v", got)
	}
}

func TestRegistryOnlineNamesRequiresMembership(t *testing.T) {
	reg := NewRegistry("global")
	alice := NewClient("a")
	reg.Register(alice, Identity{DisplayName: "alice"})

	reg.LeaveRoom(alice, "global")
	if got := reg.OnlineNames(); len(got) != 0 {
		t.Fatalf("roomless connection must not appear in presence, got %v", got)
	}

	reg.JoinRoom(alice, "dev")
	if got := reg.OnlineNames(); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("presence after rejoining a room = %v", got)
	}
}

func TestRegistryResolveOffline(t *testing.T) {
	reg := NewRegistry("global")
	if got := reg.Resolve("nobody"); got != nil {
		t.Fatalf("expected nil for offline identity, got %+v", got)
	}
}
