package core

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	logger := zerolog.Nop()
	reg := NewRegistry("bench")
	bc := NewBroadcaster(reg, &logger)

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := NewClient(fmt.Sprintf("c%d", i))
		reg.Register(c, Identity{DisplayName: fmt.Sprintf("user%d", i)})
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	ev := &Event{Kind: EventTyping, Room: "bench", User: "sender"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bc.ToRoom("bench", ev, nil)
		<-target.Events
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
