package core

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkConversationTyping(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	join := func(c *Client) {
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandAuthenticate, UserID: c.UserID}
		c.Commands <- &Command{Kind: CommandJoinConversation, Scope: "bench"}
		<-c.Events // authenticated
		<-c.Events // joined_conversation
	}

	sender := NewClient("sender", "sender", "")
	join(sender)

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient("c"+strconv.Itoa(i), "u"+strconv.Itoa(i), "")
		join(c)
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
	go func() {
		for range sender.Events {
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandTyping, Scope: "bench", IsTyping: i%2 == 0}
		for ev := range target.Events {
			if ev.Room != "" {
				break
			}
		}
	}
}

func BenchmarkConversationTyping_10(b *testing.B)  { benchmarkConversationTyping(b, 10) }
func BenchmarkConversationTyping_100(b *testing.B) { benchmarkConversationTyping(b, 100) }
func BenchmarkConversationTyping_500(b *testing.B) { benchmarkConversationTyping(b, 500) }
