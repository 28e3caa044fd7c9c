package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// TopicEvents carries publications from the REST side to the hub.
const TopicEvents = "relay.events"

// Bus decouples producers of room events from the hub. It runs on an
// in-process GoChannel pub/sub behind a watermill router.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	log    zerolog.Logger
}

// NewBus builds the pub/sub and its router. Consumers must be added before Run.
func NewBus(logger *zerolog.Logger) (*Bus, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "bus").Logger()
	}
	wl := NewWatermillLogger(&l)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, wl)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wl),
		router: router,
		log:    l,
	}, nil
}

// Publish encodes p and hands it to the consumers of TopicEvents.
func (b *Bus) Publish(ctx context.Context, p Publication) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("bus: marshal publication: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicEvents, msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", TopicEvents, err)
	}
	return nil
}

// Consume registers fn for every publication. Undecodable messages are acked
// and dropped so they are never redelivered.
func (b *Bus) Consume(name string, fn func(context.Context, Publication)) {
	b.router.AddConsumerHandler(name, TopicEvents, b.pubsub, func(msg *message.Message) error {
		var p Publication
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			b.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable publication")
			return nil
		}
		fn(msg.Context(), p)
		return nil
	})
}

// Run blocks until ctx is cancelled or the router fails.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every consumer is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

// ConsumeInto wires the bus to a hub.
func ConsumeInto(b *Bus, h *Hub) {
	b.Consume("hub", func(ctx context.Context, p Publication) {
		if err := h.Publish(ctx, p); err != nil {
			b.log.Warn().Err(err).Str("room", p.Room).Msg("hub rejected publication")
		}
	})
}
