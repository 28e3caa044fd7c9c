package notifications

import (
	"context"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/proto"
)

// OfferKinds are the offer lifecycle events, in display order.
var OfferKinds = []proto.Kind{
	proto.KindNewOffer,
	proto.KindOfferAccepted,
	proto.KindOfferRejected,
	proto.KindOfferCancelled,
	proto.KindOfferRevoked,
}

var offerTitles = map[proto.Kind]string{
	proto.KindNewOffer:       "New Price Offer",
	proto.KindOfferAccepted:  "Offer Accepted",
	proto.KindOfferRejected:  "Offer Rejected",
	proto.KindOfferCancelled: "Offer Cancelled",
	proto.KindOfferRevoked:   "Offer Revoked",
}

// Offers returns the events received for kind, oldest first.
func (p *Provider) Offers(kind proto.Kind) []proto.OfferEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]proto.OfferEvent(nil), p.offers[kind]...)
}

// ClearOfferEvent drops every event about offerID.
func (p *Provider) ClearOfferEvent(offerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for kind, events := range p.offers {
		kept := events[:0]
		for _, e := range events {
			if e.Offer.ID != offerID {
				kept = append(kept, e)
			}
		}
		p.offers[kind] = kept
	}
}

func (p *Provider) ClearAllOfferEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = make(map[proto.Kind][]proto.OfferEvent)
}

// JoinOffersRoom subscribes to offer events for the current user.
func (p *Provider) JoinOffersRoom(ctx context.Context) bool {
	return p.rooms.Join(ctx, offersScope)
}

func (p *Provider) LeaveOffersRoom(ctx context.Context) bool {
	return p.rooms.Leave(ctx, offersScope)
}

// OnOffer registers a listener for every offer event kind.
func (p *Provider) OnOffer(fn func(proto.Kind, *proto.OfferEvent)) func() {
	cancels := make([]func(), 0, len(OfferKinds))
	for _, kind := range OfferKinds {
		cancels = append(cancels, p.router.Registry().Subscribe(kind, func(ev proto.Event) {
			fn(ev.Kind, ev.Payload.(*proto.OfferEvent))
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (p *Provider) applyOffer(ev proto.Event) {
	o := ev.Payload.(*proto.OfferEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers[ev.Kind] = append(p.offers[ev.Kind], *o)
}

// offerAlert shows a desktop notification only. Offers never play a tone.
func offerAlert(ev proto.Event) *alert.Alert {
	o := ev.Payload.(*proto.OfferEvent)
	return &alert.Alert{
		Title:   offerTitles[ev.Kind],
		Body:    o.Message,
		Tag:     "offer:" + o.Offer.ID,
		Desktop: true,
	}
}
