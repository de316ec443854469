package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"feedline/internal/models"
	"feedline/internal/observability"
)

// FeedPublisher delivers feed events. With Redis it publishes once and lets
// every instance's subscriber fan out to its hub; without Redis it writes to
// the local hub directly.
type FeedPublisher struct {
	hub      *Hub
	notifier *Notifier
}

func NewFeedPublisher(hub *Hub, notifier *Notifier) *FeedPublisher {
	return &FeedPublisher{hub: hub, notifier: notifier}
}

// Publish serializes event and hands it to the bus. Errors mean the event was not sent.
func (p *FeedPublisher) Publish(ctx context.Context, event models.FeedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	if p.notifier.Enabled() {
		if err := p.notifier.PublishFeed(ctx, payload); err != nil {
			return fmt.Errorf("publish feed event: %w", err)
		}
	} else if p.hub != nil {
		p.hub.BroadcastAll(payload)
	}

	observability.FeedEventsPublished.WithLabelValues(event.Action).Inc()
	return nil
}
