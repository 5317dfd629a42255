package ws

import (
	"log"

	"github.com/samber/lo"

	"messenger-service/internal/observability"
)

// Dispatcher fans one event out to the live connections of a recipient set.
//
// Delivery is best effort and fire-and-forget: offline recipients are
// skipped, stalled connections drop frames, and no failure is reported to
// the caller or rolled back into durable state. Events generated by one
// action are enqueued in order per recipient.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher constructs a Dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Deliver pushes the event to every resolved connection of every recipient.
func (d *Dispatcher) Deliver(event Event, recipients []string) {
	payload, err := event.Encode()
	if err != nil {
		log.Printf("ws: encode %s event: %v", event.Name, err)
		return
	}
	for _, userID := range lo.Uniq(recipients) {
		for _, client := range d.registry.Resolve(userID) {
			client.enqueue(payload)
		}
	}
	observability.IncWSEvent(event.Name)
}

// Broadcast pushes the event to every connection, regardless of user.
func (d *Dispatcher) Broadcast(event Event) {
	payload, err := event.Encode()
	if err != nil {
		log.Printf("ws: encode %s event: %v", event.Name, err)
		return
	}
	for _, client := range d.registry.all() {
		client.enqueue(payload)
	}
	observability.IncWSEvent(event.Name)
}
