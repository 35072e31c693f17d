package mqtt

import (
	"context"
	"encoding/json"

	"github.com/evgrid/stationd/core/events"
	"github.com/evgrid/stationd/infra/logger"
	"github.com/evgrid/stationd/internal/eventbus"
)

// Notifier forwards engine events to the broker as JSON payloads.
type Notifier struct {
	pub Publisher
	bus eventbus.EventBus
	log logger.Logger
	qos byte
}

// NewNotifier creates a notifier publishing at the given QoS.
func NewNotifier(pub Publisher, bus eventbus.EventBus, qos byte) *Notifier {
	return &Notifier{
		pub: pub,
		bus: bus,
		log: logger.New("mqtt-notifier"),
		qos: qos,
	}
}

type envelope struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Run consumes bus events until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ch := n.bus.Subscribe()
	defer n.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			n.forward(ev)
		}
	}
}

func (n *Notifier) forward(ev eventbus.Event) {
	var topic, kind string
	switch e := ev.(type) {
	case events.TicketSubmitted:
		topic, kind = TicketTopic(e.Ticket.Number), "submitted"
	case events.TicketQueued:
		topic, kind = TicketTopic(e.Ticket.Number), "queued"
	case events.ChargeStarted:
		topic, kind = SessionTopic(e.Ticket.Number), "charge_started"
	case events.SessionFinalized:
		topic, kind = SessionTopic(e.Ticket.Number), "finalized"
	case events.TicketCancelled:
		topic, kind = TicketTopic(e.Ticket.Number), "cancelled"
	case events.PileFaulted:
		topic, kind = PileTopic(e.PileID), "fault"
	case events.PileRecovered:
		topic, kind = PileTopic(e.PileID), "recovered"
	default:
		return
	}
	payload, err := json.Marshal(envelope{Kind: kind, Payload: ev})
	if err != nil {
		n.log.Errorf("marshal %s event: %v", kind, err)
		return
	}
	if err := n.pub.Publish(topic, payload, n.qos); err != nil {
		n.log.Errorf("publish %s to %s: %v", kind, topic, err)
	}
}
