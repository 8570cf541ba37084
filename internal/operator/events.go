package operator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mthaddon/k8s-ingress-operator/internal/metrics"
	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
)

// EventType identifies the external notification that triggered a handler.
type EventType string

// The three notifications the operator reacts to.
const (
	EventConfigChanged   EventType = "config-changed"
	EventRelationChanged EventType = "relation-changed"
	EventUpgrade         EventType = "upgrade"
)

// Event is one notification delivered to the operator.
type Event struct {
	// ID correlates log lines for one event. Assigned on enqueue when empty.
	ID string

	Type EventType

	// Payloads carries relation data for relation-changed events, one entry
	// per related peer.
	Payloads []relation.Payload
}

// Handler receives dispatched events. *Operator is the production handler.
type Handler interface {
	HandleConfigChanged(ctx context.Context) error
	HandleRelationChanged(ctx context.Context, payloads []relation.Payload) error
	HandleUpgrade(ctx context.Context) error
}

// Dispatcher runs event handlers strictly one at a time, in arrival order.
// Each handler runs to completion, blocking cluster calls included, before
// the next event is taken. Handler errors are logged and counted; the loop
// keeps going. Retry policy belongs to whoever emits the events.
type Dispatcher struct {
	handler Handler
	metrics metrics.Collector
	events  chan Event
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given queue capacity.
func NewDispatcher(handler Handler, collector metrics.Collector, buffer int) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		metrics: collector,
		events:  make(chan Event, buffer),
		logger:  slog.Default().With("component", "dispatcher"),
	}
}

// Enqueue submits an event for serial processing. It blocks when the queue
// is full, unless ctx ends first.
func (d *Dispatcher) Enqueue(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	select {
	case d.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event Event) {
	logger := d.logger.With("event", string(event.Type), "event_id", event.ID)
	logger.Debug("handling event")

	if d.metrics != nil {
		d.metrics.RecordEvent(ctx, string(event.Type))
	}

	var err error

	switch event.Type {
	case EventConfigChanged:
		err = d.handler.HandleConfigChanged(ctx)
	case EventRelationChanged:
		err = d.handler.HandleRelationChanged(ctx, event.Payloads)
	case EventUpgrade:
		err = d.handler.HandleUpgrade(ctx)
	default:
		logger.Warn("ignoring unknown event type")

		return
	}

	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordHandlerError(ctx, string(event.Type))
		}

		logger.Error("event handler failed", "error", err)
	}
}
