package engine

import (
	"time"

	"go.uber.org/zap"
)

// EventType identifies a bot event.
type EventType string

const (
	EventTradeExecuted    EventType = "trade-executed"
	EventLeg1Entered      EventType = "leg1-entered"
	EventCycleComplete    EventType = "cycle-complete"
	EventOrderbookUpdated EventType = "orderbook-updated"
)

// Event is a notification published by the engine.
type Event struct {
	Type    EventType
	At      time.Time
	Payload interface{}
}

// Publisher fans engine events out to one buffered channel. Publishing
// never blocks the engine: when the subscriber lags, events are dropped
// and counted.
type Publisher struct {
	ch     chan Event
	logger *zap.Logger
}

// NewPublisher creates an event publisher with the given buffer size.
func NewPublisher(buffer int, logger *zap.Logger) *Publisher {
	return &Publisher{
		ch:     make(chan Event, buffer),
		logger: logger,
	}
}

// Publish sends an event without blocking.
func (p *Publisher) Publish(eventType EventType, payload interface{}) {
	event := Event{
		Type:    eventType,
		At:      time.Now(),
		Payload: payload,
	}

	select {
	case p.ch <- event:
		EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
	default:
		EventsDroppedTotal.WithLabelValues(string(eventType)).Inc()
		p.logger.Debug("event-dropped", zap.String("type", string(eventType)))
	}
}

// Events returns the subscription channel.
func (p *Publisher) Events() <-chan Event {
	return p.ch
}
