package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventChallengeScheduled EventType = "challenge.scheduled"
	EventChallengeActivated EventType = "challenge.activated"
	EventChallengeSucceeded EventType = "challenge.succeeded"
	EventChallengeFailed    EventType = "challenge.failed"
	EventChallengeSettled   EventType = "challenge.settled"
	EventPaymentSucceeded   EventType = "payment.succeeded"
	EventPaymentFailed      EventType = "payment.failed"
	EventPaymentExhausted   EventType = "payment.exhausted"
)

// Event represents a lifecycle event
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	ChallengeID string            `json:"challenge_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish sends an event to all subscribers. Publishing never blocks:
// if the broker's buffer is full the event is dropped.
func (b *Broker) Publish(event *Event) {
	select {
	case b.eventCh <- event:
	default:
	}
}

// run distributes events to subscribers
func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.mu.RLock()
			for sub := range b.subscribers {
				// Drop the event for slow subscribers rather than
				// blocking the distribution loop.
				select {
				case sub <- event:
				default:
				}
			}
			b.mu.RUnlock()
		case <-b.stopCh:
			return
		}
	}
}
