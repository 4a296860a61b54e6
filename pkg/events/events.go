// Package events provides a channel-based broker for engine-wide
// lifecycle notifications (container transitions, security violations,
// snapshot activity). This is distinct from pkg/store's per-store
// Bus: store subscriptions deliver document contents to a callback on
// every mutation, while this broker delivers discrete occurrences to
// any number of channel readers, suited to a CLI watch command or an
// external audit sink.
package events

import (
	"sync"
	"time"
)

// Kind names the occurrence an Event reports.
type Kind string

const (
	KindContainerCreated  Kind = "container.created"
	KindContainerStarted  Kind = "container.started"
	KindContainerStopped  Kind = "container.stopped"
	KindContainerError    Kind = "container.error"
	KindContainerCleaned  Kind = "container.cleaned"
	KindSecurityViolation Kind = "security.violation"
	KindPolicyApplied     Kind = "policy.applied"
	KindSnapshotCreated   Kind = "snapshot.created"
	KindSnapshotRestored  Kind = "snapshot.restored"
)

// Event is one occurrence published through a Broker.
type Event struct {
	ID          string
	Kind        Kind
	ContainerID string
	Timestamp   time.Time
	Message     string
	Metadata    map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out published events to every active Subscriber,
// dropping events for any subscriber whose buffer is full rather than
// blocking the publisher.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution, stamping its timestamp if
// unset.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
