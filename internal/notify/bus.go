package notify

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an outbound notification.
type Topic string

const (
	TopicParticipantWaitingRoomUpdated Topic = "roster.participantWaitingRoomUpdated"
	TopicParticipantListUpdated        Topic = "roster.participantListUpdated"
	TopicObserverWaitingRoomUpdated    Topic = "roster.observerWaitingRoomUpdated"
	TopicBreakoutOneMinuteWarning      Topic = "breakout.oneMinuteWarning"
	// TopicBreakoutParticipantWarning is addressed to a single participant
	// currently inside the breakout room.
	TopicBreakoutParticipantWarning Topic = "breakout.oneMinuteWarningParticipant"
	TopicBreakoutCreated            Topic = "breakout.created"
	TopicBreakoutClosed             Topic = "breakout.closed"

	wildcard Topic = "*"
)

// Event is a notification about a live session.
type Event struct {
	Topic         Topic
	SessionID     string
	BreakoutIndex int
	Identity      string
	Payload       any
	At            time.Time
}

// Handler receives published events.
type Handler func(Event)

// Publisher is the narrow interface services depend on.
type Publisher interface {
	Publish(Event)
}

type subscription struct {
	id      string
	topic   Topic
	handler Handler
}

// Bus is a synchronous in-process pub-sub bus. Handlers run on the
// publisher's goroutine; a panicking handler is logged and skipped.
type Bus struct {
	logger *slog.Logger

	mu            sync.RWMutex
	subscriptions map[Topic][]subscription
	nextID        atomic.Uint64
}

// NewBus creates an empty bus. A nil logger discards handler panics.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		logger:        logger,
		subscriptions: make(map[Topic][]subscription),
	}
}

// Subscribe registers handler for topic and returns a subscription id.
func (b *Bus) Subscribe(topic Topic, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subscriptions[topic] = append(b.subscriptions[topic], subscription{
		id:      id,
		topic:   topic,
		handler: handler,
	})
	return id
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[topic] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish delivers event to topic subscribers first, then wildcard
// subscribers, each group in registration order.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	specific := append([]subscription(nil), b.subscriptions[event.Topic]...)
	all := append([]subscription(nil), b.subscriptions[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, event)
	}
	for _, sub := range all {
		b.safeCall(sub.handler, event)
	}
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked",
				"topic", string(event.Topic),
				"session_id", event.SessionID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(event)
}
