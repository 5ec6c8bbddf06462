// Package bus implements the Update Bus (§4.7): topic-based pub/sub with
// at-most-once, in-order-per-topic delivery. Topics in this system are
// `ride:<id>` and `location:<driverId>`. This generalizes the teacher's
// dispatch.Hub — which was specifically a websocket-connection registry
// keyed by ride id — into a transport-agnostic handler registry; the
// websocket transport in internal/api is now just one subscriber among
// possibly many (e.g. the location pipeline's own fan-out, test harnesses).
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler receives a published payload. A handler that panics is recovered
// so it never prevents delivery to the remaining subscribers on the topic.
type Handler func(payload any)

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is an in-process topic pub/sub. Delivery to the subscribers of a
// given topic happens sequentially, in subscribe order, on the publishing
// goroutine, which gives the in-order-within-a-topic guarantee §4.7 and §5
// require; callers that need publish() to return quickly should make their
// handler hand off to its own goroutine.
type Bus struct {
	mu        sync.RWMutex
	topics    map[string][]subscriber
	nextID    uint64
}

func New() *Bus {
	return &Bus{topics: make(map[string][]subscriber)}
}

// Subscribe registers handler on topic and returns a disposer. Per §9's
// design note, the embedding transport MUST call the disposer on client
// disconnect or the bus leaks handlers.
func (b *Bus) Subscribe(topic string, handler Handler) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.topics[topic]
		for i, s := range subs {
			if s.id == id {
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Publish is fire-and-forget: it delivers payload to every subscriber
// currently registered on topic, in subscribe order. A handler panic is
// recovered and logged so it cannot terminate delivery to the remaining
// handlers, per §4.7.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s.handler, payload)
	}
}

func deliver(h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("update bus handler panicked")
		}
	}()
	h(payload)
}

// SubscriberCount reports the number of active subscribers on a topic,
// exposed for tests and metrics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// RideTopic returns the canonical topic name for a ride's updates.
func RideTopic(rideID string) string { return "ride:" + rideID }

// LocationTopic returns the canonical topic name for a driver's raw pings.
func LocationTopic(driverID string) string { return "location:" + driverID }
