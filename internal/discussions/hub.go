package discussions

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer is the per-connection event buffer. A subscriber that
// falls this far behind misses events past the buffer and catches up via
// the pull path.
const subscriberBuffer = 64

// Event is one framed message pushed to stream subscribers.
type Event struct {
	Name string
	Data json.RawMessage
}

// Subscriber is a live stream handle registered under a scope. It is owned
// by the hub for its connection lifetime and never persisted.
type Subscriber struct {
	ID    string
	Scope string
	ch    chan Event
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// BrokerPublisher publishes a post payload to other instances (cross-instance fan-out).
type BrokerPublisher interface {
	PublishPost(scope string, payload []byte) error
}

// BrokerSubscriber subscribes to a scope's channel and invokes handler for incoming payloads.
type BrokerSubscriber interface {
	SubscribeScope(scope string, handler func(payload []byte)) (cancel func(), err error)
}

// Hub maintains scope -> set of live subscribers and fans out newly created
// posts. Delivery is at-most-live-connections: subscribers not connected at
// publish time catch up via the pull path. When a broker is configured,
// publishes go through it so every instance (this one included) broadcasts
// exactly once.
type Hub struct {
	scopes map[string]map[string]*Subscriber
	subs   map[string]func() // cancel broker subscription per scope
	mu     sync.RWMutex
	logger *zap.Logger
	pub    BrokerPublisher
	sub    BrokerSubscriber
}

// NewHub creates a post broadcast hub. Both broker arguments may be nil for
// single-instance operation.
func NewHub(logger *zap.Logger, pub BrokerPublisher, sub BrokerSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		scopes: make(map[string]map[string]*Subscriber),
		subs:   make(map[string]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Subscribe registers a new stream handle under scope. Starts the broker
// subscription for this scope when the first subscriber arrives. A handle
// registered at the same instant as a publish may miss that one event; the
// client always lists after subscribing.
func (h *Hub) Subscribe(scope string) *Subscriber {
	s := &Subscriber{
		ID:    uuid.New().String(),
		Scope: scope,
		ch:    make(chan Event, subscriberBuffer),
	}
	h.mu.Lock()
	if h.scopes[scope] == nil {
		h.scopes[scope] = make(map[string]*Subscriber)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeScope(scope, func(payload []byte) {
				h.broadcast(scope, Event{Name: "post", Data: json.RawMessage(payload)})
			})
			if err == nil {
				h.subs[scope] = cancel
			} else {
				h.logger.Warn("broker subscribe failed", zap.String("scope", scope), zap.Error(err))
			}
		}
	}
	h.scopes[scope][s.ID] = s
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", zap.String("subscriber_id", s.ID), zap.String("scope", scope))
	return s
}

// Unsubscribe removes a handle from its scope bucket. Cancels the broker
// subscription when the last subscriber leaves. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if set, ok := h.scopes[s.Scope]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.scopes, s.Scope)
			if cancel, ok := h.subs[s.Scope]; ok {
				cancel()
				delete(h.subs, s.Scope)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("subscriber left", zap.String("subscriber_id", s.ID), zap.String("scope", s.Scope))
}

// Publish fans a payload out to every live subscriber of scope. With a
// broker configured it publishes there only; the broker callback performs
// the local broadcast once for all instances, avoiding duplicate delivery.
func (h *Hub) Publish(scope string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishPost(scope, data); err == nil {
			return
		}
		// broker down: degrade to local-only delivery
		h.logger.Warn("broker publish failed, broadcasting locally", zap.String("scope", scope))
	}
	h.broadcast(scope, Event{Name: "post", Data: data})
}

// broadcast delivers to every subscriber of the scope. A full buffer is
// skipped, never evicted, so one slow subscriber misses an event without
// blocking delivery to the rest; connections are deregistered by the stream
// handler when the client actually disconnects.
func (h *Hub) broadcast(scope string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.scopes[scope] {
		select {
		case s.ch <- ev:
		default:
			// buffer full, skip
		}
	}
}

// SubscriberCount returns the number of live subscribers for a scope.
func (h *Hub) SubscriberCount(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}
