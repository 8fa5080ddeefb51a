package discussions

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func receiveEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	// must not panic or block
	hub.Publish("global", map[string]string{"content": "hello"})
	if got := hub.SubscriberCount("global"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestPublishReachesAllScopeSubscribers(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a := hub.Subscribe("global")
	b := hub.Subscribe("global")
	other := hub.Subscribe("course-1")
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)
	defer hub.Unsubscribe(other)

	hub.Publish("global", map[string]string{"content": "hello"})

	for _, sub := range []*Subscriber{a, b} {
		ev := receiveEvent(t, sub)
		if ev.Name != "post" {
			t.Fatalf("expected event name post, got %q", ev.Name)
		}
		var payload map[string]string
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			t.Fatalf("unmarshal event data: %v", err)
		}
		if payload["content"] != "hello" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("course subscriber received out-of-scope event %v", ev)
	default:
	}
}

func TestFullBufferIsSkippedNotEvicted(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	stalled := hub.Subscribe("global")
	healthy := hub.Subscribe("global")
	defer hub.Unsubscribe(stalled)
	defer hub.Unsubscribe(healthy)

	// fill both buffers; stalled never reads
	for i := 0; i < subscriberBuffer; i++ {
		hub.Publish("global", map[string]int{"n": i})
	}
	for i := 0; i < subscriberBuffer; i++ {
		receiveEvent(t, healthy)
	}

	// stalled's buffer is full now; the publish is skipped for it but still
	// reaches the drained subscriber
	hub.Publish("global", map[string]string{"content": "after"})

	ev := receiveEvent(t, healthy)
	var payload map[string]string
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if payload["content"] != "after" {
		t.Fatalf("healthy subscriber got %v, want the post-overflow event", payload)
	}

	if got := hub.SubscriberCount("global"); got != 2 {
		t.Fatalf("expected both subscribers to stay registered, count %d", got)
	}
	if got := len(stalled.Events()); got != subscriberBuffer {
		t.Fatalf("expected stalled buffer to stay at %d, got %d", subscriberBuffer, got)
	}
}

func TestUnsubscribeRemovesHandle(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a := hub.Subscribe("global")
	b := hub.Subscribe("global")
	if got := hub.SubscriberCount("global"); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	hub.Unsubscribe(a)
	hub.Unsubscribe(a) // repeated unsubscribe is a no-op
	if got := hub.SubscriberCount("global"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	hub.Unsubscribe(b)
	if got := hub.SubscriberCount("global"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe("global")
			hub.Unsubscribe(sub)
		}()
		go func(i int) {
			defer wg.Done()
			hub.Publish("global", map[string]int{"n": i})
		}(i)
	}
	wg.Wait()
	if got := hub.SubscriberCount("global"); got != 0 {
		t.Fatalf("expected 0 subscribers after churn, got %d", got)
	}
}

type fakeBroker struct {
	mu        sync.Mutex
	published [][]byte
	handlers  map[string]func([]byte)
	failPub   bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]func([]byte))}
}

func (f *fakeBroker) PublishPost(scope string, payload []byte) error {
	f.mu.Lock()
	h, ok := f.handlers[scope]
	if f.failPub {
		f.mu.Unlock()
		return errBrokerDown
	}
	f.published = append(f.published, payload)
	f.mu.Unlock()
	// deliver synchronously like a loopback broker
	if ok {
		h(payload)
	}
	return nil
}

func (f *fakeBroker) SubscribeScope(scope string, handler func([]byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[scope] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, scope)
	}, nil
}

var errBrokerDown = &brokerErr{}

type brokerErr struct{}

func (*brokerErr) Error() string { return "broker down" }

func TestBrokerDeliversExactlyOnce(t *testing.T) {
	broker := newFakeBroker()
	hub := NewHub(nil, broker, broker)
	sub := hub.Subscribe("global")
	defer hub.Unsubscribe(sub)

	hub.Publish("global", map[string]string{"content": "via broker"})

	receiveEvent(t, sub)
	select {
	case ev := <-sub.Events():
		t.Fatalf("duplicate delivery: %v", ev)
	default:
	}
}

func TestBrokerFailureFallsBackToLocal(t *testing.T) {
	broker := newFakeBroker()
	hub := NewHub(nil, broker, broker)
	sub := hub.Subscribe("global")
	defer hub.Unsubscribe(sub)

	broker.failPub = true
	hub.Publish("global", map[string]string{"content": "local"})

	ev := receiveEvent(t, sub)
	var payload map[string]string
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["content"] != "local" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
