package transport

import "sync"

// MessageCallback receives the raw (topic, payload) for every message
// delivered on a subscribed topic (spec.md §4.1).
type MessageCallback func(topic string, payload []byte)

// subscriptionTable is the sole source of truth for what should be
// subscribed (spec.md §3.1). It is owned by the transport and shared,
// under a short-lived lock, with the reconnect procedure's replay step.
type subscriptionTable struct {
	mu        sync.Mutex
	callbacks map[string][]MessageCallback
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{callbacks: make(map[string][]MessageCallback)}
}

// add appends callback to topic's list, returning true if topic is new to
// the table.
func (t *subscriptionTable) add(topic string, callback MessageCallback) (isNewTopic bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.callbacks[topic]
	t.callbacks[topic] = append(t.callbacks[topic], callback)
	return !exists
}

// remove deletes topic and all of its callbacks, returning true if it
// existed.
func (t *subscriptionTable) remove(topic string) (existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, existed = t.callbacks[topic]
	delete(t.callbacks, topic)
	return existed
}

// callbacksFor returns a snapshot slice of callbacks for topic. Safe to
// call from the on-message hot path; the snapshot avoids holding the lock
// while invoking user callbacks.
func (t *subscriptionTable) callbacksFor(topic string) []MessageCallback {
	t.mu.Lock()
	defer t.mu.Unlock()
	cbs := t.callbacks[topic]
	if len(cbs) == 0 {
		return nil
	}
	out := make([]MessageCallback, len(cbs))
	copy(out, cbs)
	return out
}

// topics returns a snapshot of every currently-subscribed topic, for
// replay after reconnect.
func (t *subscriptionTable) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.callbacks))
	for topic := range t.callbacks {
		out = append(out, topic)
	}
	return out
}
