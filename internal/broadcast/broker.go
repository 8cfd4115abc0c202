package broadcast

import (
	"encoding/json"
	"log"
	"sync"

	"plantops-cloud/internal/observability/metrics"
)

// Event names carried on the live channel.
const (
	EventRuntimeUpdate = "runtimeUpdate"
	EventStateUpdate   = "stateUpdate"
	EventCommandAck    = "commandAck"
)

// Broadcaster fans out live status events to subscribers of a scope.
// Delivery is best-effort and at-most-once; a publish never blocks.
type Broadcaster interface {
	Publish(scope, event string, payload any)
}

// Nop is a Broadcaster that discards everything. Used in tests and when
// no live channel is configured.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(string, string, any) {}

// DeviceScope returns the scope key for all subscribers of a device.
func DeviceScope(deviceID string) string {
	return deviceID
}

// UserScope returns the tenant-isolated scope key for one user of a device.
func UserScope(deviceID, userName string) string {
	return deviceID + "/" + userName
}

// Message is one rendered event held in a subscriber channel.
type Message struct {
	Event string
	Data  []byte
}

// SSEBroker fans out events to SSE subscribers grouped by scope key.
// Subscribers that connect after a publish get nothing from the broker;
// they read current state from the query endpoints instead.
type SSEBroker struct {
	mu     sync.Mutex
	scopes map[string]map[chan Message]struct{}
	logger *log.Logger
}

// NewSSEBroker constructs a broker.
func NewSSEBroker(logger *log.Logger) *SSEBroker {
	if logger == nil {
		logger = log.Default()
	}
	return &SSEBroker{
		scopes: make(map[string]map[chan Message]struct{}),
		logger: logger,
	}
}

// Publish implements Broadcaster. Slow subscribers lose the message
// rather than blocking the caller.
func (b *SSEBroker) Publish(scope, event string, payload any) {
	if b == nil || scope == "" || event == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Printf("broadcast: marshal error for %s: %v", event, err)
		return
	}

	// Sends stay under the mutex: Unsubscribe closes channels under the
	// same mutex, so a send can never hit a closed channel. The sends
	// are non-blocking, so the critical section stays short.
	msg := Message{Event: event, Data: data}
	b.mu.Lock()
	for ch := range b.scopes[scope] {
		select {
		case ch <- msg:
			metrics.IncBroadcastPublished()
		default:
			metrics.IncBroadcastDropped()
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a new subscriber channel under a scope.
func (b *SSEBroker) Subscribe(scope string) chan Message {
	if b == nil || scope == "" {
		return nil
	}
	ch := make(chan Message, 16)
	b.mu.Lock()
	if b.scopes[scope] == nil {
		b.scopes[scope] = make(map[chan Message]struct{})
	}
	b.scopes[scope][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it. Removal and
// close happen under the mutex shared with Publish.
func (b *SSEBroker) Unsubscribe(scope string, ch chan Message) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if subs, ok := b.scopes[scope]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.scopes, scope)
		}
	}
	b.mu.Unlock()
}

// SubscriberCount reports how many subscribers a scope currently has.
func (b *SSEBroker) SubscriberCount(scope string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scopes[scope])
}
