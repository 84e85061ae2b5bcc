// Package stream pushes records to live subscribers of a request.
package stream

import (
	"sync"
)

// Status is the terminal marker closing a subscription.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusStopped   Status = "Stopped"
	StatusFailed    Status = "Failed"
	// StatusLagged is sent to a subscriber that fell behind and was dropped.
	StatusLagged Status = "Lagged"
)

// DefaultSubscriberBuffer is the number of records queued for a subscriber before it is dropped.
const DefaultSubscriberBuffer = 256

// Message is either a record or, when Status is set, the last message of a subscription.
type Message struct {
	Record string
	Status Status
}

func (m Message) IsTerminal() bool {
	return m.Status != ""
}

// Subscription receives the records of one request. The channel is closed after the terminal message.
type Subscription struct {
	requestId string
	c         chan Message
	closed    bool
}

func (s *Subscription) RequestId() string {
	return s.requestId
}

func (s *Subscription) Messages() <-chan Message {
	return s.c
}

// Hub fans records out to the subscribers of each request. Publishing never blocks: a subscriber whose
// buffer is full is sent StatusLagged and dropped.
type Hub struct {
	mu          sync.Mutex
	bufferSize  int
	subscribers map[string]map[*Subscription]struct{}
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		bufferSize:  bufferSize,
		subscribers: map[string]map[*Subscription]struct{}{},
	}
}

// Subscribe attaches a new subscriber to requestId. Only records published afterwards are delivered.
func (h *Hub) Subscribe(requestId string) *Subscription {
	// One extra slot is kept free for the terminal message.
	sub := &Subscription{requestId: requestId, c: make(chan Message, h.bufferSize+1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[requestId]
	if !ok {
		subs = map[*Subscription]struct{}{}
		h.subscribers[requestId] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches sub and closes its channel without a terminal message.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(sub)
	h.closeLocked(sub, "")
}

// HasSubscribers reports whether anyone listens to requestId.
func (h *Hub) HasSubscribers(requestId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[requestId]) > 0
}

// Publish delivers record to every subscriber of requestId.
func (h *Hub) Publish(requestId string, record string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[requestId] {
		if len(sub.c) >= h.bufferSize {
			h.detach(sub)
			h.closeLocked(sub, StatusLagged)
			continue
		}
		sub.c <- Message{Record: record}
	}
}

// Finish sends status to every subscriber of requestId and closes them.
func (h *Hub) Finish(requestId string, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[requestId] {
		h.closeLocked(sub, status)
	}
	delete(h.subscribers, requestId)
}

// FinishSubscription closes a single subscription with status. Used when a subscriber attaches to a request
// that has already terminated. Has no effect on a subscription that is already closed.
func (h *Hub) FinishSubscription(sub *Subscription, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(sub)
	h.closeLocked(sub, status)
}

func (h *Hub) detach(sub *Subscription) {
	subs := h.subscribers[sub.requestId]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, sub.requestId)
	}
}

func (h *Hub) closeLocked(sub *Subscription, status Status) {
	if sub.closed {
		return
	}
	sub.closed = true
	if status != "" {
		sub.c <- Message{Status: status}
	}
	close(sub.c)
}
