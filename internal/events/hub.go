package events

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/models"
)

var ErrHubClosed = errors.New("hub is closed")

// Subscription is one connected listener. Events arrive on a buffered
// channel in broadcast order; Done signals the end of the subscription.
// The events channel itself is never closed so broadcast can race
// safely with removal.
type Subscription struct {
	id     string
	events chan models.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// close is idempotent; the hub calls it exactly once per removal but
// callers may race with explicit Unsubscribe.
func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Hub owns the set of connected listeners and fans change events out to
// all of them. The listener set is the only shared mutable state and is
// guarded by a mutex; broadcast iterates a snapshot so a slow listener
// never holds the lock.
type Hub struct {
	mu         sync.RWMutex
	listeners  map[string]*Subscription
	closed     bool
	sendBuffer int
	logger     *logrus.Logger
}

func NewHub(sendBuffer int, logger *logrus.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		listeners:  make(map[string]*Subscription),
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// Subscribe registers a new listener and returns its subscription.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan models.ChangeEvent, h.sendBuffer),
		done:   make(chan struct{}),
	}
	h.listeners[sub.id] = sub
	h.logger.WithField("listener_id", sub.id).Debug("Listener subscribed")
	return sub, nil
}

// Unsubscribe removes a listener. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, present := h.listeners[sub.id]
	delete(h.listeners, sub.id)
	h.mu.Unlock()

	sub.close()
	if present {
		h.logger.WithField("listener_id", sub.id).Debug("Listener unsubscribed")
	}
}

// Broadcast delivers the event to every connected listener. Delivery is
// per-listener FIFO but unordered across listeners; a listener whose
// buffer is full misses the event rather than blocking the others or
// the caller.
func (h *Hub) Broadcast(event models.ChangeEvent) {
	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.listeners))
	for _, sub := range h.listeners {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.events <- event:
		case <-sub.done:
		default:
			h.logger.WithFields(logrus.Fields{
				"listener_id": sub.id,
				"event_type":  event.Type,
			}).Warn("Listener buffer full, dropping event")
		}
	}
}

// Len returns the number of connected listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close shuts down the hub and ends every subscription. Idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.listeners))
	for _, sub := range h.listeners {
		subs = append(subs, sub)
	}
	h.listeners = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}
