package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/models"
)

// ListenerState tracks the connection lifecycle:
// connecting -> connected -> {reconnecting -> connected}* -> closed.
type ListenerState int32

const (
	StateConnecting ListenerState = iota
	StateConnected
	StateReconnecting
	StateClosed
)

// Clock abstracts the reconnect timer so the retry policy can be
// driven deterministically in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Listener maintains a persistent connection to the change-event
// channel and feeds every recognized event into the cache invalidator.
// On unexpected close it retries forever with a fixed backoff; there is
// no replay, so an event missed while disconnected is only observed
// through the next explicit query (read-repair).
type Listener struct {
	url       string
	cache     *QueryCache
	backoff   time.Duration
	clock     Clock
	dialer    *websocket.Dialer
	logger    *logrus.Logger
	onEvent   func(models.ChangeEvent)
	mu        sync.Mutex
	state     ListenerState
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewListener(url string, cache *QueryCache, backoff time.Duration, logger *logrus.Logger) *Listener {
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	return &Listener{
		url:     url,
		cache:   cache,
		backoff: backoff,
		clock:   realClock{},
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		state:   StateConnecting,
		done:    make(chan struct{}),
	}
}

// SetClock replaces the reconnect timer source. Call before Start.
func (l *Listener) SetClock(clock Clock) {
	l.clock = clock
}

// SetOnEvent registers an optional hook invoked after each recognized
// event has been applied to the cache. Call before Start.
func (l *Listener) SetOnEvent(fn func(models.ChangeEvent)) {
	l.onEvent = fn
}

func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start runs the connect/read/reconnect loop in the background; it
// never blocks the caller's other work.
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Listener) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		default:
		}

		conn, _, err := l.dialer.Dial(l.url, nil)
		if err != nil {
			l.logger.WithError(err).Warn("Listener dial failed")
			l.setState(StateReconnecting)
			if !l.wait() {
				return
			}
			continue
		}

		l.mu.Lock()
		if l.state == StateClosed {
			l.mu.Unlock()
			conn.Close()
			return
		}
		l.conn = conn
		l.state = StateConnected
		l.mu.Unlock()
		l.logger.Info("Listener connected")

		l.readLoop(conn)

		l.mu.Lock()
		l.conn = nil
		closed := l.state == StateClosed
		l.mu.Unlock()
		if closed {
			return
		}

		l.setState(StateReconnecting)
		if !l.wait() {
			return
		}
	}
}

// readLoop consumes frames until the connection drops. Malformed
// payloads and unrecognized event types are logged and skipped; they
// never take the connection down.
func (l *Listener) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			l.logger.WithError(err).Debug("Listener connection closed")
			return
		}

		var event models.ChangeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			l.logger.WithError(err).Warn("Ignoring malformed change event")
			continue
		}

		switch event.Type {
		case models.EventPropertyCreated, models.EventPropertyUpdated, models.EventPropertyDeleted:
			l.cache.Invalidate(event)
			if l.onEvent != nil {
				l.onEvent(event)
			}
		default:
			l.logger.WithField("event_type", event.Type).Debug("Ignoring unrecognized event type")
		}
	}
}

// wait blocks for one backoff interval; false means the listener was
// closed while waiting.
func (l *Listener) wait() bool {
	select {
	case <-l.done:
		return false
	case <-l.clock.After(l.backoff):
		return true
	}
}

func (l *Listener) setState(state ListenerState) {
	l.mu.Lock()
	if l.state != StateClosed {
		l.state = state
	}
	l.mu.Unlock()
}

// Close ends the listener and cancels any pending reconnect. Idempotent.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = StateClosed
		conn := l.conn
		l.conn = nil
		l.mu.Unlock()

		close(l.done)
		if conn != nil {
			conn.Close()
		}
	})
	l.wg.Wait()
	return nil
}
