package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/catalog/internal/events"
	"github.com/estatehub/catalog/internal/models"
)

type fakeClock struct {
	calls chan time.Duration
	tick  chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		calls: make(chan time.Duration, 16),
		tick:  make(chan time.Time),
	}
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.calls <- d
	return c.tick
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func newHubServer(t *testing.T) (*events.Hub, *httptest.Server) {
	t.Helper()
	logger := testLogger()

	hub := events.NewHub(16, logger)
	ws := events.NewWSServer(hub, time.Second, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", ws.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func TestListener_InvalidatesCacheOnBroadcast(t *testing.T) {
	hub, srv := newHubServer(t)

	cache := newTestCache()
	cache.PutList("stale-page", &models.PageResult{})
	cache.PutProperty(&models.Property{ID: "p1", Slug: "stale-home"})

	received := make(chan models.ChangeEvent, 1)
	listener := NewListener(wsURL(srv, "/ws"), cache, time.Second, testLogger())
	listener.SetOnEvent(func(e models.ChangeEvent) { received <- e })
	listener.Start()
	defer listener.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 },
		2*time.Second, 10*time.Millisecond, "listener never connected")

	hub.Broadcast(models.ChangeEvent{
		Type:      models.EventPropertyUpdated,
		ID:        "p1",
		Timestamp: time.Now().UTC(),
	})

	select {
	case e := <-received:
		assert.Equal(t, models.EventPropertyUpdated, e.Type)
		assert.Equal(t, "p1", e.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the listener")
	}

	assert.Equal(t, 0, cache.ListKeys())
	_, ok := cache.GetByID("p1")
	assert.False(t, ok)
}

func TestListener_IgnoresMalformedAndUnknownPayloads(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("{not json at all"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"lease_signed","id":"other"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"property_updated","id":"p1"}`))

		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cache := newTestCache()
	cache.PutList("page", &models.PageResult{})

	received := make(chan models.ChangeEvent, 1)
	listener := NewListener(wsURL(srv, ""), cache, time.Second, testLogger())
	listener.SetOnEvent(func(e models.ChangeEvent) { received <- e })
	listener.Start()
	defer listener.Close()

	select {
	case e := <-received:
		assert.Equal(t, "p1", e.ID, "only the recognized event is applied")
	case <-time.After(2 * time.Second):
		t.Fatal("malformed frames must not take the connection down")
	}
	assert.Equal(t, 0, cache.ListKeys())
	assert.Equal(t, StateConnected, listener.State())
}

func TestListener_ReconnectsWithFixedBackoff(t *testing.T) {
	hub, srv := newHubServer(t)

	backoff := 3 * time.Second
	clock := newFakeClock()
	listener := NewListener(wsURL(srv, "/ws"), newTestCache(), backoff, testLogger())
	listener.SetClock(clock)
	listener.Start()
	defer listener.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Drop the connection from the server side
	hub.Close()
	srv.CloseClientConnections()
	srv.Close()

	select {
	case d := <-clock.calls:
		assert.Equal(t, backoff, d, "reconnect uses the fixed backoff")
	case <-time.After(2 * time.Second):
		t.Fatal("listener never scheduled a reconnect")
	}
	assert.Equal(t, StateReconnecting, listener.State())

	// Firing the timer triggers another attempt; the server is gone so
	// the listener schedules the next retry. Retries are unbounded.
	clock.tick <- time.Time{}
	select {
	case d := <-clock.calls:
		assert.Equal(t, backoff, d)
	case <-time.After(2 * time.Second):
		t.Fatal("listener gave up instead of retrying")
	}
}

func TestListener_CloseIsIdempotentAndCancelsReconnect(t *testing.T) {
	// Nothing is listening at this address, so the listener is stuck in
	// its retry loop from the start.
	clock := newFakeClock()
	listener := NewListener("ws://127.0.0.1:1/ws", newTestCache(), time.Second, testLogger())
	listener.SetClock(clock)
	listener.Start()

	select {
	case <-clock.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never attempted to connect")
	}

	require.NoError(t, listener.Close())
	require.NoError(t, listener.Close())
	assert.Equal(t, StateClosed, listener.State())
}
