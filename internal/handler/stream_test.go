package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/events"
	"github.com/pkordes/parking-ledger/internal/handler"
)

func dialEvents(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	return websocket.DefaultDialer.Dial(url, header)
}

// waitForSubscribers polls until the hub has n subscribers, so a publish is
// not raced against the handler's Subscribe call.
func waitForSubscribers(t *testing.T, hub *events.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers() == n }, time.Second, 5*time.Millisecond)
}

func TestStreamEvents_DeliversTransitions(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	srv := httptest.NewServer(handler.NewServer(&mockStayServicer{}, handler.WithEventSource(hub)).Handler())
	defer srv.Close()

	conn, _, err := dialEvents(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	stay := closedStay("ABC1234", time.Hour, 1000)
	hub.Publish(domain.StayEvent{Kind: domain.EventVehicleExited, Stay: stay, OccurredAt: t0.Add(time.Hour)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got handler.StayEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "vehicle_exited", got.Kind)
	assert.Equal(t, stay.ID, got.Stay.ID)
	assert.Equal(t, "10.00", got.Stay.Fare.String)
}

func TestStreamEvents_UnsubscribesOnDisconnect(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	srv := httptest.NewServer(handler.NewServer(&mockStayServicer{}, handler.WithEventSource(hub)).Handler())
	defer srv.Close()

	conn, _, err := dialEvents(t, srv, nil)
	require.NoError(t, err)
	waitForSubscribers(t, hub, 1)

	require.NoError(t, conn.Close())

	waitForSubscribers(t, hub, 0)
}

func TestStreamEvents_RejectsUnknownOrigin(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	srv := httptest.NewServer(handler.NewServer(&mockStayServicer{},
		handler.WithEventSource(hub),
		handler.WithAllowedOrigins([]string{"https://desk.example.com"}),
	).Handler())
	defer srv.Close()

	_, resp, err := dialEvents(t, srv, http.Header{"Origin": {"https://evil.example.com"}})

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestStreamEvents_NotMountedWithoutSource(t *testing.T) {
	rec := do(newHTTPHandler(&mockStayServicer{}), http.MethodGet, "/events", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// bufferSpy is an EventSource that records the buffer each client asked for.
type bufferSpy struct {
	*events.Hub
	bufs chan int
}

func (s *bufferSpy) Subscribe(name string, buf int) (<-chan domain.StayEvent, func()) {
	s.bufs <- buf
	return s.Hub.Subscribe(name, buf)
}

func TestStreamEvents_UsesConfiguredBuffer(t *testing.T) {
	spy := &bufferSpy{Hub: events.NewHub(), bufs: make(chan int, 1)}
	defer spy.Close()
	srv := httptest.NewServer(handler.NewServer(&mockStayServicer{},
		handler.WithEventSource(spy),
		handler.WithStreamBuffer(7),
	).Handler())
	defer srv.Close()

	conn, _, err := dialEvents(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case buf := <-spy.bufs:
		assert.Equal(t, 7, buf)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}
}
