package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.dev/server/session"
)

// connectedPair spins up a real websocket handshake over an httptest
// server and returns the server-side and client-side sockets.
func connectedPair(t *testing.T) (*Socket, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverConnCh
	return NewSocket(1, serverConn), clientConn
}

func TestDispatchRejectsAccessRestrictedEvent(t *testing.T) {
	s, client := connectedPair(t)
	sessions := session.New()
	r := NewRouter(sessions, nil)

	called := false
	r.Handle("move", OnlyLogged, func(hc *HandlerContext) error {
		called = true
		return nil
	})

	require.NoError(t, client.WriteJSON(Frame{Event: "move", Data: map[string]any{}}))
	require.NoError(t, r.Dispatch(context.Background(), s))
	assert.False(t, called, "OnlyLogged handler must not run for a guest socket")

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, body, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(body), "PLEASE_LOGIN_USER")
}

func TestDispatchRunsHandlerWhenAccessGranted(t *testing.T) {
	s, client := connectedPair(t)
	sessions := session.New()
	sessions.LoginUser(s, 42)
	r := NewRouter(sessions, nil)

	var gotUserKey int64
	r.Handle("move", OnlyLogged, func(hc *HandlerContext) error {
		gotUserKey = hc.UserKey
		return hc.Socket.Send("move", map[string]any{"ok": true})
	})

	require.NoError(t, client.WriteJSON(Frame{Event: "move", Data: map[string]any{}}))
	require.NoError(t, r.Dispatch(context.Background(), s))
	assert.Equal(t, int64(42), gotUserKey)

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, body, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"ok":true`)
}

func TestLimitRejectsSecondCallWithinPeriod(t *testing.T) {
	s, client := connectedPair(t)
	sessions := session.New()
	r := NewRouter(sessions, nil)

	calls := 0
	r.Handle("sign_up_account", ForAll, func(hc *HandlerContext) error {
		calls++
		return nil
	})
	r.Limit("sign_up_account", 1000, 1)

	require.NoError(t, client.WriteJSON(Frame{Event: "sign_up_account", Data: map[string]any{}}))
	require.NoError(t, r.Dispatch(context.Background(), s))
	require.NoError(t, client.WriteJSON(Frame{Event: "sign_up_account", Data: map[string]any{}}))
	require.NoError(t, r.Dispatch(context.Background(), s))

	assert.Equal(t, 1, calls, "the second call within the period must be rejected before the handler runs")

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, body, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(body), "LIMIT_REACHED")
}

func TestNotConsumedRefundsReservation(t *testing.T) {
	s, client := connectedPair(t)
	sessions := session.New()
	r := NewRouter(sessions, nil)

	calls := 0
	r.Handle("ping", ForAll, func(hc *HandlerContext) error {
		calls++
		return ErrNotConsumed
	})
	r.Limit("ping", 1000, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.WriteJSON(Frame{Event: "ping", Data: map[string]any{}}))
		require.NoError(t, r.Dispatch(context.Background(), s))
	}

	assert.Equal(t, 3, calls, "a handler reporting ErrNotConsumed must never exhaust the quota")
}
