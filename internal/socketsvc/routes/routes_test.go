package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/namecard-services/internal/comm"
	"github.com/avvvet/namecard-services/internal/socketsvc/broker"
	"github.com/avvvet/namecard-services/internal/socketsvc/handlers"
	"github.com/avvvet/namecard-services/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	published chan comm.WSMessage
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	var m comm.WSMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.published <- m
	return nil
}

func (c *fakeConn) next(t *testing.T) comm.WSMessage {
	t.Helper()
	select {
	case m := <-c.published:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return comm.WSMessage{}
	}
}

func newServer(t *testing.T) (*httptest.Server, *fakeConn, string) {
	t.Helper()
	auth := InitAuth("test-secret")
	_, token, err := auth.Encode(map[string]interface{}{
		"user_id":     "u-42",
		"name":        "Alice",
		"permissions": []string{"namecards.player.set"},
	})
	require.NoError(t, err)

	conn := &fakeConn{published: make(chan comm.WSMessage, 16)}
	s := ws.NewWs()
	s.Broker = broker.NewBroker(conn, s.GetConnection)

	r := chi.NewRouter()
	SetRoutes(r, handlers.NewHandler(s, "8091"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, conn, token
}

func TestWebSocketLifecycle(t *testing.T) {
	srv, conn, token := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?jwt=" + token
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	joined := conn.next(t)
	assert.Equal(t, comm.TypeInit, joined.Type)
	require.NotEmpty(t, joined.SocketId)
	var user comm.UserData
	require.NoError(t, json.Unmarshal(joined.Data, &user))
	assert.Equal(t, comm.UserData{UserId: "u-42", Name: "Alice", Permissions: []string{"namecards.player.set"}}, user)

	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"type":     "get-owned-list",
		"data":     []string{"bob"},
		"socketid": "spoofed",
		"v":        1,
	}))
	fwd := conn.next(t)
	assert.Equal(t, "get-owned-list", fwd.Type)
	assert.Equal(t, joined.SocketId, fwd.SocketId)
	assert.Equal(t, 1, fwd.Version)

	// clients cannot forge session lifecycle packets
	require.NoError(t, client.WriteJSON(map[string]interface{}{"type": "init", "data": map[string]string{"name": "root"}}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{broken")))
	var errMsg map[string]interface{}
	require.NoError(t, client.ReadJSON(&errMsg))
	assert.Equal(t, "error", errMsg["type"])

	require.NoError(t, client.Close())
	leave := conn.next(t)
	assert.Equal(t, comm.TypeLeave, leave.Type)
	assert.Equal(t, joined.SocketId, leave.SocketId)
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _, _ := newServer(t)

	rsp, err := http.Get(srv.URL + "/v1/ws")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, rsp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	srv, _, _ := newServer(t)

	rsp, err := http.Get(srv.URL + "/v1/health")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
}
