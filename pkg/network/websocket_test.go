package network

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandlers struct {
	lock         sync.Mutex
	connected    []Conn
	received     []*messages.Message
	disconnected chan Conn
	decodeErrors int
}

func newRecordingHandlers() *recordingHandlers {
	return &recordingHandlers{disconnected: make(chan Conn, 1)}
}

func (h *recordingHandlers) server() *WSServer {
	return NewWSServer(NewWSServerOptions{
		ConnectHandler: func(ctx context.Context, conn Conn) {
			h.lock.Lock()
			defer h.lock.Unlock()
			h.connected = append(h.connected, conn)
		},
		MessageHandler: func(ctx context.Context, conn Conn, message *messages.Message) {
			h.lock.Lock()
			h.received = append(h.received, message)
			h.lock.Unlock()

			// echo back to the sender
			b, err := messages.SerializeMessage(message)
			if err == nil {
				_ = conn.Send(b)
			}
		},
		DisconnectHandler: func(ctx context.Context, conn Conn) {
			h.disconnected <- conn
		},
		DecodeErrHandler: func(conn Conn, err error) {
			h.lock.Lock()
			defer h.lock.Unlock()
			h.decodeErrors++
		},
	})
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	return c
}

func TestWSServerRoundTrip(t *testing.T) {
	h := newRecordingHandlers()
	ts := httptest.NewServer(h.server())
	defer ts.Close()

	c := dial(t, ts.URL)

	// garbage is dropped and the connection stays open
	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte("not a message")))

	m, err := messages.New(messages.MessageTypeRegisterUser, messages.RegisterUser{Name: "Alice"})
	require.NoError(t, err)
	b, err := messages.SerializeMessage(m)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, b))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, reply, err := c.ReadMessage()
	require.NoError(t, err)
	echoed, err := messages.DeserializeMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, messages.MessageTypeRegisterUser, echoed.Type)

	h.lock.Lock()
	assert.Len(t, h.connected, 1)
	assert.Len(t, h.received, 1)
	assert.Equal(t, 1, h.decodeErrors)
	h.lock.Unlock()

	require.NoError(t, c.Close())

	select {
	case conn := <-h.disconnected:
		assert.Equal(t, h.connected[0].ID(), conn.ID())
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect handler was not called")
	}
}

func TestWSConnSendAfterClose(t *testing.T) {
	conn := newWSConn(nil, "test", 1, time.Second)
	require.NoError(t, conn.Send([]byte{1}))
	assert.ErrorIs(t, conn.Send([]byte{2}), ErrSendBufferFull)

	conn.close()
	assert.ErrorIs(t, conn.Send([]byte{3}), ErrConnectionClosed)
}
