package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const (
	// DefaultSendBufferSize is the number of outbound frames a connection may queue
	DefaultSendBufferSize = 256
	// DefaultWriteTimeout bounds a single frame write
	DefaultWriteTimeout = 10 * time.Second
	// DisconnectTimeout bounds delivery of the disconnect notification
	DisconnectTimeout = 5 * time.Second
)

type ConnectHandler func(ctx context.Context, conn Conn)

type MessageHandler func(ctx context.Context, conn Conn, message *messages.Message)

type DisconnectHandler func(ctx context.Context, conn Conn)

// DecodeErrorHandler is called when an inbound frame cannot be decoded. The frame is dropped.
type DecodeErrorHandler func(conn Conn, err error)

// WSServer accepts WebSocket connections and reports their lifecycle to the handlers.
// Frames from one connection are delivered to the MessageHandler in arrival order.
type WSServer struct {
	allowedOrigins    []string
	sendBufferSize    int
	writeTimeout      time.Duration
	connectHandler    ConnectHandler
	messageHandler    MessageHandler
	disconnectHandler DisconnectHandler
	decodeErrHandler  DecodeErrorHandler

	lock  sync.RWMutex
	conns map[string]*WSConn
}

type NewWSServerOptions struct {
	// AllowedOrigins are host patterns accepted in addition to same-origin requests.
	AllowedOrigins    []string
	SendBufferSize    int
	WriteTimeout      time.Duration
	ConnectHandler    ConnectHandler
	MessageHandler    MessageHandler
	DisconnectHandler DisconnectHandler
	DecodeErrHandler  DecodeErrorHandler
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	s := &WSServer{
		allowedOrigins:    opts.AllowedOrigins,
		sendBufferSize:    opts.SendBufferSize,
		writeTimeout:      opts.WriteTimeout,
		connectHandler:    opts.ConnectHandler,
		messageHandler:    opts.MessageHandler,
		disconnectHandler: opts.DisconnectHandler,
		decodeErrHandler:  opts.DecodeErrHandler,
		conns:             make(map[string]*WSConn),
	}
	if s.sendBufferSize <= 0 {
		s.sendBufferSize = DefaultSendBufferSize
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	c.SetReadLimit(messages.MessageBufferSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newWSConn(c, r.RemoteAddr, s.sendBufferSize, s.writeTimeout)
	log.Debug("New WebSocket connection %s from %s", conn.ID(), conn.RemoteAddr())

	s.lock.Lock()
	s.conns[conn.ID()] = conn
	s.lock.Unlock()

	go conn.writePump(ctx)

	if s.connectHandler != nil {
		s.connectHandler(ctx, conn)
	}

	s.readLoop(ctx, conn)

	conn.close()
	s.lock.Lock()
	delete(s.conns, conn.ID())
	s.lock.Unlock()

	// the request context may already be cancelled
	dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), DisconnectTimeout)
	defer dcancel()
	if s.disconnectHandler != nil {
		s.disconnectHandler(dctx, conn)
	}
	log.Debug("WebSocket connection %s closed", conn.ID())
}

func (s *WSServer) readLoop(ctx context.Context, conn *WSConn) {
	for {
		typ, b, err := conn.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Debug("Error reading WebSocket message from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			log.Warn("Dropping non-binary frame from %s", conn.RemoteAddr())
			continue
		}

		message, err := messages.DeserializeMessage(b)
		if err != nil {
			if s.decodeErrHandler != nil {
				s.decodeErrHandler(conn, err)
			} else {
				log.Warn("Dropping undecodable frame from %s: %v", conn.RemoteAddr(), err)
			}
			continue
		}

		if s.messageHandler != nil {
			s.messageHandler(ctx, conn, message)
		}
	}
}

// ConnectionCount returns the number of open connections.
func (s *WSServer) ConnectionCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.conns)
}

// CloseAll closes every open connection with a going-away status.
func (s *WSServer) CloseAll() {
	s.lock.RLock()
	conns := make([]*WSConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.lock.RUnlock()

	for _, conn := range conns {
		conn.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// WSConn is a server side WebSocket connection with a bounded outbound buffer.
type WSConn struct {
	id           string
	remoteAddr   string
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	closed       chan struct{}
	closeOnce    sync.Once
}

func newWSConn(c *websocket.Conn, remoteAddr string, bufferSize int, writeTimeout time.Duration) *WSConn {
	return &WSConn{
		id:           uuid.NewString(),
		remoteAddr:   remoteAddr,
		conn:         c,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (c *WSConn) ID() string {
	return c.id
}

func (c *WSConn) RemoteAddr() string {
	return c.remoteAddr
}

// Send queues an encoded frame for writing.
func (c *WSConn) Send(b []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *WSConn) writePump(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case b := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageBinary, b)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("Failed to write to WebSocket connection %s: %v", c.id, err)
				}
				c.close()
				c.conn.CloseNow()
				return
			}
		}
	}
}

func (c *WSConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
