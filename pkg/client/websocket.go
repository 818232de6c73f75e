package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/gorilla/websocket"
)

// WSClient represents a WebSocket client.
type WSClient struct {
	serverAddr   string
	messageQueue queue.Queue[*messages.Message]
	conn         *websocket.Conn
	// gorilla connections allow one concurrent writer
	writeLock sync.Mutex
}

// NewWSClient creates a new WebSocket client. Decoded server messages are
// enqueued on messageQueue in arrival order.
func NewWSClient(serverAddr string, messageQueue queue.Queue[*messages.Message]) *WSClient {
	return &WSClient{
		serverAddr:   serverAddr,
		messageQueue: messageQueue,
	}
}

// Connect establishes a connection to the WebSocket server.
func (c *WSClient) Connect(ctx context.Context) error {
	log.Info("Connecting to WebSocket server at %s", c.serverAddr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	c.conn = conn
	return nil
}

// HandleMessages reads until the connection closes or ctx is done.
func (c *WSClient) HandleMessages(ctx context.Context) error {
	defer c.conn.Close()

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("Error reading WebSocket message from %s: %v", c.conn.RemoteAddr().String(), err)
			}
			log.Trace("Connection closed for %s", c.conn.RemoteAddr().String())
			return err
		}

		msg, err := messages.DeserializeMessage(b)
		if err != nil {
			log.Warn("Failed to deserialize message: %v", err)
			continue
		}
		log.Trace("Received message from WebSocket server of type %s", msg.Type)

		if err := c.messageQueue.Enqueue(ctx, msg); err != nil {
			return nil
		}
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.conn == nil {
		log.Warn("WebSocket connection is already closed")
		return nil
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// SendMessage sends a message to the WebSocket server.
func (c *WSClient) SendMessage(msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

// Send encodes payload as a message of type t and sends it.
func (c *WSClient) Send(t messages.MessageType, payload interface{}) error {
	msg, err := messages.New(t, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}
