package session

import (
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
)

// Delivery selects who receives a Response.
type Delivery int

const (
	// DeliveryReturnToSender sends only to the originating connection.
	DeliveryReturnToSender Delivery = iota
	// DeliveryBroadcast sends to every registered connection except the originating one.
	DeliveryBroadcast
)

func (d Delivery) String() string {
	switch d {
	case DeliveryReturnToSender:
		return "return_to_sender"
	case DeliveryBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Response is the outcome of one task: messages to send and who gets them.
type Response struct {
	Messages []*messages.Message
	Delivery Delivery
}

func returnToSender(msgs ...*messages.Message) *Response {
	return &Response{Messages: msgs, Delivery: DeliveryReturnToSender}
}

func broadcast(msgs ...*messages.Message) *Response {
	return &Response{Messages: msgs, Delivery: DeliveryBroadcast}
}

// recipients resolves a delivery to a set of connections. Broadcast visits each
// connection once no matter how many identities it holds. A nil sender receives
// nothing and excludes nobody.
func (sm *SessionManager) recipients(sender network.Conn, delivery Delivery) []network.Conn {
	switch delivery {
	case DeliveryReturnToSender:
		if sender == nil {
			return nil
		}
		return []network.Conn{sender}
	case DeliveryBroadcast:
		seen := make(map[string]bool)
		if sender != nil {
			seen[sender.ID()] = true
		}
		var conns []network.Conn
		sm.registry.ForEach(func(info network.ConnectionInfo) {
			if seen[info.Conn.ID()] {
				return
			}
			seen[info.Conn.ID()] = true
			conns = append(conns, info.Conn)
		})
		return conns
	default:
		return nil
	}
}

// deliver encodes each message once and hands it to every recipient.
// Sends are fire-and-forget; a failed send is logged and does not stop delivery.
func (sm *SessionManager) deliver(sender network.Conn, resp *Response) {
	if resp == nil || len(resp.Messages) == 0 {
		return
	}
	conns := sm.recipients(sender, resp.Delivery)
	if len(conns) == 0 {
		return
	}

	for _, msg := range resp.Messages {
		b, err := messages.SerializeMessage(msg)
		if err != nil {
			log.Error("Failed to serialize %s: %v", msg.Type, err)
			continue
		}
		sent := 0
		for _, conn := range conns {
			if err := conn.Send(b); err != nil {
				log.Warn("Failed to send %s to connection %s: %v", msg.Type, conn.ID(), err)
				sm.metrics.SendError()
				continue
			}
			sent++
		}
		sm.metrics.MessageSent(msg.Type.String(), resp.Delivery.String(), sent)
	}
}
