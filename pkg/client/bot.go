package client

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/types"
)

// Sender sends one message to the server.
type Sender interface {
	Send(t messages.MessageType, payload interface{}) error
}

// Bot is a headless participant. It keeps a local view of the session
// and greets every user that joins after it.
type Bot struct {
	sender Sender
	name   types.Identity

	lock  sync.RWMutex
	users map[types.Identity]bool
	board map[types.PieceID]types.BoardPiece
}

func NewBot(sender Sender, name types.Identity) *Bot {
	return &Bot{
		sender: sender,
		name:   name,
		users:  make(map[types.Identity]bool),
		board:  make(map[types.PieceID]types.BoardPiece),
	}
}

// Register announces the bot to the server.
func (b *Bot) Register() error {
	return b.sender.Send(messages.MessageTypeRegisterUser, messages.RegisterUser{Name: b.name})
}

// Run handles messages from ch until it closes or ctx is done.
func (b *Bot) Run(ctx context.Context, ch <-chan *messages.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := b.Handle(msg); err != nil {
				log.Warn("Failed to handle %s: %v", msg.Type, err)
			}
		}
	}
}

func (b *Bot) Handle(msg *messages.Message) error {
	switch msg.Type {
	case messages.MessageTypeUserList:
		var p messages.UserList
		if err := msg.Decode(&p); err != nil {
			return err
		}
		b.lock.Lock()
		for _, user := range p.Users {
			b.users[user] = true
		}
		b.lock.Unlock()
	case messages.MessageTypeUserNotificationAdded:
		var p messages.UserNotification
		if err := msg.Decode(&p); err != nil {
			return err
		}
		b.lock.Lock()
		b.users[p.Name] = true
		b.lock.Unlock()
		return b.sender.Send(messages.MessageTypeLog, messages.Log{
			User:    b.name,
			Payload: messages.LogPayload{Kind: messages.LogKindChat, Text: fmt.Sprintf("Welcome, %s!", p.Name)},
		})
	case messages.MessageTypeUserNotificationRemoved:
		var p messages.UserNotification
		if err := msg.Decode(&p); err != nil {
			return err
		}
		b.lock.Lock()
		delete(b.users, p.Name)
		b.lock.Unlock()
	case messages.MessageTypeAddOrUpdatePiece:
		var p messages.AddOrUpdatePiece
		if err := msg.Decode(&p); err != nil {
			return err
		}
		b.lock.Lock()
		b.board[p.Piece.ID] = p.Piece
		b.lock.Unlock()
	case messages.MessageTypeDeletePiece:
		var p messages.DeletePiece
		if err := msg.Decode(&p); err != nil {
			return err
		}
		b.lock.Lock()
		delete(b.board, p.ID)
		b.lock.Unlock()
	case messages.MessageTypeLog:
		var p messages.Log
		if err := msg.Decode(&p); err != nil {
			return err
		}
		log.Info("[%s] %s: %s", p.Payload.Kind, p.User, p.Payload.Text)
	default:
		log.Trace("Ignoring %s", msg.Type)
	}
	return nil
}

// Users returns the other users the bot knows about, sorted.
func (b *Bot) Users() []types.Identity {
	b.lock.RLock()
	defer b.lock.RUnlock()
	users := make([]types.Identity, 0, len(b.users))
	for user := range b.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Piece returns the bot's copy of a board piece.
func (b *Bot) Piece(id types.PieceID) (types.BoardPiece, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	piece, ok := b.board[id]
	return piece, ok
}
