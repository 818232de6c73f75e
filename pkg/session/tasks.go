package session

import (
	"context"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/types"
)

// task is one step of handling an event. A nil Response sends nothing.
type task func(ctx context.Context) (*Response, error)

// single wraps one message in a response.
func single(delivery Delivery, t messages.MessageType, payload interface{}) (*Response, error) {
	msg, err := messages.New(t, payload)
	if err != nil {
		return nil, err
	}
	return &Response{Messages: []*messages.Message{msg}, Delivery: delivery}, nil
}

// relay rebroadcasts the inbound message unchanged.
func relay(msg *messages.Message) task {
	return func(ctx context.Context) (*Response, error) {
		return broadcast(msg), nil
	}
}

// registerUserTasks admits a new identity and brings its connection up to date.
func (sm *SessionManager) registerUserTasks(conn network.Conn, name types.Identity) []task {
	return []task{
		func(ctx context.Context) (*Response, error) {
			return nil, sm.registry.Register(name, conn)
		},
		func(ctx context.Context) (*Response, error) {
			users := make([]types.Identity, 0, sm.registry.Count())
			for _, identity := range sm.registry.Identities() {
				if identity != name {
					users = append(users, identity)
				}
			}
			return single(DeliveryReturnToSender, messages.MessageTypeUserList, messages.UserList{Users: users})
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryReturnToSender, messages.MessageTypeItemList, messages.ItemList{Items: sm.store.Items()})
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryReturnToSender, messages.MessageTypeAbilityList, messages.AbilityList{Abilities: sm.store.Abilities()})
		},
		sm.characterDataTask,
		sm.boardSyncTask,
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryBroadcast, messages.MessageTypeUserNotificationAdded, messages.UserNotification{Name: name})
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryReturnToSender, messages.MessageTypeLog, joinedLog(name))
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryBroadcast, messages.MessageTypeLog, joinedLog(name))
		},
	}
}

func (sm *SessionManager) characterDataTask(ctx context.Context) (*Response, error) {
	names := sm.store.CharacterNames()
	resp := returnToSender()
	for _, user := range names {
		character, err := sm.store.Character(user)
		if err != nil {
			return nil, err
		}
		msg, err := messages.New(messages.MessageTypeCharacterData, messages.CharacterData{User: user, Character: character})
		if err != nil {
			return nil, err
		}
		resp.Messages = append(resp.Messages, msg)
	}
	return resp, nil
}

// boardSyncTask sends the whole board in draw order followed by the backpack.
func (sm *SessionManager) boardSyncTask(ctx context.Context) (*Response, error) {
	resp := returnToSender()
	for _, piece := range sm.store.Pieces() {
		msg, err := messages.New(messages.MessageTypeAddOrUpdatePiece, messages.AddOrUpdatePiece{Piece: piece})
		if err != nil {
			return nil, err
		}
		resp.Messages = append(resp.Messages, msg)
	}
	for _, piece := range sm.store.BackpackPieces() {
		msg, err := messages.New(messages.MessageTypeStoreBackpackPiece, messages.StoreBackpackPiece{Piece: piece})
		if err != nil {
			return nil, err
		}
		resp.Messages = append(resp.Messages, msg)
	}
	return resp, nil
}

// unregisterUserTasks removes an identity and tells everyone else.
func (sm *SessionManager) unregisterUserTasks(name types.Identity) []task {
	return []task{
		func(ctx context.Context) (*Response, error) {
			_, err := sm.registry.Unregister(name)
			return nil, err
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryBroadcast, messages.MessageTypeUserNotificationRemoved, messages.UserNotification{Name: name})
		},
		func(ctx context.Context) (*Response, error) {
			return single(DeliveryBroadcast, messages.MessageTypeLog, leftLog(name))
		},
	}
}

func (sm *SessionManager) explicitUnregisterTasks(conn network.Conn, name types.Identity) []task {
	held := func(ctx context.Context) (*Response, error) {
		if !sm.registry.Holds(conn, name) {
			return nil, fmt.Errorf("%w: %s is not held by connection %s", network.ErrIdentityNotFound, name, conn.ID())
		}
		return nil, nil
	}
	return append([]task{held}, sm.unregisterUserTasks(name)...)
}

func (sm *SessionManager) retrieveCharacterDataTask(user types.Identity) task {
	return func(ctx context.Context) (*Response, error) {
		character, err := sm.store.Character(user)
		if err != nil {
			return nil, err
		}
		return single(DeliveryReturnToSender, messages.MessageTypeCharacterData, messages.CharacterData{User: user, Character: character})
	}
}

// addOrUpdatePieceTasks upserts a piece. A piece sent without an id gets one
// assigned, and the sender is told which.
func (sm *SessionManager) addOrUpdatePieceTasks(msg *messages.Message, piece types.BoardPiece) []task {
	var stored types.BoardPiece
	return []task{
		func(ctx context.Context) (*Response, error) {
			stored = sm.store.AddOrUpdatePiece(piece)
			if stored.ID == piece.ID {
				return broadcast(msg), nil
			}
			return single(DeliveryBroadcast, messages.MessageTypeAddOrUpdatePiece, messages.AddOrUpdatePiece{Piece: stored})
		},
		func(ctx context.Context) (*Response, error) {
			if stored.ID == piece.ID {
				return nil, nil
			}
			return single(DeliveryReturnToSender, messages.MessageTypeAddOrUpdatePiece, messages.AddOrUpdatePiece{Piece: stored})
		},
	}
}

func (sm *SessionManager) deletePieceTask(msg *messages.Message, id types.PieceID) task {
	return func(ctx context.Context) (*Response, error) {
		sm.store.RemovePiece(id)
		return broadcast(msg), nil
	}
}

func (sm *SessionManager) storeBackpackPieceTask(msg *messages.Message, piece types.BackpackPiece) task {
	return func(ctx context.Context) (*Response, error) {
		sm.store.StoreBackpackPiece(piece)
		return broadcast(msg), nil
	}
}

func (sm *SessionManager) removeBackpackPieceTask(msg *messages.Message, name string) task {
	return func(ctx context.Context) (*Response, error) {
		sm.store.RemoveBackpackPiece(name)
		return broadcast(msg), nil
	}
}

// Data updates are validated, written through to the backing store and only
// then applied in memory, so a failed write leaves memory untouched.

func (sm *SessionManager) updateItemHandleTask(msg *messages.Message, p messages.UpdateItemHandle) task {
	return func(ctx context.Context) (*Response, error) {
		if err := sm.store.ValidateItemHandle(p.User, p.Handle); err != nil {
			return nil, err
		}
		if err := sm.gateway.SaveItemHandle(ctx, p.User, p.Handle); err != nil {
			return nil, err
		}
		if err := sm.store.UpdateItemHandle(p.User, p.Handle); err != nil {
			return nil, err
		}
		return broadcast(msg), nil
	}
}

func (sm *SessionManager) updateAbilityCountTask(msg *messages.Message, p messages.UpdateAbilityCount) task {
	return func(ctx context.Context) (*Response, error) {
		if err := sm.store.ValidateAbilityCount(p.User, p.AbilityID); err != nil {
			return nil, err
		}
		if err := sm.gateway.SaveAbilityCount(ctx, p.User, p.AbilityID, p.Count); err != nil {
			return nil, err
		}
		if err := sm.store.UpdateAbilityCount(p.User, p.AbilityID, p.Count); err != nil {
			return nil, err
		}
		return broadcast(msg), nil
	}
}

func (sm *SessionManager) updateCharacterStatsTask(msg *messages.Message, p messages.UpdateCharacterStats) task {
	return func(ctx context.Context) (*Response, error) {
		if err := sm.store.ValidateStats(p.User); err != nil {
			return nil, err
		}
		if err := sm.gateway.SaveCharacterStats(ctx, p.User, p.Stats); err != nil {
			return nil, err
		}
		if err := sm.store.UpdateStats(p.User, p.Stats); err != nil {
			return nil, err
		}
		return broadcast(msg), nil
	}
}

func (sm *SessionManager) updateSkillsTask(msg *messages.Message, p messages.UpdateSkills) task {
	return func(ctx context.Context) (*Response, error) {
		if err := sm.store.ValidateSkill(p.User, p.Skill); err != nil {
			return nil, err
		}
		character, err := sm.store.Character(p.User)
		if err != nil {
			return nil, err
		}
		skills := character.Info.Skills
		skills[p.Skill] = p.Proficient
		if err := sm.gateway.SaveCharacterSkills(ctx, p.User, skills); err != nil {
			return nil, err
		}
		if err := sm.store.UpdateSkill(p.User, p.Skill, p.Proficient); err != nil {
			return nil, err
		}
		return broadcast(msg), nil
	}
}

// overwriteAllDataTask installs the snapshot and relays what was kept, which
// can differ from the inbound payload when handles were dropped.
func (sm *SessionManager) overwriteAllDataTask(data types.DataSnapshot) task {
	return func(ctx context.Context) (*Response, error) {
		sm.store.OverwriteData(data)
		return single(DeliveryBroadcast, messages.MessageTypeOverwriteAllData, messages.OverwriteAllData{Data: sm.store.DataSnapshot()})
	}
}

func joinedLog(name types.Identity) messages.Log {
	return messages.Log{
		User:    name,
		Payload: messages.LogPayload{Kind: messages.LogKindJoined, Text: fmt.Sprintf("%s joined the session", name)},
	}
}

func leftLog(name types.Identity) messages.Log {
	return messages.Log{
		User:    name,
		Payload: messages.LogPayload{Kind: messages.LogKindLeft, Text: fmt.Sprintf("%s left the session", name)},
	}
}
