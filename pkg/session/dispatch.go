package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnexpectedMessage is returned for message types clients may not send.
var ErrUnexpectedMessage = errors.New("unexpected message type")

// handleMessage routes one inbound message to its tasks and runs them.
func (sm *SessionManager) handleMessage(ctx context.Context, conn network.Conn, msg *messages.Message) {
	sm.metrics.MessageReceived(msg.Type.String())

	user, registered := sm.registry.FindIdentity(conn)
	logger := log.WithFields(log.Fields{
		"type": msg.Type.String(),
		"conn": conn.ID(),
		"user": string(user),
	})

	if !registered && msg.Type != messages.MessageTypeRegisterUser {
		logger.Warn("Dropping %s from unregistered connection", msg.Type)
		return
	}

	ctx, span := sm.tracer.Start(ctx, "session.message",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("tabletop.message.type", msg.Type.String()),
			attribute.String("tabletop.user", string(user)),
		),
	)
	defer span.End()

	tasks, err := sm.tasksFor(conn, msg)
	if err == nil {
		err = sm.run(ctx, conn, tasks)
	}
	if err != nil {
		logger.Error("Failed to handle %s: %v", msg.Type, err)
		sm.metrics.HandlerError(msg.Type.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// run executes tasks in order and delivers each response before the next task starts.
// The first error aborts the remaining tasks.
func (sm *SessionManager) run(ctx context.Context, sender network.Conn, tasks []task) error {
	for i, t := range tasks {
		resp, err := t(ctx)
		if err != nil {
			return fmt.Errorf("task %d of %d: %w", i+1, len(tasks), err)
		}
		sm.deliver(sender, resp)
	}
	return nil
}

// tasksFor decodes the payload and selects the handler for the message type.
func (sm *SessionManager) tasksFor(conn network.Conn, msg *messages.Message) ([]task, error) {
	switch msg.Type {
	case messages.MessageTypeRegisterUser:
		var p messages.RegisterUser
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return sm.registerUserTasks(conn, p.Name), nil

	case messages.MessageTypeUnregisterUser:
		var p messages.UnregisterUser
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return sm.explicitUnregisterTasks(conn, p.Name), nil

	case messages.MessageTypeRetrieveCharacterData:
		var p messages.RetrieveCharacterData
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.retrieveCharacterDataTask(p.User)}, nil

	case messages.MessageTypeAddOrUpdatePiece:
		var p messages.AddOrUpdatePiece
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return sm.addOrUpdatePieceTasks(msg, p.Piece), nil

	case messages.MessageTypeDeletePiece:
		var p messages.DeletePiece
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.deletePieceTask(msg, p.ID)}, nil

	case messages.MessageTypeStoreBackpackPiece:
		var p messages.StoreBackpackPiece
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.storeBackpackPieceTask(msg, p.Piece)}, nil

	case messages.MessageTypeRemoveBackpackPiece:
		var p messages.RemoveBackpackPiece
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.removeBackpackPieceTask(msg, p.Name)}, nil

	case messages.MessageTypeUpdateItemHandle:
		var p messages.UpdateItemHandle
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.updateItemHandleTask(msg, p)}, nil

	case messages.MessageTypeUpdateAbilityCount:
		var p messages.UpdateAbilityCount
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.updateAbilityCountTask(msg, p)}, nil

	case messages.MessageTypeUpdateCharacterStats:
		var p messages.UpdateCharacterStats
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.updateCharacterStatsTask(msg, p)}, nil

	case messages.MessageTypeUpdateSkills:
		var p messages.UpdateSkills
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.updateSkillsTask(msg, p)}, nil

	case messages.MessageTypeOverwriteAllData:
		var p messages.OverwriteAllData
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{sm.overwriteAllDataTask(p.Data)}, nil

	case messages.MessageTypeLog:
		var p messages.Log
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return []task{relay(msg)}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
	}
}

// handleDisconnect unregisters every identity the connection held.
func (sm *SessionManager) handleDisconnect(ctx context.Context, conn network.Conn) {
	for _, user := range sm.registry.FindIdentities(conn) {
		if err := sm.run(ctx, conn, sm.unregisterUserTasks(user)); err != nil {
			log.WithFields(log.Fields{"user": string(user), "conn": conn.ID()}).Error("Failed to unregister on disconnect: %v", err)
		}
	}
}

