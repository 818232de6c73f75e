package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/tabletop/pkg/events"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/metrics"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/persistence"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/state"
	"github.com/cbodonnell/tabletop/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrSessionStopped is returned by requests the loop will never answer because it has returned.
var ErrSessionStopped = errors.New("session stopped")

const (
	tracerName = "github.com/cbodonnell/tabletop/pkg/session"
	// DefaultShutdownTimeout bounds the final autosave
	DefaultShutdownTimeout = 10 * time.Second
)

// SessionManager owns the shared state and runs the event loop.
// Every event is handled to completion before the next is taken from the queue.
type SessionManager struct {
	eventQueue      queue.Queue[events.Event]
	registry        *network.ConnectionRegistry
	store           *state.Store
	gateway         *persistence.Gateway
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration
	tracer          trace.Tracer

	connections atomic.Int64
	stopped     chan struct{}
}

// NewSessionManagerOptions contains options for creating a new SessionManager.
type NewSessionManagerOptions struct {
	EventQueue      queue.Queue[events.Event]
	Registry        *network.ConnectionRegistry
	Store           *state.Store
	Gateway         *persistence.Gateway
	Metrics         *metrics.Metrics
	ShutdownTimeout time.Duration
}

func NewSessionManager(opts NewSessionManagerOptions) *SessionManager {
	sm := &SessionManager{
		eventQueue:      opts.EventQueue,
		registry:        opts.Registry,
		store:           opts.Store,
		gateway:         opts.Gateway,
		metrics:         opts.Metrics,
		shutdownTimeout: opts.ShutdownTimeout,
		tracer:          otel.Tracer(tracerName),
		stopped:         make(chan struct{}),
	}
	if sm.registry == nil {
		sm.registry = network.NewConnectionRegistry()
	}
	if sm.store == nil {
		sm.store = state.NewStore()
	}
	if sm.shutdownTimeout <= 0 {
		sm.shutdownTimeout = DefaultShutdownTimeout
	}
	return sm
}

// Start loads the persisted state and runs the event loop until ctx is done,
// then writes a final autosave.
func (sm *SessionManager) Start(ctx context.Context) error {
	defer close(sm.stopped)
	sm.load(ctx)
	log.Info("Session loop started")

	for {
		select {
		case <-ctx.Done():
			sm.shutdown(ctx)
			return nil
		case event := <-sm.eventQueue.Chan():
			sm.handleEvent(ctx, event)
		}
	}
}

func (sm *SessionManager) load(ctx context.Context) {
	board, data, err := sm.gateway.Load(ctx)
	if err != nil {
		log.Error("Failed to load state, starting empty where missing: %v", err)
	}
	sm.store.LoadBoard(board)
	sm.store.OverwriteData(data)

	stats := sm.store.Stats()
	log.Info("Loaded %d pieces, %d backpack pieces, %d characters, %d items, %d abilities",
		stats.Pieces, stats.Backpack, stats.Characters, stats.Items, stats.Abilities)
	sm.updateGauges()
}

func (sm *SessionManager) shutdown(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sm.shutdownTimeout)
	defer cancel()

	saved, err := sm.gateway.Autosave(saveCtx, sm.store)
	if err != nil {
		log.Error("Failed final autosave: %v", err)
		sm.metrics.Autosave(metrics.AutosaveFailed)
		return
	}
	if saved {
		sm.metrics.Autosave(metrics.AutosaveSaved)
		log.Info("Saved board on shutdown")
	}
	log.Info("Session loop stopped")
}

func (sm *SessionManager) handleEvent(ctx context.Context, event events.Event) {
	start := time.Now()
	name := events.Name(event)
	defer func() {
		sm.metrics.ObserveEvent(name, time.Since(start).Seconds())
		sm.updateGauges()
	}()

	switch e := event.(type) {
	case events.ConnectedEvent:
		sm.connections.Add(1)
		log.Debug("Connection %s from %s opened", e.Conn.ID(), e.Conn.RemoteAddr())
	case events.MessageEvent:
		sm.handleMessage(ctx, e.Conn, e.Message)
	case events.DisconnectedEvent:
		sm.connections.Add(-1)
		log.Debug("Connection %s closed", e.Conn.ID())
		sm.handleDisconnect(ctx, e.Conn)
	case events.AutosaveEvent:
		sm.autosave(ctx)
		close(e.Done)
	case events.SaveEvent:
		e.Done <- sm.save(ctx)
	case events.ReloadEvent:
		e.Done <- sm.reload(ctx)
	default:
		log.Warn("Unknown event %T", event)
	}
}

func (sm *SessionManager) autosave(ctx context.Context) {
	ctx, span := sm.tracer.Start(ctx, "session.autosave")
	defer span.End()

	saved, err := sm.gateway.Autosave(ctx, sm.store)
	switch {
	case err != nil:
		log.Error("Failed to autosave: %v", err)
		sm.metrics.Autosave(metrics.AutosaveFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case saved:
		sm.metrics.Autosave(metrics.AutosaveSaved)
	default:
		log.Trace("Board clean, skipping autosave")
		sm.metrics.Autosave(metrics.AutosaveSkipped)
	}
}

func (sm *SessionManager) save(ctx context.Context) error {
	if err := sm.gateway.SaveBoard(ctx, sm.store, models.TagManual); err != nil {
		log.Error("Failed to save board: %v", err)
		return err
	}
	log.Info("Board saved on request")
	return nil
}

// reload replaces the character data with a fresh pull from the backing store
// and sends it to every registered connection. The board is left as is.
func (sm *SessionManager) reload(ctx context.Context) error {
	data, err := sm.gateway.LoadCatalog(ctx)
	if err != nil {
		log.Error("Failed to reload character data: %v", err)
		return err
	}
	sm.store.OverwriteData(data)

	msg, err := messages.New(messages.MessageTypeOverwriteAllData, messages.OverwriteAllData{Data: sm.store.DataSnapshot()})
	if err != nil {
		return err
	}
	sm.deliver(nil, broadcast(msg))
	log.Info("Reloaded %d characters", len(data.Characters))
	return nil
}

func (sm *SessionManager) updateGauges() {
	sm.metrics.SetConnectedClients(int(sm.connections.Load()))
	sm.metrics.SetRegisteredUsers(sm.registry.Count())
	sm.metrics.SetBoardPieces(sm.store.Stats().Pieces)
	sm.metrics.SetEventQueueDepth(sm.eventQueue.Size())
}

// Transport callbacks. They only enqueue; all state changes happen on the loop.

func (sm *SessionManager) HandleConnect(ctx context.Context, conn network.Conn) {
	sm.enqueue(ctx, events.ConnectedEvent{Conn: conn})
}

func (sm *SessionManager) HandleMessage(ctx context.Context, conn network.Conn, msg *messages.Message) {
	sm.enqueue(ctx, events.MessageEvent{Conn: conn, Message: msg})
}

func (sm *SessionManager) HandleDisconnect(ctx context.Context, conn network.Conn) {
	sm.enqueue(ctx, events.DisconnectedEvent{Conn: conn})
}

// HandleDecodeError counts a dropped frame and logs it with the identity the connection holds, if any.
// It runs on the transport goroutine; the registry is safe to read there.
func (sm *SessionManager) HandleDecodeError(conn network.Conn, err error) {
	sm.metrics.DecodeError()
	user, _ := sm.registry.FindIdentity(conn)
	log.WithFields(log.Fields{
		"conn":   conn.ID(),
		"remote": conn.RemoteAddr(),
		"user":   string(user),
	}).Warn("Dropping undecodable frame: %v", err)
}

func (sm *SessionManager) enqueue(ctx context.Context, event events.Event) {
	if err := sm.eventQueue.Enqueue(ctx, event); err != nil {
		log.Warn("Failed to enqueue %s event: %v", events.Name(event), err)
	}
}

// Save asks the loop to write a snapshot now and waits for the result.
func (sm *SessionManager) Save(ctx context.Context) error {
	event := events.NewSaveEvent()
	return sm.request(ctx, event, event.Done)
}

// Reload asks the loop to re-read character data and waits for the result.
func (sm *SessionManager) Reload(ctx context.Context) error {
	event := events.NewReloadEvent()
	return sm.request(ctx, event, event.Done)
}

func (sm *SessionManager) request(ctx context.Context, event events.Event, done <-chan error) error {
	if err := sm.eventQueue.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", events.Name(event), err)
	}
	select {
	case err := <-done:
		return err
	case <-sm.stopped:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a point-in-time view of the session. It is safe to call off the loop.
type Status struct {
	Users       []types.Identity `json:"users"`
	Connections int              `json:"connections"`
	QueueDepth  int              `json:"queueDepth"`
	Store       state.Stats      `json:"store"`
}

func (sm *SessionManager) Status() Status {
	return Status{
		Users:       sm.registry.Identities(),
		Connections: int(sm.connections.Load()),
		QueueDepth:  sm.eventQueue.Size(),
		Store:       sm.store.Stats(),
	}
}
