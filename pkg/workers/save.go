package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/events"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
)

// DefaultAutosaveInterval is used when no interval is configured
const DefaultAutosaveInterval = time.Minute

type AutosaveWorker struct {
	eventQueue queue.Queue[events.Event]
	interval   time.Duration
}

type NewAutosaveWorkerOptions struct {
	EventQueue queue.Queue[events.Event]
	Interval   time.Duration
}

// NewAutosaveWorker creates a new AutosaveWorker.
// The worker periodically asks the session loop to persist the board.
func NewAutosaveWorker(opts NewAutosaveWorkerOptions) *AutosaveWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &AutosaveWorker{
		eventQueue: opts.EventQueue,
		interval:   interval,
	}
}

// Start runs until ctx is done. The timer is re-armed only after the loop
// has finished the previous autosave, so saves never overlap.
func (w *AutosaveWorker) Start(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.requestAutosave(ctx)
			timer.Reset(w.interval)
		}
	}
}

func (w *AutosaveWorker) requestAutosave(ctx context.Context) {
	event := events.NewAutosaveEvent()
	if err := w.eventQueue.Enqueue(ctx, event); err != nil {
		log.Warn("Failed to enqueue autosave: %v", err)
		return
	}

	select {
	case <-event.Done:
	case <-ctx.Done():
	}
}
