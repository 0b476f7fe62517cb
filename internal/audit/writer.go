package audit

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/event"
)

type actionStore interface {
	InsertAction(ctx context.Context, action *Action) error
}

// Writer drains moderation-action events off the bus into the audit store.
// It is the asynchronous RecordModerationAction sink: the pipeline never
// waits for audit persistence.
type Writer struct {
	store  actionStore
	worker *event.Worker

	mu         sync.Mutex
	started    bool
	runtimeCtx context.Context
	cancel     context.CancelFunc
}

func NewWriter(store actionStore, worker *event.Worker) *Writer {
	return &Writer{store: store, worker: worker}
}

func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	w.runtimeCtx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.worker.Subscribe(EventModerationAction, w.handle)
	return nil
}

func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	w.started = false
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// Record enqueues one action for persistence.
func (w *Writer) Record(action Action) {
	if action.ID == "" {
		action.ID = uuid.New()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	event.Bus.NQ(NewActionEvent(action))
}

func (w *Writer) handle(ev event.Queueable) {
	actionEvent, ok := ev.(*ActionEvent)
	if !ok {
		return
	}
	ctx := w.getRuntimeContext()
	select {
	case <-ctx.Done():
		ev.Drop()
		return
	default:
	}
	if err := w.store.InsertAction(ctx, &actionEvent.Action); err != nil {
		// Leave unprocessed; the bus re-queues until the event expires.
		w.getLogEntry().WithField("error", err.Error()).Error("cant persist moderation action")
		return
	}
	ev.Process()
}

func (w *Writer) getRuntimeContext() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runtimeCtx != nil {
		return w.runtimeCtx
	}
	return context.Background()
}

func (w *Writer) getLogEntry() *log.Entry {
	return log.WithField("object", "AuditWriter")
}
