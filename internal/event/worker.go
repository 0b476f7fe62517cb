package event

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Worker drains the bus and dispatches events to type subscribers. Events
// without a subscriber or left unprocessed are re-queued until they expire.
type Worker struct {
	mu            sync.Mutex
	subscriptions map[string][]func(event Queueable)
	started       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewWorker() *Worker {
	return &Worker{
		subscriptions: map[string][]func(event Queueable){},
	}
}

func (w *Worker) Subscribe(eventType string, fn func(event Queueable)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscriptions[eventType] = append(w.subscriptions[eventType], fn)
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true
	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	l := log.WithField("context", "event_worker")
	l.Trace("events runner go")

	profileTicker := time.NewTicker(5 * time.Minute)
	defer profileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("shutting down event worker by cancelled context")
			return
		case <-profileTicker.C:
			if qlen := Bus.Len(); qlen > 0 {
				l.Debugf("unprocessed queue length: %d", qlen)
			}
		default:
			time.Sleep(1 * time.Millisecond)
			event := Bus.DQ()
			if event == nil {
				continue
			}
			if event.Expired() {
				continue
			}

			w.mu.Lock()
			subscribers, ok := w.subscriptions[event.Type()]
			w.mu.Unlock()
			if !ok {
				Bus.NQ(event)
				continue
			}
			for _, sub := range subscribers {
				sub(event)
				if event.IsDropped() {
					break
				}
			}
			if event.IsDropped() {
				continue
			}
			if !event.IsProcessed() {
				Bus.NQ(event)
			}
		}
	}
}
