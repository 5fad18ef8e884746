package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/queue"
	"github.com/noahxzhu/discord-scheduler/internal/sink"
	"github.com/robfig/cron/v3"
)

// Worker ticks one queue on a fixed period and hands every due delivery to
// the sink.
type Worker struct {
	queue   *queue.Queue
	sink    sink.Sink
	period  time.Duration
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex // serialises ticks
	onFire func(d model.Delivery, err error)
}

func NewWorker(q *queue.Queue, s sink.Sink, period, timeout time.Duration) *Worker {
	return &Worker{
		queue:   q,
		sink:    s,
		period:  period,
		timeout: timeout,
		now:     time.Now,
	}
}

// SetOnFire sets a callback invoked after each delivery attempt with its result.
func (w *Worker) SetOnFire(fn func(d model.Delivery, err error)) {
	w.onFire = fn
}

// Start runs one tick immediately and then one per period until ctx is
// cancelled. It returns after the last running tick has finished.
func (w *Worker) Start(ctx context.Context) error {
	if w.period <= 0 {
		return fmt.Errorf("tick period for %s must be positive, got %s", w.queue.Name(), w.period)
	}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.period), func() {
		w.RunOnce(ctx, w.now())
	}); err != nil {
		return fmt.Errorf("failed to schedule ticker for %s: %w", w.queue.Name(), err)
	}

	slog.Info("Worker started", "queue", w.queue.Name(), "period", w.period)
	w.RunOnce(ctx, w.now())
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Worker stopped", "queue", w.queue.Name())
	return nil
}

// RunOnce performs a single tick at now and returns the number of deliveries
// that reached their sink.
func (w *Worker) RunOnce(ctx context.Context, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	due, err := w.queue.Tick(now.UTC())
	if err != nil {
		// due entries are already out of the queue and still get sent
		slog.Error("Failed to save queue", "queue", w.queue.Name(), "error", err)
	}

	delivered := 0
	for _, d := range due {
		err := w.deliver(ctx, d)
		if err != nil {
			slog.Warn("Failed to deliver", "queue", w.queue.Name(), "id", d.ID,
				"destination", d.Destination.String(), "invalid_destination", errors.Is(err, sink.ErrInvalidDestination),
				"repeating", d.Repeating(), "error", err)
		} else {
			delivered++
			slog.Info("Delivered", "queue", w.queue.Name(), "id", d.ID,
				"destination", d.Destination.String(), "late", now.Sub(d.DueAt).Truncate(time.Second))
		}
		if w.onFire != nil {
			w.onFire(d, err)
		}
	}
	return delivered
}

// deliver is not cut short by shutdown: the entry has already left the queue.
func (w *Worker) deliver(ctx context.Context, d model.Delivery) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sink panic: %v", sink.ErrDeliveryFailed, r)
		}
	}()
	return w.sink.Deliver(ctx, d)
}
