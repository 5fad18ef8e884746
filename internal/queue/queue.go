// Package queue holds timed deliveries, mirrors them to a Store after every
// mutation and hands out the ones whose due time has passed.
//
// Persistence is write-after-mutate. If the process dies after a Tick removed
// entries in memory but before the write finished, those entries are read back
// on the next start and fire again when already past due.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/storage"
)

var (
	ErrNotFound    = errors.New("delivery not found")
	ErrAmbiguous   = errors.New("delivery id prefix is ambiguous")
	ErrPersistence = errors.New("failed to persist queue")
)

type Queue struct {
	mu    sync.Mutex
	name  string
	store storage.Store
	items []*model.Delivery
	dirty bool // last write failed

	now   func() time.Time
	newID func() string
}

type Option func(*Queue)

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) { q.newID = gen }
}

func New(name string, store storage.Store, opts ...Option) *Queue {
	q := &Queue{
		name:  name,
		store: store,
		items: []*model.Delivery{},
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

// Load replaces the in-memory collection with the persisted one.
func (q *Queue) Load() error {
	items, err := q.store.Load(q.name)
	if err != nil {
		return fmt.Errorf("failed to load queue %q: %w", q.name, err)
	}
	valid := items[:0]
	for _, d := range items {
		if d == nil {
			slog.Warn("Dropping empty delivery record", "queue", q.name)
			continue
		}
		if err := d.Validate(); err != nil {
			slog.Warn("Dropping invalid delivery", "queue", q.name, "id", d.ID, "error", err)
			continue
		}
		valid = append(valid, d)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = valid
	q.dirty = false
	return nil
}

// Schedule appends a delivery and persists the queue before returning. A
// negative repeat, or one that is not a whole number of seconds, is rejected;
// zero means one-shot. The destination is not checked until the delivery fires.
func (q *Queue) Schedule(dest model.Destination, payload model.Payload, dueAt time.Time, repeat time.Duration, createdBy string) (model.Delivery, error) {
	if repeat < 0 || repeat%time.Second != 0 {
		return model.Delivery{}, fmt.Errorf("%w: repeat interval %s", interval.ErrInvalidDuration, repeat)
	}
	d := &model.Delivery{
		ID:          q.newID(),
		Destination: dest,
		Payload:     payload,
		DueAt:       dueAt.UTC(),
		Repeat:      int64(repeat / time.Second),
		CreatedBy:   createdBy,
		CreatedAt:   q.now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return model.Delivery{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.items
	next := make([]*model.Delivery, len(prev), len(prev)+1)
	copy(next, prev)
	q.items = append(next, d)
	if err := q.persistLocked(); err != nil {
		q.items = prev
		return model.Delivery{}, err
	}
	return *d, nil
}

// Cancel removes the delivery with the given id.
func (q *Queue) Cancel(id string) (model.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, d := range q.items {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Delivery{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := q.items
	removed := prev[idx]
	next := make([]*model.Delivery, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	q.items = next
	if err := q.persistLocked(); err != nil {
		q.items = prev
		return model.Delivery{}, err
	}
	return *removed, nil
}

// Resolve expands a unique id prefix to the full id.
func (q *Queue) Resolve(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var match string
	for _, d := range q.items {
		if d.ID == prefix {
			return d.ID, nil
		}
		if strings.HasPrefix(d.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
			}
			match = d.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return match, nil
}

// Get returns a copy of the delivery with the given id.
func (q *Queue) Get(id string) (model.Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.items {
		if d.ID == id {
			return *d, true
		}
	}
	return model.Delivery{}, false
}

// List returns a snapshot in queue order.
func (q *Queue) List() []model.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]model.Delivery, len(q.items))
	for i, d := range q.items {
		result[i] = *d
	}
	return result
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Tick removes every delivery due at now and returns them. Repeating
// deliveries go back to the end of the queue due at now plus their interval.
// The queue is written only when something was due, or when an earlier write
// failed. A write failure leaves the in-memory state in place; the returned
// deliveries must still be sent.
func (q *Queue) Tick(now time.Time) ([]model.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		due     []model.Delivery
		kept    = make([]*model.Delivery, 0, len(q.items))
		rearmed []*model.Delivery
	)
	for _, d := range q.items {
		if !d.Due(now) {
			kept = append(kept, d)
			continue
		}
		due = append(due, *d)
		if d.Repeating() {
			next := *d
			next.DueAt = now.Add(d.RepeatInterval()).UTC()
			rearmed = append(rearmed, &next)
		}
	}

	if len(due) == 0 && !q.dirty {
		return nil, nil
	}
	q.items = append(kept, rearmed...)
	return due, q.persistLocked()
}

func (q *Queue) persistLocked() error {
	if err := q.store.Save(q.name, q.items); err != nil {
		q.dirty = true
		return fmt.Errorf("%w %q: %w", ErrPersistence, q.name, err)
	}
	q.dirty = false
	return nil
}
