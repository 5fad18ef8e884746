package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	saved  map[string][]model.Delivery
	saves  int
	fail   error
	onSave func() // called before a save is recorded, without holding mu
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]model.Delivery)}
}

func (m *memStore) Load(queue string) ([]*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Delivery{}
	for _, d := range m.saved[queue] {
		d := d
		out = append(out, &d)
	}
	return out, nil
}

func (m *memStore) Save(queue string, ds []*model.Delivery) error {
	m.mu.Lock()
	hook := m.onSave
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	snap := make([]model.Delivery, len(ds))
	for i, d := range ds {
		snap[i] = *d
	}
	m.saved[queue] = snap
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot(queue string) []model.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[queue]
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

var _ storage.Store = (*memStore)(nil)

func sequentialIDs() Option {
	var mu sync.Mutex
	n := 0
	return WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	})
}

var (
	t0      = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	channel = model.Destination{Kind: model.KindChannel, ID: "100"}
)

func msg(s string) model.Payload { return model.Payload{Content: s} }

func newTestQueue(t *testing.T) (*Queue, *memStore) {
	t.Helper()
	store := newMemStore()
	q := New("announcements", store, sequentialIDs(), WithClock(func() time.Time { return t0 }))
	require.NoError(t, q.Load())
	return q, store
}

func ids(ds []model.Delivery) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestSchedulePersistsImmediately(t *testing.T) {
	q, store := newTestQueue(t)

	d, err := q.Schedule(channel, model.Payload{Content: "hello", MentionRole: "7"}, t0.Add(time.Hour), 0, "u1")
	require.NoError(t, err)
	assert.Equal(t, "id-001", d.ID)
	assert.Equal(t, "u1", d.CreatedBy)
	assert.Equal(t, t0, d.CreatedAt)

	saved := store.snapshot("announcements")
	require.Len(t, saved, 1)
	assert.Equal(t, d, saved[0])
	assert.Equal(t, []model.Delivery{d}, q.List())
}

func TestScheduleValidation(t *testing.T) {
	q, store := newTestQueue(t)

	_, err := q.Schedule(channel, msg("x"), t0, -time.Second, "")
	assert.ErrorIs(t, err, interval.ErrInvalidDuration)

	_, err = q.Schedule(channel, msg("x"), t0, 1500*time.Millisecond, "")
	assert.ErrorIs(t, err, interval.ErrInvalidDuration)

	_, err = q.Schedule(channel, msg("x"), time.Time{}, 0, "")
	assert.ErrorIs(t, err, model.ErrInvalidDelivery)

	_, err = q.Schedule(model.Destination{Kind: model.KindChannel}, msg("x"), t0, 0, "")
	assert.ErrorIs(t, err, model.ErrInvalidDelivery)

	_, err = q.Schedule(channel, msg(""), t0, 0, "")
	assert.ErrorIs(t, err, model.ErrInvalidDelivery)

	assert.Zero(t, q.Len())
	assert.Zero(t, store.saveCount())
}

func TestScheduleRollsBackOnPersistenceFailure(t *testing.T) {
	q, store := newTestQueue(t)
	store.setFail(errors.New("disk full"))

	_, err := q.Schedule(channel, msg("x"), t0, 0, "")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, q.Len())
}

func TestTickDropsOneShot(t *testing.T) {
	q, store := newTestQueue(t)
	d, err := q.Schedule(channel, msg("once"), t0.Add(-time.Second), 0, "")
	require.NoError(t, err)

	emitted, err := q.Tick(t0)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, d.ID, emitted[0].ID)
	assert.Empty(t, q.List())
	assert.Empty(t, store.snapshot("announcements"))

	emitted, err = q.Tick(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, emitted)
}

func TestTickReschedulesRepeating(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Schedule(channel, msg("hourly"), t0, time.Hour, "")
	require.NoError(t, err)

	now := t0.Add(30 * time.Second)
	emitted, err := q.Tick(now)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, t0, emitted[0].DueAt)

	list := q.List()
	require.Len(t, list, 1)
	assert.Equal(t, now.Add(time.Hour), list[0].DueAt)

	// not emitted again for the same firing
	emitted, err = q.Tick(now.Add(59 * time.Minute))
	require.NoError(t, err)
	assert.Empty(t, emitted)

	emitted, err = q.Tick(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, emitted, 1)
}

func TestTickLeavesNotDueUntouched(t *testing.T) {
	q, store := newTestQueue(t)
	for i := 1; i <= 3; i++ {
		_, err := q.Schedule(channel, msg(fmt.Sprint(i)), t0.Add(time.Duration(i)*time.Hour), 0, "")
		require.NoError(t, err)
	}
	before := q.List()
	saves := store.saveCount()

	emitted, err := q.Tick(t0)
	require.NoError(t, err)
	assert.Empty(t, emitted)
	assert.Equal(t, before, q.List())
	assert.Equal(t, saves, store.saveCount(), "idle tick must not write")
}

func TestTickMixedScenario(t *testing.T) {
	q, store := newTestQueue(t)
	rep, err := q.Schedule(channel, msg("repeat"), t0, time.Hour, "")
	require.NoError(t, err)
	future, err := q.Schedule(channel, msg("later"), t0.Add(time.Hour), 0, "")
	require.NoError(t, err)

	emitted, err := q.Tick(t0)
	require.NoError(t, err)
	assert.Equal(t, []string{rep.ID}, ids(emitted))

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, []string{future.ID, rep.ID}, ids(list))
	assert.Equal(t, future, list[0])
	assert.Equal(t, t0.Add(time.Hour), list[1].DueAt)
	assert.Len(t, store.snapshot("announcements"), 2)
}

func TestTickEmitsEverythingAccumulated(t *testing.T) {
	q, _ := newTestQueue(t)
	for i := 0; i < 500; i++ {
		_, err := q.Schedule(channel, msg("backlog"), t0.Add(-time.Duration(i)*time.Minute), 0, "")
		require.NoError(t, err)
	}
	emitted, err := q.Tick(t0)
	require.NoError(t, err)
	assert.Len(t, emitted, 500)
	assert.Zero(t, q.Len())
}

func TestTickPersistenceFailureRetriesNextTick(t *testing.T) {
	q, store := newTestQueue(t)
	_, err := q.Schedule(channel, msg("a"), t0, 0, "")
	require.NoError(t, err)
	_, err = q.Schedule(channel, msg("b"), t0.Add(time.Hour), 0, "")
	require.NoError(t, err)

	store.setFail(errors.New("read-only filesystem"))
	emitted, err := q.Tick(t0)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Len(t, emitted, 1, "due entries are handed out even when the write fails")
	assert.Equal(t, 1, q.Len())
	assert.Len(t, store.snapshot("announcements"), 2)

	store.setFail(nil)
	emitted, err = q.Tick(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, emitted)
	assert.Len(t, store.snapshot("announcements"), 1)
}

func TestCancel(t *testing.T) {
	q, store := newTestQueue(t)
	a, err := q.Schedule(channel, msg("a"), t0.Add(time.Hour), 0, "")
	require.NoError(t, err)
	b, err := q.Schedule(channel, msg("b"), t0.Add(2*time.Hour), 0, "")
	require.NoError(t, err)

	removed, err := q.Cancel(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, removed)
	assert.Equal(t, []string{b.ID}, ids(q.List()))
	assert.Equal(t, []string{b.ID}, ids(store.snapshot("announcements")))

	_, err = q.Cancel(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAfterFiring(t *testing.T) {
	q, _ := newTestQueue(t)
	d, err := q.Schedule(channel, msg("once"), t0.Add(-time.Second), 0, "")
	require.NoError(t, err)
	_, err = q.Tick(t0)
	require.NoError(t, err)

	_, err = q.Cancel(d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelRollsBackOnPersistenceFailure(t *testing.T) {
	q, store := newTestQueue(t)
	d, err := q.Schedule(channel, msg("a"), t0.Add(time.Hour), 0, "")
	require.NoError(t, err)

	store.setFail(errors.New("io error"))
	_, err = q.Cancel(d.ID)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, []string{d.ID}, ids(q.List()))
}

func TestResolve(t *testing.T) {
	store := newMemStore()
	gen := []string{"abc111", "abc222", "def333"}
	i := 0
	q := New("reminders", store, WithIDGenerator(func() string { i++; return gen[i-1] }))
	for range gen {
		_, err := q.Schedule(channel, msg("x"), t0, 0, "")
		require.NoError(t, err)
	}

	id, err := q.Resolve("def")
	require.NoError(t, err)
	assert.Equal(t, "def333", id)

	id, err = q.Resolve("ABC111")
	require.NoError(t, err)
	assert.Equal(t, "abc111", id)

	_, err = q.Resolve("abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = q.Resolve("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = q.Resolve(" ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadReadsPersistedState(t *testing.T) {
	q, store := newTestQueue(t)
	d, err := q.Schedule(channel, msg("survives restart"), t0.Add(time.Hour), 24*time.Hour, "")
	require.NoError(t, err)

	restarted := New("announcements", store)
	require.NoError(t, restarted.Load())
	assert.Equal(t, []model.Delivery{d}, restarted.List())
}

func TestLoadDropsInvalidRecords(t *testing.T) {
	store := newMemStore()
	store.saved["reminders"] = []model.Delivery{
		{ID: "ok", Destination: channel, Payload: msg("x"), DueAt: t0},
		{ID: "bad", Destination: channel, Payload: msg("x")},
	}
	q := New("reminders", store)
	require.NoError(t, q.Load())
	assert.Equal(t, []string{"ok"}, ids(q.List()))
}

func TestLoadDropsOverflowingRepeat(t *testing.T) {
	store := newMemStore()
	store.saved["announcements"] = []model.Delivery{
		{ID: "huge", Destination: channel, Payload: msg("x"), DueAt: t0, Repeat: 1 << 40},
		{ID: "max", Destination: channel, Payload: msg("x"), DueAt: t0, Repeat: model.MaxRepeatSeconds},
	}
	q := New("announcements", store)
	require.NoError(t, q.Load())
	assert.Equal(t, []string{"max"}, ids(q.List()))

	for i := 0; i < 3; i++ {
		_, err := q.Tick(t0.Add(time.Duration(i) * time.Minute))
		require.NoError(t, err)
	}
	left := q.List()
	require.Len(t, left, 1)
	assert.True(t, left[0].DueAt.After(t0), "re-armed into the future, got %s", left[0].DueAt)
}

func TestLoadSkipsNullRecords(t *testing.T) {
	dir := t.TempDir()
	doc := `{"version":1,"deliveries":[null,{"id":"ok","destination":{"kind":"channel","id":"1"},"payload":{"content":"x"},"due_at":"2026-01-01T00:00:00Z"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reminders.json"), []byte(doc), 0644))

	q := New("reminders", storage.NewJSONStore(dir))
	require.NoError(t, q.Load())
	assert.Equal(t, []string{"ok"}, ids(q.List()))
}

func TestListIsSnapshot(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Schedule(channel, msg("a"), t0.Add(time.Hour), 0, "")
	require.NoError(t, err)

	list := q.List()
	list[0].Payload.Content = "mutated"
	assert.Equal(t, "a", q.List()[0].Payload.Content)
}

// A Schedule that arrives while a Tick is writing must wait for the tick and
// land on top of its result.
func TestScheduleDuringTickIsNotLost(t *testing.T) {
	q, store := newTestQueue(t)
	rep, err := q.Schedule(channel, msg("repeat"), t0, time.Hour, "")
	require.NoError(t, err)
	once, err := q.Schedule(channel, msg("once"), t0, 0, "")
	require.NoError(t, err)

	inSave := make(chan struct{})
	release := make(chan struct{})
	var hookOnce sync.Once
	store.mu.Lock()
	store.onSave = func() {
		hookOnce.Do(func() {
			close(inSave)
			<-release
		})
	}
	store.mu.Unlock()

	tickDone := make(chan []model.Delivery)
	go func() {
		emitted, err := q.Tick(t0)
		assert.NoError(t, err)
		tickDone <- emitted
	}()
	<-inSave

	scheduled := make(chan model.Delivery)
	go func() {
		d, err := q.Schedule(channel, msg("new"), t0.Add(time.Minute), 0, "")
		assert.NoError(t, err)
		scheduled <- d
	}()

	select {
	case <-scheduled:
		t.Fatal("schedule completed while tick held the queue")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	emitted := <-tickDone
	added := <-scheduled

	assert.ElementsMatch(t, []string{rep.ID, once.ID}, ids(emitted))
	assert.Equal(t, []string{rep.ID, added.ID}, ids(q.List()))
	assert.Equal(t, []string{rep.ID, added.ID}, ids(store.snapshot("announcements")))
}

func TestConcurrentScheduleAndTick(t *testing.T) {
	q, store := newTestQueue(t)
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := q.Schedule(channel, msg("x"), t0.Add(-time.Second), 0, "")
				assert.NoError(t, err)
			}
		}()
	}

	fired := 0
	stop := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			emitted, err := q.Tick(t0)
			assert.NoError(t, err)
			fired += len(emitted)
		}
	}()
	wg.Wait()
	close(stop)
	<-tickerDone

	emitted, err := q.Tick(t0)
	require.NoError(t, err)
	fired += len(emitted)

	assert.Equal(t, writers*perWriter, fired)
	assert.Zero(t, q.Len())
	assert.Empty(t, store.snapshot("announcements"))
}
