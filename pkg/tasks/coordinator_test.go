package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

var ann = model.AuthContext{UserID: "ann", Email: "ann@example.com", Role: model.RoleUser}

// memStore is an in-memory Store. Calls can be held back with gates and
// made to fail once with fail.
type memStore struct {
	mu     sync.Mutex
	tasks  []model.Task
	nextID int
	epoch  time.Time
	calls  []string
	fail   map[string]error
	gates  map[string]chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		epoch: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (s *memStore) hold(method string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[method] = ch
	return ch
}

func (s *memStore) failOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *memStore) enter(call string, method string) error {
	s.mu.Lock()
	gate := s.gates[method]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return err
	}
	return nil
}

func (s *memStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *memStore) seed(title string, completed bool) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(model.NewTask{Title: title, Category: model.CategoryHome}, completed)
}

func (s *memStore) addLocked(n model.NewTask, completed bool) model.Task {
	s.nextID++
	t := model.Task{
		ID:        fmt.Sprintf("id-%03d", s.nextID),
		Title:     n.Title,
		Completed: completed,
		Due:       n.Due,
		Category:  n.Category,
		UserID:    ann.UserID,
		CreatedAt: s.epoch.Add(time.Duration(s.nextID) * time.Minute),
	}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *memStore) snapshot() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Task(nil), s.tasks...)
	model.Sort(out)
	return out
}

func (s *memStore) List(ctx context.Context) ([]model.Task, error) {
	if err := s.enter("list", "list"); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *memStore) Create(ctx context.Context, n model.NewTask) (model.Task, error) {
	if err := s.enter("create "+n.Title, "create"); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(n, false), nil
}

func (s *memStore) SetCompletion(ctx context.Context, id string, completed bool) error {
	if err := s.enter(fmt.Sprintf("set %s %t", id, completed), "set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Completed = completed
		}
	}
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	if err := s.enter("delete "+id, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = removeTask(s.tasks, id)
	return nil
}

func (s *memStore) CompleteAll(ctx context.Context) error {
	if err := s.enter("complete-all", "complete-all"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		s.tasks[i].Completed = true
	}
	return nil
}

func (s *memStore) DeleteCompleted(ctx context.Context) error {
	if err := s.enter("delete-completed", "delete-completed"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Completed {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	return nil
}

var unavailable = &apperr.GatewayError{Op: "test", Status: 503, Err: errors.New("unavailable")}

func newLoaded(t *testing.T, store *memStore) *Coordinator {
	t.Helper()
	c := New(store, ann, Options{})
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestCreateShowsProvisionalThenConfirmed(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	store.seed("old", false)
	c := newLoaded(t, store)

	gate := store.hold("create")
	prov, op, err := c.Create(context.Background(), model.NewTask{Title: " new "})
	require.NoError(t, err)
	assert.True(t, prov.Provisional())

	view := c.Tasks()
	require.Len(t, view, 2)
	assert.Equal(t, prov.ID, view[0].ID)
	assert.Equal(t, "new", view[0].Title)

	close(gate)
	require.NoError(t, op.Wait(context.Background()))
	assert.False(t, op.Task().Provisional())
	c.Wait()

	if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
		t.Errorf("cache differs from gateway (-gateway +cache):\n%s", diff)
	}
}

func TestCreateFailureDropsProvisional(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	c := newLoaded(t, store)
	store.failOnce("create", unavailable)

	var events []Event
	var mu sync.Mutex
	cancel := c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	defer cancel()

	_, op, err := c.Create(context.Background(), model.NewTask{Title: "doomed"})
	require.NoError(t, err)
	err = op.Wait(context.Background())
	require.ErrorIs(t, err, unavailable)
	c.Wait()

	assert.Empty(t, c.Tasks())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.ErrorIs(t, last.Err, unavailable)
	assert.Empty(t, last.Tasks)
}

func TestBlankTitleNeverReachesGateway(t *testing.T) {
	store := newMemStore()
	c := New(store, ann, Options{})
	_, _, err := c.Create(context.Background(), model.NewTask{Title: " \t "})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	c.Wait()
	assert.Empty(t, store.callLog())
}

func TestUnauthenticatedCoordinator(t *testing.T) {
	c := New(newMemStore(), model.AuthContext{}, Options{})
	assert.ErrorIs(t, c.Refresh(context.Background()), apperr.ErrAuthRequired)
	_, _, err := c.Create(context.Background(), model.NewTask{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestToggleTwiceRestoresAndCallsTwice(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	task := store.seed("flip", false)
	c := newLoaded(t, store)

	gate := store.hold("set")
	_, err := c.Toggle(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, c.Tasks()[0].Completed)
	op, err := c.Toggle(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, c.Tasks()[0].Completed)

	close(gate)
	require.NoError(t, op.Wait(context.Background()))
	c.Wait()

	assert.Equal(t, []string{"list", "set id-001 true", "set id-001 false"}, store.callLog())
	assert.False(t, c.Tasks()[0].Completed)
	assert.False(t, store.snapshot()[0].Completed)
}

func TestToggleFailureRevertsAndReloads(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	task := store.seed("stuck", false)
	c := newLoaded(t, store)
	store.failOnce("set", unavailable)

	op, err := c.Toggle(context.Background(), task.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Wait(context.Background()), unavailable)
	c.Wait()

	assert.False(t, c.Tasks()[0].Completed)
	assert.Equal(t, []string{"list", "set id-001 true", "list"}, store.callLog())
}

func TestLaterIntentSurvivesEarlierFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	task := store.seed("a", false)
	c := newLoaded(t, store)

	gate := store.hold("set")
	store.failOnce("set", unavailable)
	first, err := c.SetCompletion(context.Background(), task.ID, true)
	require.NoError(t, err)
	_, err = c.Delete(context.Background(), task.ID)
	require.NoError(t, err)
	close(gate)

	assert.ErrorIs(t, first.Wait(context.Background()), unavailable)
	c.Wait()
	assert.Empty(t, c.Tasks())
	assert.Empty(t, store.snapshot())
}

func TestMutatingProvisionalIsPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	c := newLoaded(t, store)
	gate := store.hold("create")
	prov, _, err := c.Create(context.Background(), model.NewTask{Title: "wait"})
	require.NoError(t, err)

	_, err = c.Toggle(context.Background(), prov.ID)
	assert.ErrorIs(t, err, apperr.ErrPending)
	_, err = c.Delete(context.Background(), prov.ID)
	assert.ErrorIs(t, err, apperr.ErrPending)
	_, err = c.Delete(context.Background(), "id-999")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	close(gate)
	c.Wait()
}

func TestDeleteCompletedKeepsIncomplete(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	store.seed("done 1", true)
	store.seed("open", false)
	store.seed("done 2", true)
	c := newLoaded(t, store)

	op, err := c.DeleteCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, titles(c.Tasks()))
	require.NoError(t, op.Wait(context.Background()))
	c.Wait()

	assert.Equal(t, []string{"open"}, titles(c.Tasks()))
	assert.Equal(t, []string{"open"}, titles(store.snapshot()))
}

func TestBulkFailureRestoresSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	store.seed("a", false)
	store.seed("b", true)
	c := newLoaded(t, store)
	before := c.Tasks()

	store.failOnce("complete-all", unavailable)
	op, err := c.CompleteAll(context.Background())
	require.NoError(t, err)
	for _, task := range c.Tasks() {
		assert.True(t, task.Completed)
	}
	assert.ErrorIs(t, op.Wait(context.Background()), unavailable)
	c.Wait()

	if diff := cmp.Diff(before, c.Tasks()); diff != "" {
		t.Errorf("bulk failure did not restore (-before +after):\n%s", diff)
	}
}

func TestCreatesReachGatewayInRequestOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	c := newLoaded(t, store)

	want := []string{"list"}
	for i := 0; i < 20; i++ {
		title := fmt.Sprintf("step %02d", i)
		want = append(want, "create "+title)
		_, _, err := c.Create(context.Background(), model.NewTask{Title: title})
		require.NoError(t, err)
	}
	c.Wait()
	assert.Equal(t, want, store.callLog())
}

func TestBulkWaitsForEarlierCreate(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	c := newLoaded(t, store)

	gate := store.hold("create")
	_, _, err := c.Create(context.Background(), model.NewTask{Title: "fresh"})
	require.NoError(t, err)
	_, err = c.CompleteAll(context.Background())
	require.NoError(t, err)
	require.True(t, c.Tasks()[0].Completed, "bulk intent covers earlier provisional entries")

	close(gate)
	c.Wait()
	assert.Equal(t, []string{"list", "create fresh", "complete-all"}, store.callLog())
	if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
		t.Errorf("(-gateway +cache):\n%s", diff)
	}
	assert.True(t, c.Tasks()[0].Completed)
}

func TestReloadKeepsUnansweredIntents(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	task := store.seed("a", false)
	store.seed("b", false)
	c := newLoaded(t, store)

	gate := store.hold("delete")
	_, err := c.Delete(context.Background(), task.ID)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"b"}, titles(c.Tasks()))

	close(gate)
	c.Wait()
	assert.Equal(t, []string{"b"}, titles(c.Tasks()))
}

func TestCancelledCallerStillReconciles(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	c := newLoaded(t, store)

	gate := store.hold("create")
	ctx, cancel := context.WithCancel(context.Background())
	_, op, err := c.Create(ctx, model.NewTask{Title: "late"})
	require.NoError(t, err)
	cancel()
	assert.ErrorIs(t, op.Wait(ctx), context.Canceled)

	close(gate)
	c.Wait()
	require.Len(t, c.Tasks(), 1)
	assert.False(t, c.Tasks()[0].Provisional())
}

func TestMixedSequenceConvergesOnGateway(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	for i := 0; i < 5; i++ {
		store.seed(fmt.Sprintf("seed %d", i), i%2 == 0)
	}
	c := newLoaded(t, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := c.Create(ctx, model.NewTask{Title: fmt.Sprintf("new %d", i), Category: model.CategoryWork})
		require.NoError(t, err)
	}
	for i, task := range c.Tasks() {
		if task.Provisional() {
			continue
		}
		if i%3 == 0 {
			_, err := c.Delete(ctx, task.ID)
			require.NoError(t, err)
			continue
		}
		_, err := c.Toggle(ctx, task.ID)
		require.NoError(t, err)
	}
	_, err := c.DeleteCompleted(ctx)
	require.NoError(t, err)
	c.Wait()

	if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
		t.Errorf("(-gateway +cache):\n%s", diff)
	}
	require.NoError(t, c.Refresh(ctx))
	if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
		t.Errorf("after reload (-gateway +cache):\n%s", diff)
	}
}

// staleList reads its rows and then holds the reply until released, so
// confirmations can land between the read and the reply.
type staleList struct {
	*memStore
	read    chan struct{}
	release chan struct{}
}

func (s *staleList) List(ctx context.Context) ([]model.Task, error) {
	rows, err := s.memStore.List(ctx)
	s.read <- struct{}{}
	<-s.release
	return rows, err
}

func TestReloadKeepsCreatesConfirmedDuringRead(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	store.seed("seed", false)
	slow := &staleList{memStore: store, read: make(chan struct{}), release: make(chan struct{})}
	c := New(slow, ann, Options{})
	ctx := context.Background()

	var events []Event
	var mu sync.Mutex
	defer c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})()

	for i := 0; i < 3; i++ {
		errc := make(chan error, 1)
		go func() { errc <- c.Refresh(ctx) }()
		<-slow.read
		_, err := c.Add(ctx, model.NewTask{Title: fmt.Sprintf("step %d", i)})
		require.NoError(t, err)
		slow.release <- struct{}{}
		require.NoError(t, <-errc)

		if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
			t.Fatalf("round %d (-gateway +cache):\n%s", i, diff)
		}
	}
	c.Wait()
	assert.Len(t, c.Tasks(), 4)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		assert.NoError(t, ev.Err)
	}
}

func TestReloadReplaysMutationsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newMemStore()
	a := store.seed("a", false)
	b := store.seed("b", true)
	slow := &staleList{memStore: store, read: make(chan struct{}), release: make(chan struct{})}
	c := New(slow, ann, Options{})
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- c.Refresh(ctx) }()
	<-slow.read
	slow.release <- struct{}{}
	require.NoError(t, <-errc)

	go func() { errc <- c.Refresh(ctx) }()
	<-slow.read
	op, err := c.Delete(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))
	op, err = c.CompleteAll(ctx)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))
	_, err = c.Add(ctx, model.NewTask{Title: "after bulk"})
	require.NoError(t, err)
	slow.release <- struct{}{}
	require.NoError(t, <-errc)
	c.Wait()

	if diff := cmp.Diff(store.snapshot(), c.Tasks()); diff != "" {
		t.Errorf("(-gateway +cache):\n%s", diff)
	}
	got := c.Tasks()
	require.Len(t, got, 2)
	for _, task := range got {
		if task.ID == a.ID {
			assert.True(t, task.Completed)
		} else {
			assert.Equal(t, "after bulk", task.Title)
			assert.False(t, task.Completed)
		}
	}
}

func TestReplay(t *testing.T) {
	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	x := model.Task{ID: "x", Title: "x"}
	y := model.Task{ID: "y", Title: "y", Due: &due}
	fetched := []model.Task{{ID: "a", Title: "a"}, {ID: "b", Title: "b", Completed: true}, y}

	got := replay(fetched, []confirmation{
		{in: intent{kind: intentSet, id: "a", completed: true}},
		{in: intent{kind: intentDeleteCompleted}},
		{created: &x},
		{created: &y},
		{in: intent{kind: intentCompleteAll}},
		{in: intent{kind: intentSet, id: "x", completed: false}},
	})
	model.Sort(got)
	assert.Equal(t, []string{"x", "y"}, titles(got))
	assert.False(t, got[0].Completed)
	assert.True(t, got[1].Completed)
}
