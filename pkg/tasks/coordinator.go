// Package tasks keeps the process-wide task list a user sees and applies
// mutations to it optimistically, reconciling with the gateway afterwards.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Store is the task store adapter the coordinator drives.
type Store interface {
	List(ctx context.Context) ([]model.Task, error)
	Create(ctx context.Context, n model.NewTask) (model.Task, error)
	SetCompletion(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
	CompleteAll(ctx context.Context) error
	DeleteCompleted(ctx context.Context) error
}

// Event is published after every change of the visible list. Err is set
// when the change was caused by a failed operation.
type Event struct {
	Tasks []model.Task
	Err   error
}

// createChain is the chain key of creations; task IDs are never empty.
const createChain = ""

type Options struct {
	Logger *zap.Logger
	// Now stamps provisional entries; defaults to time.Now.
	Now func() time.Time
}

// Coordinator owns the cached task list. The visible list is derived from
// the last confirmed state plus every intent still awaiting the gateway,
// so a failed intent is reverted by dropping it.
type Coordinator struct {
	store Store
	auth  model.AuthContext
	log   *zap.Logger
	now   func() time.Time

	mu        sync.Mutex
	base      []model.Task
	born      map[string]uint64
	pending   []intent
	seq       uint64
	committed uint64
	loaded    bool

	reloadGen  uint64
	appliedGen uint64
	// While readers > 0 every confirmation is kept in journal;
	// journal[0] is confirmation number journalBase.
	readers     int
	journal     []confirmation
	journalBase uint64

	tails   map[string]chan struct{}
	barrier chan struct{}

	subs    map[int]func(Event)
	nextSub int
	emitMu  sync.Mutex

	wg sync.WaitGroup
}

func New(store Store, auth model.AuthContext, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store: store,
		auth:  auth,
		log:   logging.OrNop(opts.Logger),
		now:   opts.Now,
		born:  make(map[string]uint64),
		tails: make(map[string]chan struct{}),
		subs:  make(map[int]func(Event)),
	}
}

// Auth returns the session the coordinator acts for.
func (c *Coordinator) Auth() model.AuthContext { return c.auth }

// Subscribe registers fn for list changes and returns its cancel func.
// Events are delivered in order, and the event of a reconciled operation
// reaches fn before the operation's Op is done. fn runs with the emit lock
// held and must not call back into the Coordinator.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Tasks returns a copy of the visible list.
func (c *Coordinator) Tasks() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Loaded reports whether a reload has succeeded at least once.
func (c *Coordinator) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Wait blocks until every background gateway call has been reconciled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) viewLocked() []model.Task {
	tasks := append([]model.Task(nil), c.base...)
	for _, in := range c.pending {
		tasks = in.apply(tasks, c.born)
	}
	return arrange(tasks, c.born)
}

// unlockAndEmit publishes the current view and releases c.mu. The emit lock
// is taken before c.mu is released so events reach subscribers in order.
func (c *Coordinator) unlockAndEmit(err error) {
	ev := Event{Tasks: c.viewLocked(), Err: err}
	subs := make([]func(Event), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Refresh replaces the confirmed part of the cache with the gateway's list.
// Provisional entries and unanswered intents survive a reload.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.auth.Authenticated() {
		return apperr.ErrAuthRequired
	}
	c.mu.Lock()
	creating := c.tails[createChain]
	c.mu.Unlock()
	if creating != nil {
		select {
		case <-creating:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.reloadGen++
	gen, from := c.reloadGen, c.committed
	c.readers++
	c.mu.Unlock()

	tasks, err := c.store.List(ctx)

	c.mu.Lock()
	missed := c.journal[from-c.journalBase:]
	c.readers--
	if c.readers == 0 {
		c.journal = nil
		c.journalBase = c.committed
	}
	if err != nil {
		c.log.Warn("reload failed", zap.Error(err))
		c.unlockAndEmit(err)
		return err
	}
	if gen < c.appliedGen {
		c.mu.Unlock()
		return nil
	}
	c.appliedGen = gen
	if len(missed) > 0 {
		c.log.Debug("replaying confirmations made during reload", zap.Int("count", len(missed)))
		tasks = replay(tasks, missed)
	}
	base := make([]model.Task, 0, len(tasks)+len(c.born))
	for _, t := range c.base {
		if t.Provisional() {
			base = append(base, t)
		}
	}
	c.base = append(base, tasks...)
	c.loaded = true
	c.log.Debug("reloaded tasks", zap.Int("count", len(tasks)), zap.Int("pending", len(c.pending)))
	c.unlockAndEmit(nil)
	return nil
}

// confirmLocked counts a confirmation and journals it for reloads that
// are reading.
func (c *Coordinator) confirmLocked(cf confirmation) {
	c.committed++
	if c.readers > 0 {
		c.journal = append(c.journal, cf)
	} else {
		c.journalBase = c.committed
	}
}

func (c *Coordinator) reloadInBackground(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Refresh(ctx)
	}()
}

// chainLocked appends a link to the chain of key and returns what the new
// link has to wait for.
func (c *Coordinator) chainLocked(key string) (prev, done chan struct{}) {
	prev = c.tails[key]
	if prev == nil {
		prev = c.barrier
	}
	done = make(chan struct{})
	c.tails[key] = done
	return prev, done
}

// barrierLocked makes a bulk link that waits for every outstanding link and
// precedes every later one.
func (c *Coordinator) barrierLocked() (prev []chan struct{}, done chan struct{}) {
	seen := make(map[chan struct{}]bool)
	for _, ch := range c.tails {
		if !seen[ch] {
			seen[ch] = true
			prev = append(prev, ch)
		}
	}
	if c.barrier != nil && !seen[c.barrier] {
		prev = append(prev, c.barrier)
	}
	done = make(chan struct{})
	for k := range c.tails {
		c.tails[k] = done
	}
	c.tails[createChain] = done
	c.barrier = done
	return prev, done
}

func (c *Coordinator) releaseLocked(done chan struct{}) {
	for k, ch := range c.tails {
		if ch == done {
			delete(c.tails, k)
		}
	}
	if c.barrier == done {
		c.barrier = nil
	}
	close(done)
}

func (c *Coordinator) spawn(wait []chan struct{}, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, ch := range wait {
			if ch != nil {
				<-ch
			}
		}
		fn()
	}()
}

// Create validates n, shows it at the head of the list as a provisional
// entry and inserts it in the background. Creations reach the gateway in
// the order they were requested.
func (c *Coordinator) Create(ctx context.Context, n model.NewTask) (model.Task, *Op, error) {
	if !c.auth.Authenticated() {
		return model.Task{}, nil, apperr.ErrAuthRequired
	}
	n, err := n.Normalize()
	if err != nil {
		return model.Task{}, nil, err
	}

	c.mu.Lock()
	c.seq++
	prov := model.Task{
		ID:        model.ProvisionalPrefix + uuid.NewString(),
		Title:     n.Title,
		Due:       n.Due,
		Category:  n.Category,
		UserID:    c.auth.UserID,
		CreatedAt: c.now(),
	}
	c.base = append(c.base, prov)
	c.born[prov.ID] = c.seq
	prev, done := c.chainLocked(createChain)
	op := newOp()
	bg := context.WithoutCancel(ctx)

	c.spawn([]chan struct{}{prev}, func() {
		task, err := c.store.Create(bg, n)

		c.mu.Lock()
		if err != nil {
			c.log.Warn("create failed, dropping provisional entry", zap.String("task", prov.ID), zap.Error(err))
			c.base = removeTask(c.base, prov.ID)
		} else {
			c.log.Debug("create confirmed", zap.String("provisional", prov.ID), zap.String("task", task.ID))
			c.base = replaceTask(removeTask(c.base, task.ID), prov.ID, task)
			c.confirmLocked(confirmation{created: &task})
		}
		delete(c.born, prov.ID)
		c.releaseLocked(done)
		c.unlockAndEmit(err)
		op.finish(task, err)
	})

	c.unlockAndEmit(nil)
	return prov, op, nil
}

// Add creates a task and waits for the gateway to confirm it.
func (c *Coordinator) Add(ctx context.Context, n model.NewTask) (model.Task, error) {
	_, op, err := c.Create(ctx, n)
	if err != nil {
		return model.Task{}, err
	}
	if err := op.Wait(ctx); err != nil {
		return model.Task{}, err
	}
	return op.Task(), nil
}

// lookupLocked finds a task that can be mutated.
func (c *Coordinator) lookupLocked(id string) (model.Task, error) {
	for _, t := range c.viewLocked() {
		if t.ID != id {
			continue
		}
		if t.Provisional() {
			return t, fmt.Errorf("task %s: %w", id, apperr.ErrPending)
		}
		return t, nil
	}
	return model.Task{}, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
}

// Toggle flips the completion of a task.
func (c *Coordinator) Toggle(ctx context.Context, id string) (*Op, error) {
	if !c.auth.Authenticated() {
		return nil, apperr.ErrAuthRequired
	}
	c.mu.Lock()
	t, err := c.lookupLocked(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return c.mutateLocked(ctx, intent{kind: intentSet, id: id, completed: !t.Completed}), nil
}

// SetCompletion sets the completion of a task to completed.
func (c *Coordinator) SetCompletion(ctx context.Context, id string, completed bool) (*Op, error) {
	if !c.auth.Authenticated() {
		return nil, apperr.ErrAuthRequired
	}
	c.mu.Lock()
	if _, err := c.lookupLocked(id); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return c.mutateLocked(ctx, intent{kind: intentSet, id: id, completed: completed}), nil
}

// Delete removes a task.
func (c *Coordinator) Delete(ctx context.Context, id string) (*Op, error) {
	if !c.auth.Authenticated() {
		return nil, apperr.ErrAuthRequired
	}
	c.mu.Lock()
	if _, err := c.lookupLocked(id); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return c.mutateLocked(ctx, intent{kind: intentDelete, id: id}), nil
}

// CompleteAll marks every task complete.
func (c *Coordinator) CompleteAll(ctx context.Context) (*Op, error) {
	if !c.auth.Authenticated() {
		return nil, apperr.ErrAuthRequired
	}
	c.mu.Lock()
	return c.mutateLocked(ctx, intent{kind: intentCompleteAll}), nil
}

// DeleteCompleted removes every completed task.
func (c *Coordinator) DeleteCompleted(ctx context.Context) (*Op, error) {
	if !c.auth.Authenticated() {
		return nil, apperr.ErrAuthRequired
	}
	c.mu.Lock()
	return c.mutateLocked(ctx, intent{kind: intentDeleteCompleted}), nil
}

// mutateLocked records in as pending, publishes the optimistic view and
// sends the call once the operations it depends on have finished. It
// releases c.mu.
func (c *Coordinator) mutateLocked(ctx context.Context, in intent) *Op {
	c.seq++
	in.seq = c.seq
	c.pending = append(c.pending, in)

	var (
		wait []chan struct{}
		done chan struct{}
	)
	if in.bulk() {
		wait, done = c.barrierLocked()
	} else {
		var prev chan struct{}
		prev, done = c.chainLocked(in.id)
		wait = []chan struct{}{prev}
	}
	op := newOp()
	bg := context.WithoutCancel(ctx)

	c.spawn(wait, func() {
		err := c.send(bg, in)

		c.mu.Lock()
		c.dropIntentLocked(in.seq)
		if err != nil {
			c.log.Warn("mutation failed, reverting", zap.Stringer("kind", in.kind), zap.String("task", in.id), zap.Error(err))
			if !in.bulk() {
				c.reloadInBackground(bg)
			}
		} else {
			c.base = in.apply(c.base, c.born)
			c.confirmLocked(confirmation{in: in})
		}
		c.releaseLocked(done)
		c.unlockAndEmit(err)
		op.finish(model.Task{}, err)
	})

	c.unlockAndEmit(nil)
	return op
}

func (c *Coordinator) send(ctx context.Context, in intent) error {
	switch in.kind {
	case intentSet:
		return c.store.SetCompletion(ctx, in.id, in.completed)
	case intentDelete:
		return c.store.Delete(ctx, in.id)
	case intentCompleteAll:
		return c.store.CompleteAll(ctx)
	case intentDeleteCompleted:
		return c.store.DeleteCompleted(ctx)
	}
	return fmt.Errorf("unknown intent %d", in.kind)
}

func (c *Coordinator) dropIntentLocked(seq uint64) {
	for i, in := range c.pending {
		if in.seq == seq {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			return
		}
	}
}

func removeTask(tasks []model.Task, id string) []model.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func replaceTask(tasks []model.Task, id string, with model.Task) []model.Task {
	for i, t := range tasks {
		if t.ID == id {
			tasks[i] = with
		}
	}
	return tasks
}
