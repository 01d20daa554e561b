package tasks

import (
	"context"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Op is the pending gateway confirmation of a mutation. The cache has
// already been updated optimistically when an Op is handed out.
type Op struct {
	done chan struct{}
	task model.Task
	err  error
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

func (o *Op) finish(t model.Task, err error) {
	o.task, o.err = t, err
	close(o.done)
}

// Done is closed once the gateway answered and the cache was reconciled.
func (o *Op) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation is reconciled or ctx ends. Giving up on
// the wait does not cancel the operation.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is the confirmed task of a creation; zero for other operations or
// before Done.
func (o *Op) Task() model.Task {
	select {
	case <-o.done:
		return o.task
	default:
		return model.Task{}
	}
}
