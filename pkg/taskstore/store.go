// Package taskstore turns task list intents into single gateway calls on
// behalf of one authenticated user.
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const (
	CollectionTasks    = "tasks"
	CollectionProfiles = "profiles"

	DefaultTimeout = 10 * time.Second
)

// taskRow is the stored shape of a task.
type taskRow struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	IsCompleted bool    `json:"is_completed"`
	DueDate     *string `json:"due_date"`
	Category    string  `json:"category"`
	UserID      string  `json:"user_id"`
	CreatedAt   string  `json:"created_at"`
}

type newTaskRow struct {
	Title       string  `json:"title"`
	IsCompleted bool    `json:"is_completed"`
	DueDate     *string `json:"due_date"`
	Category    string  `json:"category"`
	UserID      string  `json:"user_id"`
}

func (r taskRow) task() (model.Task, error) {
	if r.ID == "" {
		return model.Task{}, fmt.Errorf("task row without id")
	}
	t := model.Task{
		ID:        r.ID,
		Title:     r.Title,
		Completed: r.IsCompleted,
		UserID:    r.UserID,
		Category:  model.CategoryHome,
	}
	if c, err := model.ParseCategory(r.Category); err == nil {
		t.Category = c
	}
	if r.DueDate != nil && len(*r.DueDate) >= len(model.DateLayout) {
		// date columns come back bare, timestamp columns with a clock part
		d, err := time.Parse(model.DateLayout, (*r.DueDate)[:len(model.DateLayout)])
		if err != nil {
			return model.Task{}, fmt.Errorf("task %s: bad due_date %q", r.ID, *r.DueDate)
		}
		t.Due = &d
	}
	if r.CreatedAt != "" {
		c, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return model.Task{}, fmt.Errorf("task %s: bad created_at %q", r.ID, r.CreatedAt)
		}
		t.CreatedAt = c
	}
	return t, nil
}

// DecodeTask converts one gateway row into a Task.
func DecodeTask(raw json.RawMessage) (model.Task, error) {
	var r taskRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Task{}, fmt.Errorf("decode task: %w", err)
	}
	return r.task()
}

// DecodeTasks converts gateway rows, failing on the first malformed one.
func DecodeTasks(raws []json.RawMessage) ([]model.Task, error) {
	out := make([]model.Task, 0, len(raws))
	for _, raw := range raws {
		t, err := DecodeTask(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type Options struct {
	// Timeout bounds every gateway call; zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Store is the task store adapter for one AuthContext.
type Store struct {
	gw      gateway.Gateway
	auth    model.AuthContext
	timeout time.Duration
	log     *zap.Logger
}

func New(gw gateway.Gateway, auth model.AuthContext, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Store{gw: gw, auth: auth, timeout: opts.Timeout, log: logging.OrNop(opts.Logger)}
}

// Auth returns the session the store acts for.
func (s *Store) Auth() model.AuthContext { return s.auth }

func (s *Store) begin(ctx context.Context, idempotent bool) (context.Context, context.CancelFunc, error) {
	if !s.auth.Authenticated() {
		return nil, nil, apperr.ErrAuthRequired
	}
	if idempotent {
		ctx = gateway.WithIdempotent(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, cancel, nil
}

func (s *Store) mine() gateway.Filter {
	return gateway.Where("user_id", s.auth.UserID)
}

// List returns the user's tasks in display order.
func (s *Store) List(ctx context.Context) ([]model.Task, error) {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raws, err := s.gw.Select(ctx, CollectionTasks, s.mine(),
		gateway.Order{Column: "is_completed"},
		gateway.Order{Column: "due_date", NullsLast: true},
		gateway.Order{Column: "created_at", Descending: true},
	)
	if err != nil {
		return nil, err
	}
	tasks, err := DecodeTasks(raws)
	if err != nil {
		return nil, &apperr.GatewayError{Op: "select tasks", Err: err}
	}
	model.Sort(tasks)
	return tasks, nil
}

// CountOpen counts the user's incomplete tasks.
func (s *Store) CountOpen(ctx context.Context) (int, error) {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return 0, err
	}
	defer cancel()

	raws, err := s.gw.Select(ctx, CollectionTasks, s.mine().And("is_completed", false))
	if err != nil {
		return 0, err
	}
	return len(raws), nil
}

// Create validates n and inserts it; the returned task carries the
// gateway-assigned ID and creation time.
func (s *Store) Create(ctx context.Context, n model.NewTask) (model.Task, error) {
	n, err := n.Normalize()
	if err != nil {
		return model.Task{}, err
	}
	ctx, cancel, err := s.begin(ctx, false)
	if err != nil {
		return model.Task{}, err
	}
	defer cancel()

	row := newTaskRow{Title: n.Title, Category: string(n.Category), UserID: s.auth.UserID}
	if n.Due != nil {
		d := n.Due.Format(model.DateLayout)
		row.DueDate = &d
	}
	raw, err := s.gw.Insert(ctx, CollectionTasks, row)
	if err != nil {
		return model.Task{}, err
	}
	t, err := DecodeTask(raw)
	if err != nil {
		return model.Task{}, &apperr.GatewayError{Op: "insert tasks", Err: err}
	}
	s.log.Debug("task created", zap.String("task", t.ID))
	return t, nil
}

// SetCompletion sets the completion flag; repeating it is harmless.
func (s *Store) SetCompletion(ctx context.Context, id string, completed bool) error {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer cancel()
	return s.gw.Update(ctx, CollectionTasks, map[string]any{"is_completed": completed}, s.mine().And("id", id))
}

// Delete removes a task; an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer cancel()
	return s.gw.Delete(ctx, CollectionTasks, s.mine().And("id", id))
}

// CompleteAll marks every incomplete task complete in one call.
func (s *Store) CompleteAll(ctx context.Context) error {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer cancel()
	return s.gw.Update(ctx, CollectionTasks, map[string]any{"is_completed": true}, s.mine().And("is_completed", false))
}

// DeleteCompleted removes every completed task in one call.
func (s *Store) DeleteCompleted(ctx context.Context) error {
	ctx, cancel, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer cancel()
	return s.gw.Delete(ctx, CollectionTasks, s.mine().And("is_completed", true))
}
