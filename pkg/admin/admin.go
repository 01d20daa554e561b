// Package admin is the console for administrators: every user's tasks, the
// profiles table and role changes.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/taskstore"
)

type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Admins    int `json:"admins"`
}

type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Console acts on all users' data. Every method fails with
// apperr.ErrForbidden unless the session is an admin.
type Console struct {
	gw      gateway.Gateway
	auth    model.AuthContext
	timeout time.Duration
	log     *zap.Logger
}

func New(gw gateway.Gateway, auth model.AuthContext, opts Options) *Console {
	if opts.Timeout <= 0 {
		opts.Timeout = taskstore.DefaultTimeout
	}
	return &Console{gw: gw, auth: auth, timeout: opts.Timeout, log: logging.OrNop(opts.Logger)}
}

func (c *Console) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if !c.auth.Authenticated() {
		return nil, nil, apperr.ErrAuthRequired
	}
	if !c.auth.IsAdmin() {
		return nil, nil, apperr.ErrForbidden
	}
	ctx, cancel := context.WithTimeout(gateway.WithIdempotent(ctx), c.timeout)
	return ctx, cancel, nil
}

// Tasks lists every user's tasks newest first, keeping those whose title
// contains query case-insensitively.
func (c *Console) Tasks(ctx context.Context, query string) ([]model.Task, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	tasks, err := c.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tasks, nil
	}
	out := tasks[:0]
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Console) allTasks(ctx context.Context) ([]model.Task, error) {
	raws, err := c.gw.Select(ctx, taskstore.CollectionTasks, nil,
		gateway.Order{Column: "created_at", Descending: true})
	if err != nil {
		return nil, err
	}
	tasks, err := taskstore.DecodeTasks(raws)
	if err != nil {
		return nil, &apperr.GatewayError{Op: "select tasks", Err: err}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// DeleteTask removes any user's task.
func (c *Console) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := c.gw.Delete(ctx, taskstore.CollectionTasks, gateway.Where("id", id)); err != nil {
		return err
	}
	c.log.Info("task deleted by admin", zap.String("task", id), zap.String("admin", c.auth.UserID))
	return nil
}

// Profiles lists profiles whose ID contains query case-insensitively.
func (c *Console) Profiles(ctx context.Context, query string) ([]model.Profile, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	profiles, err := c.allProfiles(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return profiles, nil
	}
	out := profiles[:0]
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.ID), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Console) allProfiles(ctx context.Context) ([]model.Profile, error) {
	raws, err := c.gw.Select(ctx, taskstore.CollectionProfiles, nil, gateway.Order{Column: "id"})
	if err != nil {
		return nil, err
	}
	out := make([]model.Profile, 0, len(raws))
	for _, raw := range raws {
		var row struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, &apperr.GatewayError{Op: "select profiles", Err: fmt.Errorf("decode profile: %w", err)}
		}
		out = append(out, model.Profile{ID: row.ID, Role: model.ParseRole(row.Role)})
	}
	return out, nil
}

// ToggleRole flips a profile between user and admin and returns the new role.
func (c *Console) ToggleRole(ctx context.Context, id string) (model.Role, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	raws, err := c.gw.Select(ctx, taskstore.CollectionProfiles, gateway.Where("id", id))
	if err != nil {
		return "", err
	}
	if len(raws) == 0 {
		return "", fmt.Errorf("profile %s: %w", id, apperr.ErrNotFound)
	}
	var row struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(raws[0], &row); err != nil {
		return "", &apperr.GatewayError{Op: "select profiles", Err: err}
	}
	next := model.RoleAdmin
	if model.ParseRole(row.Role) == model.RoleAdmin {
		next = model.RoleUser
	}
	if err := c.gw.Update(ctx, taskstore.CollectionProfiles, map[string]any{"role": string(next)}, gateway.Where("id", id)); err != nil {
		return "", err
	}
	c.log.Info("role changed", zap.String("user", id), zap.String("role", string(next)), zap.String("admin", c.auth.UserID))
	return next, nil
}

// Stats counts all tasks, completed tasks and admins.
func (c *Console) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer cancel()

	var (
		tasks    []model.Task
		profiles []model.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = c.allTasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		profiles, err = c.allProfiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	for _, p := range profiles {
		if p.Role == model.RoleAdmin {
			s.Admins++
		}
	}
	return s, nil
}
