package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/taskdeck/pkg/index"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// CalendarClient mirrors tasks into one Google Calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	log        *zap.Logger
}

// SyncResult counts what a Sync changed.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
}

// NewCalendarClient wraps an existing service. idx may be nil.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.EventIndex, log *zap.Logger) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, log: logging.OrNop(log)}
}

func (c *CalendarClient) CalendarID() string { return c.calendarID }

// Sync pushes every confirmed task with a due date and removes the indexed
// events of tasks that are gone or no longer have one. Per-task failures are
// logged and counted; the first one is returned after the whole pass.
func (c *CalendarClient) Sync(ctx context.Context, tasks []model.Task, now time.Time) (SyncResult, error) {
	var (
		res      SyncResult
		firstErr error
	)
	fail := func(err error) {
		res.Failed++
		if firstErr == nil {
			firstErr = err
		}
	}

	keep := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task.Due == nil || task.Provisional() {
			continue
		}
		keep[task.ID] = true
		_, action, err := c.SyncEvent(ctx, task, now)
		if err != nil {
			c.log.Warn("calendar sync failed", zap.String("task", task.ID), zap.Error(err))
			fail(fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		switch action {
		case ActionCreated:
			res.Created++
		case ActionUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	if c.index != nil {
		for _, taskID := range c.index.TaskIDs() {
			if keep[taskID] {
				continue
			}
			if err := c.DeleteEvent(ctx, c.index.Get(taskID)); err != nil {
				c.log.Warn("calendar delete failed", zap.String("task", taskID), zap.Error(err))
				fail(fmt.Errorf("task %s: %w", taskID, err))
				continue
			}
			c.index.Remove(taskID)
			res.Deleted++
		}
		if err := c.index.Save(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("saving event index: %w", err)
		}
	}

	c.log.Debug("calendar synced",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed))
	return res, firstErr
}

// SyncAction is what SyncEvent did to the calendar.
type SyncAction int

const (
	ActionUnchanged SyncAction = iota
	ActionCreated
	ActionUpdated
)

// SyncEvent creates the task's event or patches the existing one.
func (c *CalendarClient) SyncEvent(ctx context.Context, task model.Task, now time.Time) (*calendar.Event, SyncAction, error) {
	event, err := ConvertTaskToEvent(task, now)
	if err != nil {
		return nil, ActionUnchanged, err
	}

	var existing *calendar.Event
	if c.index != nil {
		if eventID := c.index.Get(task.ID); eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err != nil || existing.Status == "cancelled" {
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = c.GetEventByTaskID(ctx, task.ID)
		if err != nil {
			return nil, ActionUnchanged, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch := EventNeedsUpdate(existing, event)
		if patch == nil {
			c.remember(task.ID, existing.Id)
			return existing, ActionUnchanged, nil
		}
		updated, err := c.PatchEvent(ctx, existing.Id, patch)
		if err != nil {
			return nil, ActionUnchanged, err
		}
		c.remember(task.ID, updated.Id)
		return updated, ActionUpdated, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, ActionUnchanged, err
	}
	c.remember(task.ID, created.Id)
	return created, ActionCreated, nil
}

func (c *CalendarClient) remember(taskID, eventID string) {
	if c.index != nil {
		c.index.Set(taskID, eventID)
	}
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}

// DeleteEvent deletes an event; one that is already gone is not an error.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	return err
}

// GetEventByTaskID searches for the event carrying the task ID in its private
// extended properties.
func (c *CalendarClient) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
