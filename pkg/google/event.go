package google

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// TaskIDProperty is the private extended property linking an event to its task.
const TaskIDProperty = "taskdeck_id"

const (
	prefixCompleted = "✓"
	prefixOverdue   = "!"

	// graphite
	completedColorID = "8"
)

// categoryColors maps categories onto Google Calendar event colour IDs.
var categoryColors = map[model.Category]string{
	model.CategoryHome:  "2", // sage
	model.CategoryWork:  "9", // blueberry
	model.CategoryStudy: "3", // grape
	model.CategoryShop:  "6", // tangerine
}

// ColorID returns the event colour for a task.
func ColorID(task model.Task) string {
	if task.Completed {
		return completedColorID
	}
	if id, ok := categoryColors[task.Category]; ok {
		return id
	}
	return categoryColors[model.CategoryHome]
}

// Summary prefixes the title with a completion or overdue mark.
func Summary(task model.Task, now time.Time) string {
	switch {
	case task.Completed:
		return prefixCompleted + " " + task.Title
	case task.Overdue(now):
		return prefixOverdue + " " + task.Title
	}
	return task.Title
}

// ConvertTaskToEvent builds the all-day event mirroring a due-dated task.
func ConvertTaskToEvent(task model.Task, now time.Time) (*calendar.Event, error) {
	if task.Due == nil {
		return nil, &apperr.ValidationError{Field: "due", Msg: fmt.Sprintf("task %s has no due date", task.ID)}
	}
	day := model.DateOnly(*task.Due)

	var desc strings.Builder
	status := "open"
	if task.Completed {
		status = "done"
	}
	fmt.Fprintf(&desc, "Status: %s\n", status)
	fmt.Fprintf(&desc, "Category: %s\n", task.Category)
	fmt.Fprintf(&desc, "ID: %s\n", task.ID)

	return &calendar.Event{
		Summary:      Summary(task, now),
		Description:  desc.String(),
		ColorId:      ColorID(task),
		Start:        &calendar.EventDateTime{Date: day.Format(model.DateLayout)},
		End:          &calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format(model.DateLayout)},
		Transparency: "transparent",
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: task.ID},
		},
	}, nil
}

// EventNeedsUpdate returns a patch carrying the fields of target that differ
// from existing, or nil when the event is already current.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if eventDate(existing.Start) != eventDate(target.Start) || eventDate(existing.End) != eventDate(target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}
	if TaskIDFromEvent(existing) != TaskIDFromEvent(target) {
		patch.ExtendedProperties = target.ExtendedProperties
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

// eventDate is the day an event boundary falls on; timed boundaries compare
// by their date so a timed event is always rewritten as an all-day one.
func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	return "T" + dt.DateTime
}

// TaskIDFromEvent reads the linked task ID, if any.
func TaskIDFromEvent(ev *calendar.Event) string {
	if ev == nil || ev.ExtendedProperties == nil {
		return ""
	}
	return ev.ExtendedProperties.Private[TaskIDProperty]
}
