package google

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

var now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestConvertTaskToEvent(t *testing.T) {
	task := model.Task{ID: "3f2c", Title: "Pay rent", Due: day(2026, 10, 31), Category: model.CategoryWork}

	event, err := ConvertTaskToEvent(task, now)
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", event.Summary)
	assert.Equal(t, "2026-10-31", event.Start.Date)
	assert.Equal(t, "2026-11-01", event.End.Date)
	assert.Empty(t, event.Start.DateTime)
	assert.Equal(t, "9", event.ColorId)
	assert.Equal(t, "3f2c", TaskIDFromEvent(event))
	assert.True(t, strings.Contains(event.Description, "Category: work"), event.Description)
}

func TestSummaryMarks(t *testing.T) {
	tests := []struct {
		name string
		task model.Task
		want string
	}{
		{"open", model.Task{Title: "a", Due: day(2026, 10, 19)}, "a"},
		{"overdue", model.Task{Title: "a", Due: day(2026, 10, 18)}, "! a"},
		{"completed", model.Task{Title: "a", Due: day(2026, 10, 18), Completed: true}, "✓ a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.task, now))
		})
	}
}

func TestColorID(t *testing.T) {
	assert.Equal(t, "2", ColorID(model.Task{Category: model.CategoryHome}))
	assert.Equal(t, "6", ColorID(model.Task{Category: model.CategoryShop}))
	assert.Equal(t, "2", ColorID(model.Task{Category: "garden"}))
	assert.Equal(t, "8", ColorID(model.Task{Category: model.CategoryStudy, Completed: true}))
}

func TestConvertRequiresDueDate(t *testing.T) {
	_, err := ConvertTaskToEvent(model.Task{ID: "x", Title: "undated"}, now)
	assert.Error(t, err)
}

func TestEventNeedsUpdate(t *testing.T) {
	task := model.Task{ID: "1", Title: "Call mum", Due: day(2026, 10, 20), Category: model.CategoryHome}
	target, err := ConvertTaskToEvent(task, now)
	require.NoError(t, err)

	same := *target
	assert.Nil(t, EventNeedsUpdate(&same, target))

	task.Completed = true
	done, err := ConvertTaskToEvent(task, now)
	require.NoError(t, err)
	patch := EventNeedsUpdate(target, done)
	require.NotNil(t, patch)
	assert.Equal(t, "✓ Call mum", patch.Summary)
	assert.Equal(t, "8", patch.ColorId)
	assert.Nil(t, patch.Start, "dates did not change")

	timed := *target
	timed.Start = &calendar.EventDateTime{DateTime: "2026-10-20T09:00:00Z"}
	patch = EventNeedsUpdate(&timed, target)
	require.NotNil(t, patch)
	assert.Equal(t, "2026-10-20", patch.Start.Date)
}
