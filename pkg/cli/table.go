package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/harrisonrobin/taskdeck/pkg/calendar"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// shortIDLen is how much of an ID the tables show; commands accept any
// unique prefix.
const shortIDLen = 8

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	return t
}

func shortID(id string) string {
	if model.IsProvisional(id) {
		return "pending"
	}
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func dueCell(t model.Task, now time.Time) string {
	if t.Due == nil {
		return ""
	}
	d := t.Due.Format(model.DateLayout)
	if t.Overdue(now) {
		return d + " !"
	}
	return d
}

func renderTasks(list []model.Task, now time.Time) string {
	if len(list) == 0 {
		return "No tasks."
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "", "Title", "Due", "Category"})
	open := 0
	for _, task := range list {
		done := " "
		if task.Completed {
			done = "✓"
		} else {
			open++
		}
		t.AppendRow(table.Row{shortID(task.ID), done, task.Title, dueCell(task, now), task.Category})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d open of %d", open, len(list)), "", ""})
	return t.Render()
}

func renderAdminTasks(list []model.Task) string {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "", "Title", "Due", "User", "Created"})
	for _, task := range list {
		done := " "
		if task.Completed {
			done = "✓"
		}
		due := ""
		if task.Due != nil {
			due = task.Due.Format(model.DateLayout)
		}
		t.AppendRow(table.Row{shortID(task.ID), done, task.Title, due, task.UserID, task.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	return t.Render()
}

func renderProfiles(list []model.Profile) string {
	t := newTable()
	t.AppendHeader(table.Row{"User", "Role"})
	for _, p := range list {
		t.AppendRow(table.Row{p.ID, strings.ToUpper(string(p.Role))})
	}
	return t.Render()
}

// renderMonth draws the grid with the day of month in each cell, a count of
// tasks due that day and brackets around today.
func renderMonth(g calendar.Grid) string {
	t := newTable()
	t.SetTitle(g.Title())
	header := make(table.Row, len(calendar.Weekdays))
	configs := make([]table.ColumnConfig, len(calendar.Weekdays))
	for i, d := range calendar.Weekdays {
		header[i] = d
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignCenter, AlignHeader: text.AlignCenter}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)
	for _, week := range g.Weeks {
		row := make(table.Row, len(week))
		for i, day := range week {
			cell := ""
			if day.InMonth {
				cell = fmt.Sprintf("%d", day.Date.Day())
				if day.Today {
					cell = "[" + cell + "]"
				}
				if n := len(day.Tasks); n > 0 {
					cell += fmt.Sprintf(" •%d", n)
				}
			}
			row[i] = cell
		}
		t.AppendRow(row)
	}
	return t.Render()
}
