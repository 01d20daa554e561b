// Package calendar lays out month grids and builds Google Calendar links.
package calendar

import (
	"net/url"
	"strings"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Weekdays are the column headers, Monday first.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type Day struct {
	Date    time.Time    `json:"date"`
	InMonth bool         `json:"in_month"`
	Today   bool         `json:"today"`
	Tasks   []model.Task `json:"tasks,omitempty"`
}

// Grid is one month padded to whole weeks.
type Grid struct {
	Month time.Time `json:"month"`
	Weeks [][]Day   `json:"weeks"`
}

// Title renders the month as "October 2026".
func (g Grid) Title() string { return g.Month.Format("January 2006") }

// Month returns the grid of the month containing t: from the Monday on or
// before the first through the Sunday on or after the last. Tasks are
// attached to the day they are due.
func Month(t, today time.Time, tasks []model.Task) Grid {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	start := first.AddDate(0, 0, -mondayOffset(first))
	end := last.AddDate(0, 0, 6-mondayOffset(last))

	due := make(map[string][]model.Task)
	for _, task := range tasks {
		if task.Due != nil {
			k := task.Due.Format(model.DateLayout)
			due[k] = append(due[k], task)
		}
	}
	todayKey := today.Format(model.DateLayout)

	g := Grid{Month: first}
	var week []Day
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		k := d.Format(model.DateLayout)
		week = append(week, Day{
			Date:    d,
			InMonth: d.Month() == first.Month(),
			Today:   k == todayKey,
			Tasks:   due[k],
		})
		if len(week) == 7 {
			g.Weeks = append(g.Weeks, week)
			week = nil
		}
	}
	return g
}

// mondayOffset is the number of days since the last Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseMonth reads "YYYY-MM"; empty means the month of now.
func ParseMonth(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01", strings.TrimSpace(s))
}

// EventURL opens Google Calendar's new-event form for date, optionally with
// a title.
func EventURL(date time.Time, title string) string {
	d := date.Format("20060102")
	q := "action=TEMPLATE&dates=" + d + "/" + d
	if title = strings.TrimSpace(title); title != "" {
		q += "&text=" + url.QueryEscape(title)
	}
	return "https://calendar.google.com/calendar/render?" + q
}
