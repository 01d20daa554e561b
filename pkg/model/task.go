package model

import (
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
)

// DateLayout is the wire and CLI format of a due date.
const DateLayout = "2006-01-02"

// ProvisionalPrefix marks IDs synthesized locally before the gateway confirms
// a creation. Gateway IDs are bare UUIDs and never carry it.
const ProvisionalPrefix = "local-"

type Category string

const (
	CategoryHome  Category = "home"
	CategoryWork  Category = "work"
	CategoryStudy Category = "study"
	CategoryShop  Category = "shop"
)

// Categories lists the accepted categories in display order.
var Categories = []Category{CategoryHome, CategoryWork, CategoryStudy, CategoryShop}

// ParseCategory accepts a category name; empty means home.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryHome, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &apperr.ValidationError{Field: "category", Msg: "must be one of home, work, study, shop"}
}

// Task is a single item of a user's task list.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	Due       *time.Time `json:"due,omitempty"`
	Category  Category   `json:"category"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Provisional reports whether the task has not been confirmed by the gateway yet.
func (t Task) Provisional() bool {
	return IsProvisional(t.ID)
}

// Overdue reports whether an incomplete task's due date lies before the day of now.
func (t Task) Overdue(now time.Time) bool {
	if t.Completed || t.Due == nil {
		return false
	}
	y, m, d := now.Date()
	return t.Due.Before(time.Date(y, m, d, 0, 0, 0, 0, t.Due.Location()))
}

func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// NewTask carries the user-editable fields of a creation.
type NewTask struct {
	Title    string
	Due      *time.Time
	Category Category
}

// Normalize trims the title, truncates the due date to a day and defaults the category.
func (n NewTask) Normalize() (NewTask, error) {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return n, &apperr.ValidationError{Field: "title", Msg: "must not be empty"}
	}
	if n.Category == "" {
		n.Category = CategoryHome
	}
	if _, err := ParseCategory(string(n.Category)); err != nil {
		return n, err
	}
	if n.Due != nil {
		d := DateOnly(*n.Due)
		n.Due = &d
	}
	return n, nil
}

// DateOnly drops the clock part of t, keeping the calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDue parses an optional YYYY-MM-DD date; empty yields nil.
func ParseDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, &apperr.ValidationError{Field: "due", Msg: "expected YYYY-MM-DD"}
	}
	return &t, nil
}

// Less orders incomplete before complete, then due date ascending with
// undated tasks last, then newest first.
func Less(a, b Task) bool {
	if a.Completed != b.Completed {
		return !a.Completed
	}
	switch {
	case a.Due != nil && b.Due == nil:
		return true
	case a.Due == nil && b.Due != nil:
		return false
	case a.Due != nil && b.Due != nil && !a.Due.Equal(*b.Due):
		return a.Due.Before(*b.Due)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Sort orders tasks in place with Less.
func Sort(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })
}
