// Package google pushes due-dated tasks to a Google Calendar as all-day events.
package google

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/index"
)

// Scopes are the OAuth scopes calendar sync needs.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// NewClient finds the calendar named calendarName and returns a client bound
// to it. opts usually carries option.WithHTTPClient from auth.GoogleClient.
func NewClient(ctx context.Context, calendarName string, idx *index.EventIndex, log *zap.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	var calendarID string
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			calendarID = item.Id
			break
		}
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar %q: %w", calendarName, apperr.ErrNotFound)
	}

	return NewCalendarClient(srv, calendarID, idx, log), nil
}
