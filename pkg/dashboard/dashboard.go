// Package dashboard assembles the start screen: a greeting, the number of
// open tasks and the temperature outside.
package dashboard

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/weather"
)

// FallbackName greets users without an e-mail address.
const FallbackName = "Friend"

// Counter counts the user's incomplete tasks.
type Counter interface {
	CountOpen(ctx context.Context) (int, error)
}

// Thermometer reports current conditions at a position.
type Thermometer interface {
	Current(ctx context.Context, lat, lon float64) (weather.Conditions, error)
}

type Summary struct {
	Greeting  string `json:"greeting"`
	Name      string `json:"name"`
	OpenTasks int    `json:"open_tasks"`
	// Temperature is nil when the weather could not be fetched.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Headline renders "Good morning, Ann."
func (s Summary) Headline() string {
	return s.Greeting + ", " + s.Name + "."
}

type Options struct {
	Latitude  float64
	Longitude float64
	Now       func() time.Time
	Logger    *zap.Logger
}

type Dashboard struct {
	tasks   Counter
	weather Thermometer
	auth    model.AuthContext
	lat     float64
	lon     float64
	now     func() time.Time
	log     *zap.Logger
}

// New builds a dashboard. weather may be nil, in which case no temperature
// is ever shown.
func New(tasks Counter, weather Thermometer, auth model.AuthContext, opts Options) *Dashboard {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dashboard{
		tasks:   tasks,
		weather: weather,
		auth:    auth,
		lat:     opts.Latitude,
		lon:     opts.Longitude,
		now:     opts.Now,
		log:     logging.OrNop(opts.Logger),
	}
}

// Summary fetches the task count and the temperature concurrently. Only a
// failed count is an error.
func (d *Dashboard) Summary(ctx context.Context) (Summary, error) {
	if !d.auth.Authenticated() {
		return Summary{}, apperr.ErrAuthRequired
	}
	s := Summary{
		Greeting: Greeting(d.now().Hour()),
		Name:     DisplayName(d.auth.Email),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := d.tasks.CountOpen(gctx)
		if err != nil {
			return err
		}
		s.OpenTasks = n
		return nil
	})
	if d.weather != nil {
		g.Go(func() error {
			cond, err := d.weather.Current(gctx, d.lat, d.lon)
			if err != nil {
				d.log.Warn("dashboard weather unavailable", zap.Error(err))
				return nil
			}
			t := cond.Temperature
			s.Temperature = &t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Greeting picks the salutation for an hour of the day.
func Greeting(hour int) string {
	switch {
	case hour < 6:
		return "Good night"
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// DisplayName is the local part of email with its first letter upper-cased.
func DisplayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return FallbackName
	}
	return cases.Title(language.Und, cases.NoLower).String(local)
}
