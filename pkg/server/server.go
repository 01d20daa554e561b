// Package server exposes one session's task deck as a JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/admin"
	"github.com/harrisonrobin/taskdeck/pkg/dashboard"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/planner"
	"github.com/harrisonrobin/taskdeck/pkg/tasks"
	"github.com/harrisonrobin/taskdeck/pkg/weather"
)

type Planner interface {
	Expand(ctx context.Context, goal string, due *time.Time, category model.Category) (planner.Result, error)
}

type WeatherLookup interface {
	Lookup(ctx context.Context, city string) (weather.Report, error)
}

type Dashboard interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
}

type AdminConsole interface {
	Tasks(ctx context.Context, query string) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Profiles(ctx context.Context, query string) ([]model.Profile, error)
	ToggleRole(ctx context.Context, id string) (model.Role, error)
	Stats(ctx context.Context) (admin.Stats, error)
}

// Deps are the components behind the routes. Tasks is required; a nil
// Planner or Weather answers 503.
type Deps struct {
	Tasks       *tasks.Coordinator
	Planner     Planner
	Weather     WeatherLookup
	DefaultCity string
	Dashboard   Dashboard
	Admin       AdminConsole
	Now         func() time.Time
	Logger      *zap.Logger
}

type Server struct {
	deps   Deps
	log    *zap.Logger
	router *gin.Engine

	unsubscribe func()
	mu          sync.Mutex
	// notice is the last failed task operation no reply has reported yet.
	notice error
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, log: logging.OrNop(deps.Logger)}
	s.unsubscribe = deps.Tasks.Subscribe(s.observe)

	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)

	api := router.Group("/api")
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.POST("/tasks/complete-all", s.handleCompleteAll)
		api.DELETE("/tasks/completed", s.handleDeleteCompleted)
		api.PATCH("/tasks/:id", s.handleSetCompletion)
		api.POST("/tasks/:id/toggle", s.handleToggle)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.POST("/plan", s.handlePlan)
		api.POST("/calc", s.handleCalc)
		api.GET("/weather", s.handleWeather)
		api.GET("/calendar", s.handleCalendar)
		api.GET("/dashboard", s.handleDashboard)
	}
	adm := api.Group("/admin")
	{
		adm.GET("/tasks", s.handleAdminTasks)
		adm.DELETE("/tasks/:id", s.handleAdminDeleteTask)
		adm.GET("/profiles", s.handleAdminProfiles)
		adm.POST("/profiles/:id/toggle-role", s.handleAdminToggleRole)
		adm.GET("/stats", s.handleAdminStats)
	}

	s.router = router
	return s
}

// Handler returns the routes for embedding or tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx ends, then drains in-flight requests and
// background task operations.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.deps.Tasks.Wait()
	s.unsubscribe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// observe records failures of task operations, including background ones
// no request is waiting for.
func (s *Server) observe(ev tasks.Event) {
	if ev.Err == nil {
		return
	}
	s.log.Warn("task operation failed", zap.Error(ev.Err))
	s.mu.Lock()
	s.notice = ev.Err
	s.mu.Unlock()
}

// takeNotice returns and forgets the unreported failure.
func (s *Server) takeNotice() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.notice
	s.notice = nil
	return err
}

// reported forgets the failure if err, already sent to a client, carries it.
func (s *Server) reported(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice != nil && errors.Is(err, s.notice) {
		s.notice = nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}
