package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/calc"
	"github.com/harrisonrobin/taskdeck/pkg/calendar"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/tasks"
)

// fail writes err as {"error": message} with the status of its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func (s *Server) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}

func badRequest(field, msg string) error {
	return &apperr.ValidationError{Field: field, Msg: msg}
}

// ensureLoaded fetches the list once before the first read.
func (s *Server) ensureLoaded(c *gin.Context) bool {
	if s.deps.Tasks.Loaded() {
		return true
	}
	if err := s.deps.Tasks.Refresh(c.Request.Context()); err != nil {
		s.reported(err)
		s.fail(c, err)
		return false
	}
	return true
}

func (s *Server) writeTasks(c *gin.Context, status int) {
	c.JSON(status, gin.H{"tasks": s.deps.Tasks.Tasks()})
}

func (s *Server) handleListTasks(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := s.deps.Tasks.Refresh(c.Request.Context()); err != nil {
			s.reported(err)
			s.fail(c, err)
			return
		}
	} else if !s.ensureLoaded(c) {
		return
	}
	if err := s.takeNotice(); err != nil {
		c.JSON(http.StatusOK, gin.H{"tasks": s.deps.Tasks.Tasks(), "error": apperr.Message(err)})
		return
	}
	s.writeTasks(c, http.StatusOK)
}

type newTaskRequest struct {
	Title    string `json:"title"`
	Due      string `json:"due"`
	Category string `json:"category"`
}

func (r newTaskRequest) task() (model.NewTask, error) {
	due, err := model.ParseDue(r.Due)
	if err != nil {
		return model.NewTask{}, err
	}
	category, err := model.ParseCategory(r.Category)
	if err != nil {
		return model.NewTask{}, err
	}
	return model.NewTask{Title: r.Title, Due: due, Category: category}, nil
}

// handleCreateTask answers once the gateway confirmed the task.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req newTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("body", err.Error()))
		return
	}
	n, err := req.task()
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.deps.Tasks.Add(c.Request.Context(), n)
	if err != nil {
		s.reported(err)
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (s *Server) handleSetCompletion(c *gin.Context) {
	var req struct {
		Completed *bool `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("body", err.Error()))
		return
	}
	if req.Completed == nil {
		s.fail(c, badRequest("completed", "is required"))
		return
	}
	if !s.ensureLoaded(c) {
		return
	}
	op, err := s.deps.Tasks.SetCompletion(c.Request.Context(), c.Param("id"), *req.Completed)
	s.finish(c, op, err, http.StatusOK)
}

func (s *Server) handleToggle(c *gin.Context) {
	if !s.ensureLoaded(c) {
		return
	}
	op, err := s.deps.Tasks.Toggle(c.Request.Context(), c.Param("id"))
	s.finish(c, op, err, http.StatusOK)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if !s.ensureLoaded(c) {
		return
	}
	op, err := s.deps.Tasks.Delete(c.Request.Context(), c.Param("id"))
	s.finish(c, op, err, http.StatusOK)
}

func (s *Server) handleCompleteAll(c *gin.Context) {
	if !s.ensureLoaded(c) {
		return
	}
	op, err := s.deps.Tasks.CompleteAll(c.Request.Context())
	s.finish(c, op, err, http.StatusOK)
}

func (s *Server) handleDeleteCompleted(c *gin.Context) {
	if !s.ensureLoaded(c) {
		return
	}
	op, err := s.deps.Tasks.DeleteCompleted(c.Request.Context())
	s.finish(c, op, err, http.StatusOK)
}

// finish waits for a mutation to be reconciled and answers with the list.
func (s *Server) finish(c *gin.Context, op *tasks.Op, err error, status int) {
	if err == nil {
		err = op.Wait(c.Request.Context())
	}
	if err != nil {
		s.reported(err)
		s.fail(c, err)
		return
	}
	s.writeTasks(c, status)
}

type planRequest struct {
	Goal     string `json:"goal"`
	Due      string `json:"due"`
	Category string `json:"category"`
}

func (s *Server) handlePlan(c *gin.Context) {
	if s.deps.Planner == nil {
		s.unavailable(c, "AI planning")
		return
	}
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("body", err.Error()))
		return
	}
	due, err := model.ParseDue(req.Due)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.deps.Planner.Expand(c.Request.Context(), req.Goal, due, model.Category(req.Category))
	if err != nil {
		s.reported(err)
	}
	if err != nil && len(res.Created) == 0 {
		s.fail(c, err)
		return
	}
	body := gin.H{"steps": res.Steps, "created": res.Created}
	if err != nil {
		// some steps were created before the failure
		body["error"] = apperr.Message(err)
		c.JSON(apperr.HTTPStatus(err), body)
		return
	}
	c.JSON(http.StatusCreated, body)
}

func (s *Server) handleCalc(c *gin.Context) {
	var req struct {
		Expression string `json:"expression"`
		Keys       string `json:"keys"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("body", err.Error()))
		return
	}
	if req.Keys != "" {
		k := calc.New()
		if err := k.PressAll(req.Keys); err != nil {
			s.fail(c, badRequest("keys", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"display": k.Display(), "error": k.Errored()})
		return
	}
	v, err := calc.Evaluate(req.Expression)
	if errors.Is(err, calc.ErrNotFinite) {
		err = badRequest("expression", err.Error())
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": calc.Format(v), "value": v})
}

func (s *Server) handleWeather(c *gin.Context) {
	if s.deps.Weather == nil {
		s.unavailable(c, "weather")
		return
	}
	city := strings.TrimSpace(c.Query("city"))
	if city == "" {
		city = s.deps.DefaultCity
	}
	rep, err := s.deps.Weather.Lookup(c.Request.Context(), city)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleCalendar(c *gin.Context) {
	now := s.deps.Now()
	month, err := calendar.ParseMonth(c.Query("month"), now)
	if err != nil {
		s.fail(c, badRequest("month", "expected YYYY-MM"))
		return
	}
	if !s.ensureLoaded(c) {
		return
	}
	g := calendar.Month(month, now, s.deps.Tasks.Tasks())
	c.JSON(http.StatusOK, gin.H{"title": g.Title(), "weekdays": calendar.Weekdays, "weeks": g.Weeks})
}

func (s *Server) handleDashboard(c *gin.Context) {
	if s.deps.Dashboard == nil {
		s.unavailable(c, "dashboard")
		return
	}
	sum, err := s.deps.Dashboard.Summary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"headline":    sum.Headline(),
		"greeting":    sum.Greeting,
		"name":        sum.Name,
		"open_tasks":  sum.OpenTasks,
		"temperature": sum.Temperature,
	})
}

func (s *Server) console(c *gin.Context) (AdminConsole, bool) {
	if s.deps.Admin == nil {
		s.fail(c, apperr.ErrForbidden)
		return nil, false
	}
	return s.deps.Admin, true
}

func (s *Server) handleAdminTasks(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	list, err := con.Tasks(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

func (s *Server) handleAdminDeleteTask(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	if err := con.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	// the console writes past the coordinator; the task may have been ours
	if err := s.deps.Tasks.Refresh(c.Request.Context()); err != nil {
		s.log.Warn("reload after admin delete failed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminProfiles(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	profiles, err := con.Profiles(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) handleAdminToggleRole(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	role, err := con.ToggleRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Profile{ID: c.Param("id"), Role: role})
}

func (s *Server) handleAdminStats(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	stats, err := con.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
