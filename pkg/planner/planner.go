// Package planner expands a free-text goal into a handful of tasks with the
// help of a text generation model.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const (
	MinSteps = 3
	MaxSteps = 6

	DefaultStepDelay = 300 * time.Millisecond
	DefaultTimeout   = 30 * time.Second
)

const promptTemplate = `You are a planning assistant. Break the goal below into between %d and %d short, concrete, actionable steps, in the order they should be done.
Each step is a single imperative sentence of at most 80 characters.
Reply with a JSON array of strings and nothing else: no numbering, no markdown, no commentary.

Goal: %s`

// Generator returns the raw text a model produced for prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Creator creates one task and waits for it to be confirmed.
type Creator interface {
	Add(ctx context.Context, n model.NewTask) (model.Task, error)
}

type Options struct {
	// StepDelay separates consecutive creations.
	StepDelay time.Duration
	// Timeout bounds the generation request.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Expander turns goals into tasks.
type Expander struct {
	gen     Generator
	tasks   Creator
	delay   time.Duration
	timeout time.Duration
	log     *zap.Logger
}

func New(gen Generator, tasks Creator, opts Options) *Expander {
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Expander{gen: gen, tasks: tasks, delay: opts.StepDelay, timeout: opts.Timeout, log: logging.OrNop(opts.Logger)}
}

// Result reports what an expansion produced. Created holds the confirmed
// tasks even when a later step failed.
type Result struct {
	Steps   []string
	Created []model.Task
}

// Expand asks the model once for steps toward goal and creates one task per
// step, one after another. A failed step ends the expansion; steps already
// created stay.
func (e *Expander) Expand(ctx context.Context, goal string, due *time.Time, category model.Category) (Result, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Result{}, &apperr.ValidationError{Field: "goal", Msg: "must not be empty"}
	}
	category, err := model.ParseCategory(string(category))
	if err != nil {
		return Result{}, err
	}

	steps, err := e.plan(ctx, goal)
	if err != nil {
		return Result{}, err
	}
	e.log.Debug("plan received", zap.String("goal", goal), zap.Int("steps", len(steps)))

	res := Result{Steps: steps}
	for i, step := range steps {
		if i > 0 && e.delay > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
		task, err := e.tasks.Add(ctx, model.NewTask{Title: step, Due: due, Category: category})
		if err != nil {
			e.log.Warn("plan step failed, stopping", zap.Int("step", i+1), zap.Int("of", len(steps)), zap.Error(err))
			return res, fmt.Errorf("step %d of %d (%q): %w", i+1, len(steps), step, err)
		}
		res.Created = append(res.Created, task)
	}
	return res, nil
}

func (e *Expander) plan(ctx context.Context, goal string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	raw, err := e.gen.Generate(ctx, Prompt(goal))
	if err != nil {
		var aerr *apperr.AIResponseError
		if errors.As(err, &aerr) {
			return nil, err
		}
		return nil, &apperr.AIResponseError{Msg: "generation failed", Retryable: ctx.Err() != nil, Err: err}
	}
	return ParseSteps(raw)
}

// Prompt renders the instruction sent for goal.
func Prompt(goal string) string {
	return fmt.Sprintf(promptTemplate, MinSteps, MaxSteps, goal)
}

// ParseSteps decodes a model reply into steps. Code fences around the JSON
// are ignored; anything else that is not a non-empty array of non-empty
// strings is rejected. Replies longer than MaxSteps are cut.
func ParseSteps(raw string) ([]string, error) {
	text := stripFence(raw)
	var items []any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, &apperr.AIResponseError{Msg: "reply is not a JSON list", Err: err}
	}
	if len(items) == 0 {
		return nil, &apperr.AIResponseError{Msg: "reply contains no steps"}
	}
	steps := make([]string, 0, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, &apperr.AIResponseError{Msg: fmt.Sprintf("step %d is not text", i+1)}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &apperr.AIResponseError{Msg: fmt.Sprintf("step %d is empty", i+1)}
		}
		steps = append(steps, s)
	}
	if len(steps) > MaxSteps {
		steps = steps[:MaxSteps]
	}
	return steps, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// language tag, e.g. ```json
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
