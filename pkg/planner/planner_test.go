package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/tasks"
)

type fakeGen struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (g *fakeGen) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	return g.reply, g.err
}

// listStore is a minimal tasks.Store whose nth Create fails.
type listStore struct {
	mu      sync.Mutex
	failAt  int
	creates []string
	tasks   []model.Task
}

func (s *listStore) List(ctx context.Context) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Task(nil), s.tasks...)
	model.Sort(out)
	return out, nil
}

func (s *listStore) Create(ctx context.Context, n model.NewTask) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, n.Title)
	if len(s.creates) == s.failAt {
		return model.Task{}, &apperr.GatewayError{Op: "insert tasks", Status: 500, Err: errors.New("boom")}
	}
	t := model.Task{
		ID:        fmt.Sprintf("id-%d", len(s.creates)),
		Title:     n.Title,
		Due:       n.Due,
		Category:  n.Category,
		UserID:    "ann",
		CreatedAt: time.Date(2026, 1, 1, 0, len(s.creates), 0, 0, time.UTC),
	}
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *listStore) SetCompletion(context.Context, string, bool) error { return nil }
func (s *listStore) Delete(context.Context, string) error              { return nil }
func (s *listStore) CompleteAll(context.Context) error                 { return nil }
func (s *listStore) DeleteCompleted(context.Context) error             { return nil }

func TestExpandStopsAtFailedStep(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := &listStore{failAt: 3}
	coord := tasks.New(store, model.AuthContext{UserID: "ann"}, tasks.Options{})
	gen := &fakeGen{reply: "```json\n[\"Pick a date\", \"Book venue\", \"Send invites\", \"Order cake\"]\n```"}
	e := New(gen, coord, Options{StepDelay: time.Millisecond})

	res, err := e.Expand(context.Background(), "throw a party", nil, model.CategoryHome)
	require.Error(t, err)
	var gerr *apperr.GatewayError
	assert.ErrorAs(t, err, &gerr)
	coord.Wait()

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, []string{"Pick a date", "Book venue", "Send invites"}, store.creates)
	assert.Len(t, res.Steps, 4)
	require.Len(t, res.Created, 2)

	var left []string
	for _, task := range coord.Tasks() {
		left = append(left, task.Title)
	}
	assert.ElementsMatch(t, []string{"Pick a date", "Book venue"}, left)
}

func TestExpandCreatesEveryStep(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := &listStore{}
	coord := tasks.New(store, model.AuthContext{UserID: "ann"}, tasks.Options{})
	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	gen := &fakeGen{reply: `["a","b","c"]`}
	e := New(gen, coord, Options{})

	res, err := e.Expand(context.Background(), "  learn Go ", &due, model.CategoryStudy)
	require.NoError(t, err)
	coord.Wait()
	require.Len(t, res.Created, 3)
	for _, task := range res.Created {
		assert.Equal(t, model.CategoryStudy, task.Category)
		require.NotNil(t, task.Due)
		assert.True(t, due.Equal(*task.Due))
	}
	assert.Contains(t, gen.prompt, "Goal: learn Go")
}

func TestExpandRejectsEmptyGoal(t *testing.T) {
	gen := &fakeGen{}
	e := New(gen, &listCreator{}, Options{})
	_, err := e.Expand(context.Background(), "   ", nil, "")
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, gen.calls)
}

func TestExpandWrapsGeneratorFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("dial tcp: refused")}
	c := &listCreator{}
	e := New(gen, c, Options{})
	_, err := e.Expand(context.Background(), "x", nil, "")
	var aerr *apperr.AIResponseError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, c.titles)
}

type listCreator struct{ titles []string }

func (c *listCreator) Add(ctx context.Context, n model.NewTask) (model.Task, error) {
	c.titles = append(c.titles, n.Title)
	return model.Task{ID: n.Title, Title: n.Title}, nil
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "plain", raw: `["a", " b "]`, want: []string{"a", "b"}},
		{name: "fenced", raw: "```json\n[\"a\"]\n```", want: []string{"a"}},
		{name: "bare fence", raw: "```\n[\"a\"]```", want: []string{"a"}},
		{name: "truncated to max", raw: `["1","2","3","4","5","6","7","8"]`, want: []string{"1", "2", "3", "4", "5", "6"}},
		{name: "prose", raw: "Sure! Here are the steps", wantErr: true},
		{name: "object", raw: `{"steps":["a"]}`, wantErr: true},
		{name: "empty list", raw: `[]`, wantErr: true},
		{name: "empty item", raw: `["a", "  "]`, wantErr: true},
		{name: "number item", raw: `["a", 2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSteps(tt.raw)
			if tt.wantErr {
				var aerr *apperr.AIResponseError
				assert.ErrorAs(t, err, &aerr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
