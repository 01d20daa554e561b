package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/sqlitestore"
)

// recorder counts calls and can fail them.
type recorder struct {
	gateway.Gateway
	calls      []string
	idempotent []bool
	fail       error
}

func (r *recorder) note(op string, ctx context.Context) error {
	r.calls = append(r.calls, op)
	r.idempotent = append(r.idempotent, gateway.Idempotent(ctx))
	return r.fail
}

func (r *recorder) Select(ctx context.Context, c string, f gateway.Filter, o ...gateway.Order) ([]json.RawMessage, error) {
	if err := r.note("select", ctx); err != nil {
		return nil, err
	}
	return r.Gateway.Select(ctx, c, f, o...)
}

func (r *recorder) Insert(ctx context.Context, c string, row any) (json.RawMessage, error) {
	if err := r.note("insert", ctx); err != nil {
		return nil, err
	}
	return r.Gateway.Insert(ctx, c, row)
}

func (r *recorder) Update(ctx context.Context, c string, p map[string]any, f gateway.Filter) error {
	if err := r.note("update", ctx); err != nil {
		return err
	}
	return r.Gateway.Update(ctx, c, p, f)
}

func (r *recorder) Delete(ctx context.Context, c string, f gateway.Filter) error {
	if err := r.note("delete", ctx); err != nil {
		return err
	}
	return r.Gateway.Delete(ctx, c, f)
}

func newStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := sqlitestore.Open(":memory:", model.User{ID: "ann"}, model.RoleUser)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rec := &recorder{Gateway: db}
	return New(rec, model.AuthContext{UserID: "ann", Role: model.RoleUser}, Options{}), rec
}

func day(s string) *time.Time {
	d, _ := model.ParseDue(s)
	return d
}

func TestCreateRejectsBlankTitleWithoutCalling(t *testing.T) {
	s, rec := newStore(t)
	_, err := s.Create(context.Background(), model.NewTask{Title: "   "})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, rec.calls)
}

func TestCreateReturnsConfirmedTask(t *testing.T) {
	s, rec := newStore(t)
	due := time.Date(2026, 5, 4, 17, 30, 0, 0, time.UTC)
	task, err := s.Create(context.Background(), model.NewTask{Title: "  buy milk ", Due: &due, Category: model.CategoryShop})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.Provisional())
	assert.Equal(t, "buy milk", task.Title)
	assert.Equal(t, "ann", task.UserID)
	assert.Equal(t, model.CategoryShop, task.Category)
	require.NotNil(t, task.Due)
	assert.Equal(t, "2026-05-04", task.Due.Format(model.DateLayout))
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, []string{"insert"}, rec.calls)
	assert.Equal(t, []bool{false}, rec.idempotent)
}

func TestListOrder(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, model.NewTask{Title: "a", Due: day("2026-03-02")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "b"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "c", Due: day("2026-03-01")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "d"})
	require.NoError(t, err)
	require.NoError(t, s.SetCompletion(ctx, a.ID, true))

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	var titles []string
	for _, task := range tasks {
		titles = append(titles, task.Title)
	}
	// undated tasks: newest first
	assert.Equal(t, []string{"c", "d", "b", "a"}, titles)
}

func TestSetCompletionAndDeleteAreIdempotent(t *testing.T) {
	s, rec := newStore(t)
	ctx := context.Background()
	task, err := s.Create(ctx, model.NewTask{Title: "x"})
	require.NoError(t, err)

	require.NoError(t, s.SetCompletion(ctx, task.ID, true))
	require.NoError(t, s.SetCompletion(ctx, task.ID, true))
	require.NoError(t, s.Delete(ctx, task.ID))
	require.NoError(t, s.Delete(ctx, task.ID))
	require.NoError(t, s.Delete(ctx, "no-such-id"))

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, []bool{false, true, true, true, true, true, true}, rec.idempotent)
}

func TestBulkOperations(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		_, err := s.Create(ctx, model.NewTask{Title: title})
		require.NoError(t, err)
	}
	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetCompletion(ctx, tasks[0].ID, true))

	require.NoError(t, s.DeleteCompleted(ctx))
	tasks, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.False(t, task.Completed)
	}

	require.NoError(t, s.CompleteAll(ctx))
	tasks, err = s.List(ctx)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.True(t, task.Completed)
	}
}

func TestCountOpen(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	n, err := s.CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	a, err := s.Create(ctx, model.NewTask{Title: "a"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "b"})
	require.NoError(t, err)
	require.NoError(t, s.SetCompletion(ctx, a.ID, true))

	n, err = s.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnauthenticatedStore(t *testing.T) {
	_, rec := newStore(t)
	s := New(rec, model.AuthContext{}, Options{})
	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	assert.ErrorIs(t, s.Delete(context.Background(), "x"), apperr.ErrAuthRequired)
	assert.Empty(t, rec.calls)
}

func TestGatewayErrorsPassThrough(t *testing.T) {
	s, rec := newStore(t)
	rec.fail = &apperr.GatewayError{Op: "select tasks", Status: 503, Err: errors.New("down")}
	_, err := s.List(context.Background())
	var gerr *apperr.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.True(t, gerr.Retryable())
}

func TestDecodeTaskAcceptsTimestampDue(t *testing.T) {
	task, err := DecodeTask(json.RawMessage(`{"id":"1","title":"x","is_completed":false,"due_date":"2026-04-01T00:00:00+00:00","category":"bogus","user_id":"u","created_at":"2026-03-01T10:00:00.123456+00:00"}`))
	require.NoError(t, err)
	require.NotNil(t, task.Due)
	assert.Equal(t, "2026-04-01", task.Due.Format(model.DateLayout))
	assert.Equal(t, model.CategoryHome, task.Category)
	assert.Equal(t, 10, task.CreatedAt.Hour())
}

func TestFetchRoleFailsSafe(t *testing.T) {
	db, err := sqlitestore.Open(":memory:", model.User{ID: "root"}, model.RoleAdmin)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	assert.Equal(t, model.RoleAdmin, FetchRole(ctx, db, "root", nil))
	assert.Equal(t, model.RoleUser, FetchRole(ctx, db, "nobody", nil))

	broken := &recorder{Gateway: db, fail: errors.New("boom")}
	assert.Equal(t, model.RoleUser, FetchRole(ctx, broken, "root", nil))
}

func TestResolveAuth(t *testing.T) {
	db, err := sqlitestore.Open(":memory:", model.User{ID: "root", Email: "root@example.com"}, model.RoleAdmin)
	require.NoError(t, err)
	defer db.Close()
	ac, err := ResolveAuth(context.Background(), db, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, model.AuthContext{UserID: "root", Email: "root@example.com", Role: model.RoleAdmin}, ac)

	anon, err := sqlitestore.Open(":memory:", model.User{}, model.RoleUser)
	require.NoError(t, err)
	defer anon.Close()
	_, err = ResolveAuth(context.Background(), anon, 0, nil)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}
