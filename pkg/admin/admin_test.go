package admin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/sqlitestore"
	"github.com/harrisonrobin/taskdeck/pkg/taskstore"
)

type fixture struct {
	console *Console
	ann     *taskstore.Store
	bob     *taskstore.Store
}

// newFixture shares one database between admin ann and plain user bob.
func newFixture(t *testing.T) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.db")
	open := func(id string, role model.Role) *sqlitestore.Store {
		db, err := sqlitestore.Open(path, model.User{ID: id}, role)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}
	annDB := open("ann", model.RoleAdmin)
	bobDB := open("bob", model.RoleUser)

	annAuth := model.AuthContext{UserID: "ann", Role: model.RoleAdmin}
	return fixture{
		console: New(annDB, annAuth, Options{}),
		ann:     taskstore.New(annDB, annAuth, taskstore.Options{}),
		bob:     taskstore.New(bobDB, model.AuthContext{UserID: "bob", Role: model.RoleUser}, taskstore.Options{}),
	}
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestTasksAcrossUsersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.bob.Create(ctx, model.NewTask{Title: "Buy Milk"})
	require.NoError(t, err)
	_, err = f.ann.Create(ctx, model.NewTask{Title: "review budget"})
	require.NoError(t, err)
	_, err = f.bob.Create(ctx, model.NewTask{Title: "milkshake"})
	require.NoError(t, err)

	all, err := f.console.Tasks(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"milkshake", "review budget", "Buy Milk"}, titles(all))

	found, err := f.console.Tasks(ctx, "  MILK ")
	require.NoError(t, err)
	assert.Equal(t, []string{"milkshake", "Buy Milk"}, titles(found))
}

func TestDeleteAnyTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.bob.Create(ctx, model.NewTask{Title: "spam"})
	require.NoError(t, err)

	require.NoError(t, f.console.DeleteTask(ctx, task.ID))
	left, err := f.bob.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestToggleRoleAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done, err := f.bob.Create(ctx, model.NewTask{Title: "a"})
	require.NoError(t, err)
	_, err = f.ann.Create(ctx, model.NewTask{Title: "b"})
	require.NoError(t, err)
	require.NoError(t, f.bob.SetCompletion(ctx, done.ID, true))

	stats, err := f.console.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Completed: 1, Admins: 1}, stats)

	role, err := f.console.ToggleRole(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)

	profiles, err := f.console.Profiles(ctx, "BO")
	require.NoError(t, err)
	assert.Equal(t, []model.Profile{{ID: "bob", Role: model.RoleAdmin}}, profiles)

	stats, err = f.console.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Admins)

	role, err = f.console.ToggleRole(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, role)

	_, err = f.console.ToggleRole(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConsoleRequiresAdmin(t *testing.T) {
	db, err := sqlitestore.Open(":memory:", model.User{ID: "bob"}, model.RoleUser)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	c := New(db, model.AuthContext{UserID: "bob", Role: model.RoleUser}, Options{})
	_, err = c.Tasks(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, c.DeleteTask(ctx, "x"), apperr.ErrForbidden)
	_, err = c.ToggleRole(ctx, "bob")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = c.Stats(ctx)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = New(db, model.AuthContext{}, Options{}).Profiles(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}
