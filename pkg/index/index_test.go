package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.json")
	idx, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, idx.TaskIDs())

	require.NoError(t, idx.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "clean index must not be written")

	idx.Set("b", "ev-b")
	idx.Set("a", "ev-a")
	require.NoError(t, idx.Save())

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "ev-a", again.Get("a"))
	assert.Equal(t, []string{"a", "b"}, again.TaskIDs())

	again.Remove("a")
	again.Remove("missing")
	require.NoError(t, again.Save())

	third, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, third.TaskIDs())
	assert.Equal(t, "", third.Get("a"))
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestNewEventIndexUsesConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKDECK_HOME", dir)
	idx, err := NewEventIndex()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "events.json"), idx.Path)
}
