package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	st, err := LoadFile(filepath.Join(t.TempDir(), "state.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultState(), st)
	assert.True(t, st.EventFollow)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditwatch", "state.yml")
	want := &State{
		LastProject:  "shop-api",
		ActiveTab:    3,
		FocusedPane:  1,
		EventFilter:  "error",
		EventFollow:  false,
		WindowWidth:  160,
		WindowHeight: 48,
	}
	require.NoError(t, SaveFile(path, want))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")
	require.NoError(t, os.WriteFile(path, []byte("active_tab: [oops"), 0o644))

	st, err := LoadFile(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultState(), st)
}

func TestStatePathUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := StatePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "auditwatch", "state.yml"), path)
}
