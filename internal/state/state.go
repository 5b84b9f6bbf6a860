package state

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/auditwatch/auditwatch/internal/config"
)

// State represents the persisted UI state
type State struct {
	// Last watched project
	LastProject string `yaml:"last_project,omitempty"`

	// Last active tab
	ActiveTab int `yaml:"active_tab"`

	// Last focused pane (0 = projects, 1 = details)
	FocusedPane int `yaml:"focused_pane"`

	// Event filter if any
	EventFilter string `yaml:"event_filter,omitempty"`

	// Event follow mode
	EventFollow bool `yaml:"event_follow"`

	// Window size (for restoration)
	WindowWidth  int `yaml:"window_width,omitempty"`
	WindowHeight int `yaml:"window_height,omitempty"`
}

// DefaultState returns a new state with default values
func DefaultState() *State {
	return &State{
		ActiveTab:   0,
		FocusedPane: 0,
		EventFollow: true,
	}
}

// StatePath returns the full path to the state file
func StatePath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.yml"), nil
}

// Load loads the state from the default path
func Load() (*State, error) {
	path, err := StatePath()
	if err != nil {
		return DefaultState(), err
	}
	return LoadFile(path)
}

// LoadFile loads the state from path. A missing or unreadable file yields
// the defaults.
func LoadFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), nil
		}
		return DefaultState(), err
	}

	state := DefaultState()
	if err := yaml.Unmarshal(data, state); err != nil {
		return DefaultState(), err
	}

	return state, nil
}

// Save writes the state to the default path
func Save(state *State) error {
	path, err := StatePath()
	if err != nil {
		return err
	}
	return SaveFile(path, state)
}

// SaveFile writes the state to path atomically
func SaveFile(path string, state *State) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}

	// Write atomically: write to temp file, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
