package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantfold/basisarb/internal/model"
)

// stateVersion guards the on-disk schema. Unknown versions fail fast rather
// than silently reinterpreting a live position.
const stateVersion = 1

// PositionState is the durable record of the strategy's open position. When
// Open is false, Direction is none and Pair is zero.
type PositionState struct {
	Version           int              `json:"version"`
	Key               string           `json:"symbol"`
	Open              bool             `json:"open"`
	Direction         Direction        `json:"direction"`
	Pair              model.HedgedPair `json:"pair"`
	LastOpenBasisBps  *float64         `json:"last_open_basis_bps,omitempty"`
	LastCloseBasisBps *float64         `json:"last_close_basis_bps,omitempty"`
	LastActions       json.RawMessage  `json:"last_actions,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewPositionState returns the closed state for a strategy key.
func NewPositionState(key string) PositionState {
	return PositionState{
		Version:   stateVersion,
		Key:       key,
		Direction: DirectionNone,
		UpdatedAt: time.Now().UTC(),
	}
}

// MarkOpen flips the state to an open position.
func (s *PositionState) MarkOpen(dir Direction, pair model.HedgedPair, basisBps float64, actions json.RawMessage) {
	s.Open = true
	s.Direction = dir
	s.Pair = pair
	s.LastOpenBasisBps = &basisBps
	s.LastActions = actions
	s.UpdatedAt = time.Now().UTC()
}

// MarkClosed flips the state back to flat.
func (s *PositionState) MarkClosed(basisBps float64, actions json.RawMessage) {
	s.Open = false
	s.Direction = DirectionNone
	s.Pair = model.HedgedPair{}
	s.LastCloseBasisBps = &basisBps
	s.LastActions = actions
	s.UpdatedAt = time.Now().UTC()
}

// StateStore reads and writes the position state file.
type StateStore struct {
	path string
}

func NewStateStore(path string) *StateStore {
	if path == "" {
		path = "arb_state.json"
	}
	return &StateStore{path: path}
}

// Load returns the stored state, or a fresh one for key when no file exists.
// A malformed or unknown-version file is an error.
func (st *StateStore) Load(key string) (PositionState, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPositionState(key), nil
		}
		return PositionState{}, fmt.Errorf("read state file: %w", err)
	}

	var state PositionState
	if err := json.Unmarshal(data, &state); err != nil {
		return PositionState{}, fmt.Errorf("parse state file %s: %w", st.path, err)
	}
	if state.Version != stateVersion {
		return PositionState{}, fmt.Errorf("unsupported state file version %d in %s", state.Version, st.path)
	}
	return state, nil
}

// Save writes the state crash-safely: temp file in the same directory,
// fsync, then rename over the real file.
func (st *StateStore) Save(state PositionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, ".arb_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
