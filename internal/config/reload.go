// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"sync/atomic"

	"github.com/sentryd/sentryd/internal/logging"
)

// Manager owns the single active Snapshot and provides atomic, lock-free
// reads for the tick loop while a reload is prepared on the side.
type Manager struct {
	mainPath string
	dir      string

	current atomic.Pointer[Snapshot]
	log     *logging.Logger
}

// NewManager loads the initial Snapshot and returns a Manager wrapping it.
// A load failure here is fatal: there is no prior Snapshot to fall back to.
func NewManager(mainPath, dir string) (*Manager, []Warning, error) {
	snap, warnings, err := Load(mainPath, dir)
	if err != nil {
		return nil, warnings, err
	}
	m := &Manager{
		mainPath: mainPath,
		dir:      dir,
		log:      logging.WithComponent("config"),
	}
	m.current.Store(snap)
	return m, warnings, nil
}

// NewManagerWithSnapshot wraps an already-built Snapshot in a Manager whose
// Reload re-reads from mainPath/dir exactly like one built by NewManager.
// Used by cmd/sentryd, which has already loaded the snapshot, and by tests.
func NewManagerWithSnapshot(snap *Snapshot, mainPath, dir string) *Manager {
	m := &Manager{mainPath: mainPath, dir: dir, log: logging.WithComponent("config")}
	m.current.Store(snap)
	return m
}

// Current returns the Snapshot presently in effect. Safe for concurrent use.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Reload re-reads the config files and, if the result validates, swaps it in
// atomically and returns it. On failure the previously active Snapshot stays
// in effect and Reload returns the error describing why.
func (m *Manager) Reload() (*Snapshot, []Warning, error) {
	snap, warnings, err := Load(m.mainPath, m.dir)
	if err != nil {
		m.log.WithError(err).Error("config reload rejected, keeping previous snapshot")
		return nil, warnings, fmt.Errorf("reload: %w", err)
	}
	for _, w := range warnings {
		m.log.Warn("config warning", "detail", w.String())
	}
	m.current.Store(snap)
	m.log.Info("config reloaded", "detectors", len(snap.Detectors), "patterns", len(snap.CompiledPatterns))
	return snap, warnings, nil
}
