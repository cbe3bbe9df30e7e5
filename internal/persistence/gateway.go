package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/tune"
)

// Snapshot is the durable regulator state. It round-trips losslessly through
// Save and Load.
type Snapshot struct {
	RegulatorState      domain.RegulatorState             `json:"regulator_state"`
	CurrentPerformance  domain.SystemPerformanceMetrics   `json:"current_performance"`
	BaselinePerformance domain.SystemPerformanceMetrics   `json:"baseline_performance"`
	PerformanceHistory  []domain.SystemPerformanceMetrics `json:"performance_history"`
	CurrentParameters   tune.Params                       `json:"current_parameters"`
	LastSaved           time.Time                         `json:"last_saved"`
}

// Gateway is the only component that reads or writes the durable snapshot
// file. Single-instance ownership of the file is assumed; there is no
// cross-process locking.
type Gateway struct {
	path string
	now  func() time.Time
}

// NewGateway creates a gateway over the given snapshot path.
func NewGateway(path string) *Gateway {
	return &Gateway{path: path, now: time.Now}
}

// Save writes the snapshot atomically: serialize to a temp file in the same
// directory, fsync, then rename over the target. A crashed save never leaves
// a torn file for the next Load.
func (g *Gateway) Save(snap Snapshot) error {
	snap.LastSaved = g.now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(g.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, g.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	log.Debug().Str("path", g.path).Msg("State snapshot saved")
	return nil
}

// Load restores the snapshot from disk. A missing file is a normal cold
// start; a malformed file is logged and also degrades to a cold start. The
// second return value reports whether a snapshot was actually restored.
func (g *Gateway) Load() (Snapshot, bool) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", g.path).Msg("No snapshot found, cold start")
		} else {
			log.Warn().Err(err).Str("path", g.path).Msg("Snapshot unreadable, cold start")
		}
		return coldStart(), false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", g.path).Msg("Snapshot malformed, cold start")
		return coldStart(), false
	}
	if snap.CurrentParameters == nil {
		snap.CurrentParameters = tune.DefaultParams()
	}

	log.Info().
		Str("path", g.path).
		Time("last_saved", snap.LastSaved).
		Int("history_entries", len(snap.PerformanceHistory)).
		Msg("State snapshot restored")
	return snap, true
}

// coldStart returns the defaults used when no usable snapshot exists.
func coldStart() Snapshot {
	return Snapshot{
		RegulatorState:    domain.DefaultRegulatorState(),
		CurrentParameters: tune.DefaultParams(),
	}
}
