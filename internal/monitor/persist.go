package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is the on-disk form of a report.
type Snapshot struct {
	Version   string           `json:"version" yaml:"version"`
	RunID     string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	TakenAt   time.Time        `json:"taken_at" yaml:"taken_at"`
	Report    Report           `json:"report" yaml:"report"`
	Redundant map[string][]int `json:"redundant,omitempty" yaml:"redundant,omitempty"`
}

const snapshotVersion = "1.0"

// Snapshot captures the current report together with each capability's
// redundant strategy indices.
func (m *Monitor) Snapshot(runID string) Snapshot {
	report := m.Report()
	redundant := make(map[string][]int)
	for name, stats := range report {
		if dead := stats.Redundant(); len(dead) > 0 {
			redundant[name] = dead
		}
	}
	now := time.Now
	if m != nil && m.now != nil {
		now = m.now
	}
	return Snapshot{
		Version:   snapshotVersion,
		RunID:     runID,
		TakenAt:   now(),
		Report:    report,
		Redundant: redundant,
	}
}

// Save writes a JSON snapshot to path, creating parent directories.
func (m *Monitor) Save(path, runID string) error {
	data, err := json.MarshalIndent(m.Snapshot(runID), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal monitor snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot reads a JSON snapshot written by Save.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse monitor snapshot: %w", err)
	}
	if snap.Report == nil {
		snap.Report = make(Report)
	}
	return snap, nil
}

// Merge adds a report's counters into the monitor. Declarations take the larger
// of the two values; last-success times take the later one.
func (m *Monitor) Merge(r Report) {
	if m == nil {
		return
	}
	for name, in := range r {
		b := m.bucket(name)
		b.mu.Lock()
		b.stats.Calls += in.Calls
		if in.Declared > b.stats.Declared {
			b.stats.Declared = in.Declared
		}
		for i, st := range in.Strategies {
			cur := b.stats.Strategies[i]
			cur.Attempts += st.Attempts
			cur.Successes += st.Successes
			if st.LastSuccess.After(cur.LastSuccess) {
				cur.LastSuccess = st.LastSuccess
			}
			b.stats.Strategies[i] = cur
		}
		b.mu.Unlock()
	}
}

// WriteYAML exports the snapshot as YAML for external tooling.
func (s Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}
