// Package monitor records which resolution strategy produced each capability.
//
// The monitor is purely observational: it never influences resolution order. Its
// report exists so that fallbacks which never fire can be found and removed as the
// host application's internals settle across releases.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// NoStrategy is the reserved index recorded when every strategy for a capability
// failed. Real strategies are numbered from 1.
const NoStrategy = 0

// StrategyStats holds the counters for one strategy index.
type StrategyStats struct {
	Attempts    int64     `json:"attempts" yaml:"attempts"`
	Successes   int64     `json:"successes" yaml:"successes"`
	LastSuccess time.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"`
}

// CapabilityStats holds the counters for one capability.
type CapabilityStats struct {
	Calls      int64                 `json:"calls" yaml:"calls"`
	Declared   int                   `json:"declared" yaml:"declared"`
	Strategies map[int]StrategyStats `json:"strategies" yaml:"strategies"`
}

// Report is a nested-map snapshot: capability -> counters -> strategy index -> stats.
type Report map[string]CapabilityStats

type bucket struct {
	mu    sync.Mutex
	stats CapabilityStats
}

// Monitor accumulates strategy outcomes. The zero value is not usable; call New.
type Monitor struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New returns an empty, isolated monitor.
func New() *Monitor {
	return &Monitor{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

var (
	defaultOnce    sync.Once
	defaultMonitor *Monitor
)

// Default returns the process-wide monitor.
func Default() *Monitor {
	defaultOnce.Do(func() {
		defaultMonitor = New()
	})
	return defaultMonitor
}

func (m *Monitor) bucket(capability string) *bucket {
	m.mu.RLock()
	b, ok := m.buckets[capability]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[capability]; ok {
		return b
	}
	b = &bucket{stats: CapabilityStats{Strategies: make(map[int]StrategyStats)}}
	m.buckets[capability] = b
	return b
}

// Declare registers how many strategies a capability has, so strategies that are
// never reached still show up as redundant.
func (m *Monitor) Declare(capability string, strategies int) {
	if m == nil || strategies < 0 {
		return
	}
	b := m.bucket(capability)
	b.mu.Lock()
	b.stats.Declared = strategies
	b.mu.Unlock()
}

// Record counts one attempt of strategy index for capability. A resolution read
// ends with exactly one success or one NoStrategy record, and that is what the
// call counter counts.
func (m *Monitor) Record(capability string, index int, success bool) {
	if m == nil || index < 0 {
		return
	}
	b := m.bucket(capability)
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats.Strategies[index]
	s.Attempts++
	if success {
		s.Successes++
		s.LastSuccess = m.now()
	}
	b.stats.Strategies[index] = s

	if success || index == NoStrategy {
		b.stats.Calls++
	}
}

// Stats returns a copy of one capability's counters.
func (m *Monitor) Stats(capability string) (CapabilityStats, bool) {
	if m == nil {
		return CapabilityStats{}, false
	}
	m.mu.RLock()
	b, ok := m.buckets[capability]
	m.mu.RUnlock()
	if !ok {
		return CapabilityStats{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyStats(b.stats), true
}

// Report returns a deep copy of every capability's counters.
func (m *Monitor) Report() Report {
	out := make(Report)
	if m == nil {
		return out
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, b := range m.buckets {
		b.mu.Lock()
		out[name] = copyStats(b.stats)
		b.mu.Unlock()
	}
	return out
}

// Redundant lists the strategy indices of capability that never succeeded: every
// declared index without a success once the capability has been called, plus any
// attempted index without a success. The result is sorted.
func (m *Monitor) Redundant(capability string) []int {
	stats, ok := m.Stats(capability)
	if !ok {
		return nil
	}
	return stats.Redundant()
}

// Redundant computes the dead strategy indices of one capability's counters.
func (s CapabilityStats) Redundant() []int {
	dead := make(map[int]bool)
	if s.Calls > 0 {
		for i := 1; i <= s.Declared; i++ {
			if s.Strategies[i].Successes == 0 {
				dead[i] = true
			}
		}
	}
	for i, st := range s.Strategies {
		if i != NoStrategy && st.Attempts > 0 && st.Successes == 0 {
			dead[i] = true
		}
	}
	out := make([]int, 0, len(dead))
	for i := range dead {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Capabilities returns the names the monitor has seen, sorted.
func (m *Monitor) Capabilities() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all counters. Declared strategy counts survive: resolvers declare
// them once, at construction.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, b := range m.buckets {
		b.mu.Lock()
		if b.stats.Declared == 0 {
			delete(m.buckets, name)
		} else {
			b.stats = CapabilityStats{Declared: b.stats.Declared, Strategies: make(map[int]StrategyStats)}
		}
		b.mu.Unlock()
	}
}

func copyStats(s CapabilityStats) CapabilityStats {
	out := CapabilityStats{
		Calls:      s.Calls,
		Declared:   s.Declared,
		Strategies: make(map[int]StrategyStats, len(s.Strategies)),
	}
	for i, st := range s.Strategies {
		out.Strategies[i] = st
	}
	return out
}
