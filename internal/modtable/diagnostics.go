package modtable

import (
	"sync"

	"modscout/internal/logging"
	"modscout/internal/modcache"

	"go.uber.org/zap"
)

// DefaultWarnBudget caps how many distinct module ids get their own warning.
const DefaultWarnBudget = 50

// Diagnostics reports module evaluation failures once per id. After the budget of
// distinct ids is spent a single suppression notice is logged and later failures
// are only counted.
type Diagnostics struct {
	mu         sync.Mutex
	budget     int
	first      map[modcache.ModuleID]string
	failures   int64
	suppressed bool
	log        *zap.Logger
}

// NewDiagnostics creates a sink with the given warning budget (<= 0 means default).
func NewDiagnostics(budget int) *Diagnostics {
	if budget <= 0 {
		budget = DefaultWarnBudget
	}
	return &Diagnostics{
		budget: budget,
		first:  make(map[modcache.ModuleID]string),
		log:    logging.Get(logging.CategoryTable),
	}
}

// ModuleFailed records that id's factory failed with reason. It reports whether a
// warning was emitted for this call.
func (d *Diagnostics) ModuleFailed(id modcache.ModuleID, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failures++
	if _, seen := d.first[id]; seen {
		return false
	}
	if len(d.first) >= d.budget {
		if !d.suppressed {
			d.suppressed = true
			d.log.Warn("suppressing further module evaluation warnings", zap.Int("budget", d.budget))
		}
		return false
	}
	d.first[id] = reason
	d.log.Warn("module evaluation failed", zap.String("module", string(id)), zap.String("reason", reason))
	return true
}

// Failures returns the first recorded failure reason per warned module id.
func (d *Diagnostics) Failures() map[modcache.ModuleID]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[modcache.ModuleID]string, len(d.first))
	for id, reason := range d.first {
		out[id] = reason
	}
	return out
}

// Count returns the total number of failed evaluations, repeats included.
func (d *Diagnostics) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}
