package bootstrap

import "fmt"

// State is a bootstrap phase. Transitions only move forward; Failed is terminal.
type State int32

const (
	Idle State = iota
	AwaitingReadiness
	TableBuilt
	CriticalResolved
	FullyResolved
	Failed
)

var stateNames = map[State]string{
	Idle:              "idle",
	AwaitingReadiness: "awaiting_readiness",
	TableBuilt:        "table_built",
	CriticalResolved:  "critical_resolved",
	FullyResolved:     "fully_resolved",
	Failed:            "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == FullyResolved || s == Failed
}
