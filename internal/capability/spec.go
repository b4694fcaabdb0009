// Package capability resolves named host capabilities from the module cache through
// ordered, declarative fallback strategies.
package capability

import (
	"fmt"
)

// Phase says when bootstrap resolves a capability.
type Phase int

const (
	// PhaseCritical capabilities identify the current user and gate readiness.
	PhaseCritical Phase = iota
	// PhaseFull capabilities are resolved after readiness is announced.
	PhaseFull
)

func (p Phase) String() string {
	switch p {
	case PhaseCritical:
		return "critical"
	case PhaseFull:
		return "full"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Kind classifies what a capability is.
type Kind string

const (
	KindCollection  Kind = "collection"
	KindFunction    Kind = "function"
	KindConstructor Kind = "constructor"
	KindEventBus    Kind = "eventbus"
	KindObject      Kind = "object"
	KindComposite   Kind = "composite"
)

// Spec declares one capability.
type Spec struct {
	Name       string
	Phase      Phase
	Kind       Kind
	Valid      Validity
	Strategies []Strategy
}

// Validate checks a capability table for duplicate names, empty strategy lists and
// composite references to capabilities that are not in the table.
func Validate(specs []Spec) error {
	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("capability with empty name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate capability %q", s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range specs {
		if len(s.Strategies) == 0 {
			return fmt.Errorf("capability %q has no strategies", s.Name)
		}
		for i, st := range s.Strategies {
			if st.Ref == "" {
				continue
			}
			if st.Ref == s.Name {
				return fmt.Errorf("capability %q strategy %d refers to itself", s.Name, i+1)
			}
			if !names[st.Ref] {
				return fmt.Errorf("capability %q strategy %d refers to unknown %q", s.Name, i+1, st.Ref)
			}
		}
	}
	return nil
}
