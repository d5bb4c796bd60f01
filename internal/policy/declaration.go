// Package policy holds policy declarations, the pointcuts that gate them, and
// a registry that aggregates their attribute requirements per phase.
package policy

import (
	"errors"
	"fmt"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// ErrInvalidDeclaration is returned for declarations missing a name or pointcut
var ErrInvalidDeclaration = errors.New("invalid policy declaration")

// Phase identifies when a policy applies
type Phase string

const (
	// PhaseSource applies to requests received by a listener
	PhaseSource Phase = "source"

	// PhaseOperation applies to requests sent by a requester
	PhaseOperation Phase = "operation"
)

// ParsePhase parses a phase name; empty means PhaseSource
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseSource, "":
		return PhaseSource, nil
	case PhaseOperation:
		return PhaseOperation, nil
	default:
		return "", fmt.Errorf("unknown phase %q (supported: source, operation)", s)
	}
}

// Declaration is a policy attached to a phase, gated by a pointcut, together
// with the request attributes the pointcut needs.
type Declaration struct {
	Name         string
	Phase        Phase
	Requirements attributes.RequirementSet
	Pointcut     pointcut.Pointcut
}

// Validate checks the declaration is usable
func (d *Declaration) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDeclaration)
	}
	if d.Pointcut == nil {
		return fmt.Errorf("%w: %s has no pointcut", ErrInvalidDeclaration, d.Name)
	}
	if _, err := ParsePhase(string(d.Phase)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, d.Name, err)
	}
	return nil
}

// Applies evaluates the declaration's pointcut. Pointcuts that do not consider
// the path see parameters with the path removed.
func (d *Declaration) Applies(params *pointcut.Parameters) bool {
	if !pointcut.ConsidersPath(d.Pointcut) {
		params = pointcut.PathInsensitive(params)
	}
	return d.Pointcut.Matches(params)
}
