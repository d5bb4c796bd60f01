package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// Registry holds policy declarations. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	declarations []*Declaration
	names        map[string]struct{}
	observer     Observer
}

// NewRegistry creates an empty registry. A nil observer disables observation.
func NewRegistry(observer Observer) *Registry {
	if observer == nil {
		observer = NoopObserver()
	}
	return &Registry{
		names:    make(map[string]struct{}),
		observer: observer,
	}
}

// Register adds a copy of a declaration. Names must be unique.
// An empty phase is stored as PhaseSource; d itself is left unchanged.
func (r *Registry) Register(d *Declaration) error {
	if err := d.Validate(); err != nil {
		return err
	}

	stored := *d
	if stored.Phase == "" {
		stored.Phase = PhaseSource
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[stored.Name]; exists {
		return fmt.Errorf("%w: duplicate policy name %s", ErrInvalidDeclaration, stored.Name)
	}
	r.names[stored.Name] = struct{}{}
	r.declarations = append(r.declarations, &stored)
	return nil
}

// Declarations returns the declarations for a phase in registration order
func (r *Registry) Declarations(phase Phase) []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Declaration
	for _, d := range r.declarations {
		if d.Phase == phase {
			out = append(out, d)
		}
	}
	return out
}

// Requirements merges the requirements of every declaration in a phase
func (r *Registry) Requirements(phase Phase) attributes.RequirementSet {
	decls := r.Declarations(phase)
	sets := make([]attributes.RequirementSet, len(decls))
	for i, d := range decls {
		sets[i] = d.Requirements
	}
	return attributes.Merge(sets...)
}

// Applicable returns the declarations of a phase whose pointcut matches params.
// Every declaration is evaluated; nothing is cached.
func (r *Registry) Applicable(ctx context.Context, phase Phase, params *pointcut.Parameters) []*Declaration {
	ctx, probe := r.observer.EvaluationStarted(ctx, phase, params)

	var out []*Declaration
	for _, d := range r.Declarations(phase) {
		matched := d.Applies(params)
		probe.PointcutEvaluated(d, matched)
		if matched {
			out = append(out, d)
		}
	}

	probe.End(out)
	return out
}

// Names returns the declaration names, sorted
func Names(decls []*Declaration) []string {
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}
