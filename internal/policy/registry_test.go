package policy

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

type recordingObserver struct {
	mu        sync.Mutex
	evaluated map[string]bool
	ended     []string
}

func (o *recordingObserver) EvaluationStarted(ctx context.Context, _ Phase, _ *pointcut.Parameters) (context.Context, EvaluationProbe) {
	return ctx, o
}

func (o *recordingObserver) PointcutEvaluated(d *Declaration, matched bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluated[d.Name] = matched
}

func (o *recordingObserver) End(applicable []*Declaration) {
	o.ended = Names(applicable)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(nil)

	tests := []struct {
		name string
		decl *Declaration
	}{
		{"missing name", &Declaration{Pointcut: AnyPointcut{}}},
		{"missing pointcut", &Declaration{Name: "p"}},
		{"bad phase", &Declaration{Name: "p", Phase: "response", Pointcut: AnyPointcut{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.decl); !errors.Is(err, ErrInvalidDeclaration) {
				t.Errorf("expected ErrInvalidDeclaration, got %v", err)
			}
		})
	}

	t.Run("default phase is source", func(t *testing.T) {
		d := &Declaration{Name: "default-phase", Pointcut: AnyPointcut{}}
		if err := r.Register(d); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if got := Names(r.Declarations(PhaseSource)); len(got) != 1 || got[0] != "default-phase" {
			t.Errorf("Declarations(source) = %v, want [default-phase]", got)
		}
		if d.Phase != "" {
			t.Errorf("caller's declaration was modified: Phase = %q", d.Phase)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		d := &Declaration{Name: "default-phase", Pointcut: AnyPointcut{}}
		err := r.Register(d)
		if !errors.Is(err, ErrInvalidDeclaration) {
			t.Errorf("expected ErrInvalidDeclaration, got %v", err)
		}
		if d.Phase != "" {
			t.Errorf("rejected declaration was modified: Phase = %q", d.Phase)
		}
	})
}

func TestRegistry_RegisterConcurrently(t *testing.T) {
	r := NewRegistry(nil)
	shared := &Declaration{Name: "shared", Pointcut: AnyPointcut{}}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(shared)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrInvalidDeclaration):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful registration, got %d", ok)
	}
	if got := r.Declarations(PhaseSource); len(got) != 1 {
		t.Errorf("expected 1 source declaration, got %d", len(got))
	}
}

func TestRegistry_EndToEnd(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{evaluated: make(map[string]bool)}
	r := NewRegistry(observer)

	authReq, err := attributes.NewBuilder().Headers("Authorization").Build()
	if err != nil {
		t.Fatal(err)
	}
	apiPattern := attributes.MustPathPattern(attributes.PatternKindGlob, "/api/*")
	pathReq, err := attributes.NewBuilder().RequestPathPatterns(apiPattern).Build()
	if err != nil {
		t.Fatal(err)
	}

	var seenByP1 *pointcut.Parameters
	p1 := &Declaration{
		Name:         "p1-auth",
		Phase:        PhaseSource,
		Requirements: authReq,
		Pointcut: pointcut.Func(func(p *pointcut.Parameters) bool {
			seenByP1 = p
			return p.Headers().Has("Authorization")
		}),
	}
	p2 := &Declaration{
		Name:         "p2-api",
		Phase:        PhaseSource,
		Requirements: pathReq,
		Pointcut:     NewPathPointcut(apiPattern),
	}
	outbound := &Declaration{
		Name:         "outbound",
		Phase:        PhaseOperation,
		Requirements: attributes.NoAttributes(),
		Pointcut:     AnyPointcut{},
	}
	for _, d := range []*Declaration{p1, p2, outbound} {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register(%s) failed: %v", d.Name, err)
		}
	}

	merged := r.Requirements(PhaseSource)
	if !merged.RequireHeaders() || !slices.Equal(merged.Headers(), []string{"Authorization"}) {
		t.Errorf("unexpected merged headers: %v", merged.Headers())
	}
	if !merged.RequireRequestPath() || len(merged.RequestPathPatterns()) != 1 {
		t.Errorf("unexpected merged patterns: %v", merged.RequestPathPatterns())
	}
	if !r.Requirements(PhaseOperation).Equal(attributes.NoAttributes()) {
		t.Error("operation phase should require nothing")
	}

	params, err := pointcut.NewParameters(pointcut.Location("listener"), "/api/users", "GET",
		pointcut.WithHeaders(pointcut.EmptyHeaders().With("Authorization", "Bearer x")))
	if err != nil {
		t.Fatal(err)
	}

	applicable := r.Applicable(ctx, PhaseSource, params)
	if got := Names(applicable); !slices.Equal(got, []string{"p1-auth", "p2-api"}) {
		t.Errorf("applicable = %v", got)
	}

	if seenByP1.Path() != "" {
		t.Errorf("non path-aware pointcut saw path %q", seenByP1.Path())
	}
	if v, _ := seenByP1.Headers().First("authorization"); v != "Bearer x" {
		t.Errorf("p1 did not see its required header, got %q", v)
	}

	if !observer.evaluated["p1-auth"] || !observer.evaluated["p2-api"] {
		t.Errorf("observer saw %v", observer.evaluated)
	}
	if _, ok := observer.evaluated["outbound"]; ok {
		t.Error("operation declarations must not be evaluated for the source phase")
	}
	if !slices.Equal(observer.ended, []string{"p1-auth", "p2-api"}) {
		t.Errorf("observer end = %v", observer.ended)
	}

	t.Run("path outside pattern", func(t *testing.T) {
		other, _ := pointcut.NewParameters(pointcut.Location("listener"), "/health", "GET")
		if got := Names(r.Applicable(ctx, PhaseSource, other)); len(got) != 0 {
			t.Errorf("applicable = %v", got)
		}
	})
}

func TestParsePhase(t *testing.T) {
	for in, want := range map[string]Phase{"": PhaseSource, "source": PhaseSource, "operation": PhaseOperation} {
		got, err := ParsePhase(in)
		if err != nil || got != want {
			t.Errorf("ParsePhase(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePhase("response"); err == nil {
		t.Error("expected error for unknown phase")
	}
}
