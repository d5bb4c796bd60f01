package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/google/cel-go/cel"

	celhelpers "github.com/alechenninger/httppolicy/internal/cel"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// ErrInvalidExpression is returned when a CEL pointcut expression does not compile to a bool
var ErrInvalidExpression = errors.New("invalid pointcut expression")

// CELCompiler compiles pointcut expressions. Programs for identical
// expressions are shared; the compiler is safe for concurrent use.
type CELCompiler struct {
	env *cel.Env

	mu    sync.Mutex
	cache *lru.Cache
}

// NewCELCompiler creates a compiler that keeps up to maxPrograms compiled programs.
// A maxPrograms of zero means no limit.
func NewCELCompiler(maxPrograms int) (*CELCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("masked_path", cel.StringType),
		cel.Variable("headers", celhelpers.HeadersType),
		celhelpers.HTTPHelpersLibrary(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELCompiler{
		env:   env,
		cache: lru.New(maxPrograms),
	}, nil
}

// Compile builds a pointcut from expr
func (c *CELCompiler) Compile(expr string, considersPath bool, logger *slog.Logger) (*CELPointcut, error) {
	prg, err := c.program(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CELPointcut{
		expr:          expr,
		program:       prg,
		considersPath: considersPath,
		logger:        logger,
	}, nil
}

func (c *CELCompiler) program(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache.Get(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: %q must evaluate to bool, got %s", ErrInvalidExpression, expr, ast.OutputType())
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	c.cache.Add(expr, prg)
	return prg, nil
}

// CELPointcut evaluates a CEL expression over path, method, masked_path and headers.
// Evaluation errors count as no match.
type CELPointcut struct {
	expr          string
	program       cel.Program
	considersPath bool
	logger        *slog.Logger
}

var _ pointcut.PathAware = (*CELPointcut)(nil)

// Matches implements pointcut.Pointcut
func (p *CELPointcut) Matches(params *pointcut.Parameters) bool {
	out, _, err := p.program.Eval(requestView(params))
	if err != nil {
		p.logger.Warn("pointcut expression failed", "expression", p.expr, "error", err)
		return false
	}

	matched, ok := out.Value().(bool)
	return ok && matched
}

// ConsidersPath implements pointcut.PathAware
func (p *CELPointcut) ConsidersPath() bool {
	return p.considersPath
}

// String returns the expression
func (p *CELPointcut) String() string {
	return p.expr
}
