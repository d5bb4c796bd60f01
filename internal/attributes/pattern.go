package attributes

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern is returned when a path pattern cannot be compiled
var ErrInvalidPattern = errors.New("invalid path pattern")

// PatternKind selects how a path pattern expression is interpreted
type PatternKind string

const (
	// PatternKindRegexp is an RE2 expression that must match the whole path
	PatternKindRegexp PatternKind = "regex"

	// PatternKindGlob is a glob where '*' does not cross '/' and '**' does
	PatternKindGlob PatternKind = "glob"
)

// PathPattern is an opaque matcher over request paths.
// Two patterns with the same Kind and String are considered the same pattern.
type PathPattern interface {
	fmt.Stringer

	// Kind returns how the expression is interpreted
	Kind() PatternKind

	// Match reports whether path satisfies the pattern
	Match(path string) bool
}

// ParsePathPattern compiles expr according to kind
func ParsePathPattern(kind PatternKind, expr string) (PathPattern, error) {
	switch kind {
	case PatternKindRegexp:
		return NewRegexpPattern(expr)
	case PatternKindGlob, "":
		return NewGlobPattern(expr)
	default:
		return nil, fmt.Errorf("%w: unknown pattern kind %q (supported: regex, glob)", ErrInvalidPattern, kind)
	}
}

// MustPathPattern is like ParsePathPattern but panics on error.
// Intended for patterns known at compile time.
func MustPathPattern(kind PatternKind, expr string) PathPattern {
	p, err := ParsePathPattern(kind, expr)
	if err != nil {
		panic(err)
	}
	return p
}

func patternKey(p PathPattern) string {
	return string(p.Kind()) + ":" + p.String()
}

type regexpPattern struct {
	expr string
	re   *regexp.Regexp
}

// NewRegexpPattern compiles an anchored regular expression pattern
func NewRegexpPattern(expr string) (PathPattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidPattern)
	}
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &regexpPattern{expr: expr, re: re}, nil
}

func (p *regexpPattern) String() string { return p.expr }
func (p *regexpPattern) Kind() PatternKind { return PatternKindRegexp }
func (p *regexpPattern) Match(s string) bool { return p.re.MatchString(s) }

type globPattern struct {
	expr string
	g    glob.Glob
}

// NewGlobPattern compiles a path glob using '/' as the separator
func NewGlobPattern(expr string) (PathPattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidPattern)
	}
	g, err := glob.Compile(expr, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &globPattern{expr: expr, g: g}, nil
}

func (p *globPattern) String() string { return p.expr }
func (p *globPattern) Kind() PatternKind { return PatternKindGlob }
func (p *globPattern) Match(s string) bool { return p.g.Match(s) }
