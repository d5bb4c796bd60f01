package attributes

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHeaders is returned when Builder.Headers is called without names
	ErrNoHeaders = errors.New("at least one header is required")

	// ErrNoPatterns is returned when Builder.RequestPathPatterns is called without patterns
	ErrNoPatterns = errors.New("at least one pattern is required")
)

// Builder accumulates the requirements of one policy declaration.
//
// Validation happens eagerly; the first error is kept and returned by Build.
// Calling Headers or RequestPathPatterns again replaces the previous value.
type Builder struct {
	headers  map[string]struct{}
	patterns map[string]PathPattern
	err      error
}

// NewBuilder creates a builder that requires nothing until configured
func NewBuilder() *Builder {
	return &Builder{}
}

// Headers sets the header names whose values must be captured
func (b *Builder) Headers(names ...string) *Builder {
	if b.err != nil {
		return b
	}
	if len(names) == 0 {
		b.err = ErrNoHeaders
		return b
	}

	headers := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			b.err = fmt.Errorf("%w: empty header name", ErrNoHeaders)
			return b
		}
		headers[name] = struct{}{}
	}
	b.headers = headers
	return b
}

// RequestPathPatterns sets the path patterns whose evaluation must be supported
func (b *Builder) RequestPathPatterns(patterns ...PathPattern) *Builder {
	if b.err != nil {
		return b
	}
	if len(patterns) == 0 {
		b.err = ErrNoPatterns
		return b
	}

	set := make(map[string]PathPattern, len(patterns))
	for _, p := range patterns {
		if p == nil {
			b.err = fmt.Errorf("%w: nil pattern", ErrNoPatterns)
			return b
		}
		set[patternKey(p)] = p
	}
	b.patterns = set
	return b
}

// Build returns an immutable snapshot of the configured requirements
func (b *Builder) Build() (RequirementSet, error) {
	if b.err != nil {
		return RequirementSet{}, b.err
	}

	out := RequirementSet{}
	if len(b.headers) > 0 {
		out.headers = make(map[string]struct{}, len(b.headers))
		for h := range b.headers {
			out.headers[h] = struct{}{}
		}
	}
	if len(b.patterns) > 0 {
		out.patterns = make(map[string]PathPattern, len(b.patterns))
		for k, p := range b.patterns {
			out.patterns[k] = p
		}
	}
	return out, nil
}
