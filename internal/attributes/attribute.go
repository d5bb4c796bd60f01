// Package attributes describes which request attributes a policy declaration
// needs extracted before its pointcut can be evaluated, and merges those
// descriptions across declarations.
package attributes

import (
	"errors"
	"fmt"
)

// ErrUnsupportedAttribute is raised for an attribute kind outside the closed set
var ErrUnsupportedAttribute = errors.New("unsupported attribute kind")

// Attribute is a kind of request attribute a policy may require.
// The set is closed: RequestPath and Headers are the only values.
type Attribute interface {
	fmt.Stringer

	requiredBy(s RequirementSet) bool
}

type requestPathAttribute struct{}

func (requestPathAttribute) String() string { return "request_path" }

func (requestPathAttribute) requiredBy(s RequirementSet) bool {
	return s.RequireRequestPath()
}

type headersAttribute struct{}

func (headersAttribute) String() string { return "headers" }

func (headersAttribute) requiredBy(s RequirementSet) bool {
	return s.RequireHeaders()
}

var (
	// RequestPath is required when path patterns must be evaluated
	RequestPath Attribute = requestPathAttribute{}

	// Headers is required when header values must be captured
	Headers Attribute = headersAttribute{}
)

// All lists every attribute kind
func All() []Attribute {
	return []Attribute{RequestPath, Headers}
}

// ParseAttribute maps a configuration name to an attribute kind
func ParseAttribute(name string) (Attribute, error) {
	for _, a := range All() {
		if a.String() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAttribute, name)
}
