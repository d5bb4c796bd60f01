package attributes

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// RequirementSet describes which header names and which path patterns must be
// made available to evaluate a set of policy declarations.
//
// A RequirementSet is immutable and built only through a Builder or Merge.
// The zero value is equivalent to NoAttributes.
type RequirementSet struct {
	headers  map[string]struct{}
	patterns map[string]PathPattern
}

// NoAttributes returns the set that requires nothing; it is the identity for Merge.
func NoAttributes() RequirementSet {
	return RequirementSet{}
}

// RequireHeaders reports whether any header must be captured
func (s RequirementSet) RequireHeaders() bool {
	return len(s.headers) > 0
}

// Headers returns the required header names, sorted
func (s RequirementSet) Headers() []string {
	out := make([]string, 0, len(s.headers))
	for h := range s.headers {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// RequireRequestPath reports whether any path pattern must be evaluated
func (s RequirementSet) RequireRequestPath() bool {
	return len(s.patterns) > 0
}

// RequestPathPatterns returns the required path patterns ordered by kind and expression
func (s RequirementSet) RequestPathPatterns() []PathPattern {
	keys := s.patternKeys()
	out := make([]PathPattern, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.patterns[k])
	}
	return out
}

func (s RequirementSet) patternKeys() []string {
	keys := make([]string, 0, len(s.patterns))
	for k := range s.patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Requires reports whether the attribute kind is required.
// It panics for a nil attribute, which is outside the closed set of kinds.
func (s RequirementSet) Requires(attr Attribute) bool {
	if attr == nil {
		panic(fmt.Errorf("%w: %v", ErrUnsupportedAttribute, attr))
	}
	return attr.requiredBy(s)
}

// Merge returns the union of s and other.
//
// If either side requires headers, the result holds the union of both header
// sets; likewise for path patterns. Since a kind is required exactly when its
// set is non-empty, this is a plain union: associative, commutative and
// idempotent, with NoAttributes as identity.
func (s RequirementSet) Merge(other RequirementSet) RequirementSet {
	out := RequirementSet{}

	if s.RequireHeaders() || other.RequireHeaders() {
		out.headers = make(map[string]struct{}, len(s.headers)+len(other.headers))
		for h := range s.headers {
			out.headers[h] = struct{}{}
		}
		for h := range other.headers {
			out.headers[h] = struct{}{}
		}
	}

	if s.RequireRequestPath() || other.RequireRequestPath() {
		out.patterns = make(map[string]PathPattern, len(s.patterns)+len(other.patterns))
		for k, p := range s.patterns {
			out.patterns[k] = p
		}
		for k, p := range other.patterns {
			if _, ok := out.patterns[k]; !ok {
				out.patterns[k] = p
			}
		}
	}

	return out
}

// Merge folds any number of sets into one. With no arguments it returns NoAttributes.
func Merge(sets ...RequirementSet) RequirementSet {
	out := NoAttributes()
	for _, s := range sets {
		out = out.Merge(s)
	}
	return out
}

// Equal reports whether both sets require the same headers and patterns
func (s RequirementSet) Equal(other RequirementSet) bool {
	if len(s.headers) != len(other.headers) || len(s.patterns) != len(other.patterns) {
		return false
	}
	for h := range s.headers {
		if _, ok := other.headers[h]; !ok {
			return false
		}
	}
	for k := range s.patterns {
		if _, ok := other.patterns[k]; !ok {
			return false
		}
	}
	return true
}

// Hash returns a hash consistent with Equal
func (s RequirementSet) Hash() uint64 {
	h := blake3.New()
	for _, name := range s.Headers() {
		_, _ = h.WriteString("h:" + name + "\x00")
	}
	for _, k := range s.patternKeys() {
		_, _ = h.WriteString("p:" + k + "\x00")
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func (s RequirementSet) String() string {
	patterns := make([]string, 0, len(s.patterns))
	for _, p := range s.RequestPathPatterns() {
		patterns = append(patterns, p.String())
	}
	return fmt.Sprintf("RequirementSet{headers=[%s], requestPathPatterns=[%s]}",
		strings.Join(s.Headers(), ", "), strings.Join(patterns, ", "))
}
