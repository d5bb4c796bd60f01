// Package pointcut provides the parameters a policy pointcut is evaluated
// against for a single HTTP request or response, and the optional
// path-sensitivity capability a pointcut may declare.
//
// Parameters are immutable once constructed and may be shared across
// goroutines without locking.
package pointcut

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
)

// ErrMissingComponent is returned when parameters are constructed without the
// component the policy is being applied to.
var ErrMissingComponent = errors.New("pointcut parameters require a component")

// Component identifies the processing element a policy is applied to
// (for example an HTTP listener or requester).
type Component interface {
	// Location returns a stable identifier for the component, used for equality
	Location() string
}

// Location is a Component identified only by its location string
type Location string

// Location implements Component
func (l Location) Location() string {
	return string(l)
}

// HasPathAndMethod is implemented by parameters that carry an HTTP path and method
type HasPathAndMethod interface {
	Path() string
	Method() string
}

// Parameters is the snapshot of request attributes a pointcut evaluates.
//
// Equality covers the component, source parameters, method, path and headers.
// The masked request path is derived from the path and is not part of equality.
type Parameters struct {
	component Component
	source    *Parameters
	path      string
	method    string

	maskedPath    string
	hasMaskedPath bool

	headers *Headers
}

var _ HasPathAndMethod = (*Parameters)(nil)

// Option configures optional fields of Parameters at construction time
type Option func(*Parameters)

// WithSource records the parameters this event derives from, e.g. the
// request parameters a response is correlated with.
func WithSource(source *Parameters) Option {
	return func(p *Parameters) {
		p.source = source
	}
}

// WithMaskedRequestPath sets the request path with the base path prefix removed.
func WithMaskedRequestPath(masked string) Option {
	return func(p *Parameters) {
		p.maskedPath = masked
		p.hasMaskedPath = true
	}
}

// WithHeaders sets the request headers. A nil value leaves the headers empty.
func WithHeaders(headers *Headers) Option {
	return func(p *Parameters) {
		if headers != nil {
			p.headers = headers
		}
	}
}

// NewParameters creates parameters for the given component, path and method.
// Without options the result has empty headers, no masked path and no source.
func NewParameters(component Component, path, method string, opts ...Option) (*Parameters, error) {
	if component == nil {
		return nil, ErrMissingComponent
	}

	p := &Parameters{
		component: component,
		path:      path,
		method:    method,
		headers:   EmptyHeaders(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Component returns the component the policy is being applied to
func (p *Parameters) Component() Component {
	return p.component
}

// Source returns the parameters this event derives from, or nil
func (p *Parameters) Source() *Parameters {
	return p.source
}

// Path returns the target path of the HTTP message
func (p *Parameters) Path() string {
	return p.path
}

// Method returns the HTTP method of the message
func (p *Parameters) Method() string {
	return p.method
}

// MaskedRequestPath returns the request path relative to an open base path.
// The second result is false when the base path was not open.
func (p *Parameters) MaskedRequestPath() (string, bool) {
	return p.maskedPath, p.hasMaskedPath
}

// Headers returns the request headers. Never nil.
func (p *Parameters) Headers() *Headers {
	return p.headers
}

// Equal reports structural equality, ignoring the masked request path
func (p *Parameters) Equal(other *Parameters) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	return p.component.Location() == other.component.Location() &&
		p.path == other.path &&
		p.method == other.method &&
		p.source.Equal(other.source) &&
		p.headers.Equal(other.headers)
}

// Hash returns a hash consistent with Equal
func (p *Parameters) Hash() uint64 {
	h := blake3.New()
	p.writeHash(h)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func (p *Parameters) writeHash(h *blake3.Hasher) {
	if p == nil {
		_, _ = h.WriteString("<nil>")
		return
	}
	writeField(h, p.component.Location())
	writeField(h, p.method)
	writeField(h, p.path)
	for _, name := range p.headers.sortedNames() {
		writeField(h, name)
		for _, v := range p.headers.values[name] {
			writeField(h, v)
		}
	}
	_, _ = h.WriteString("source:")
	p.source.writeHash(h)
}

// writeField length-prefixes s so adjacent fields cannot run together
func writeField(h *blake3.Hasher, s string) {
	_, _ = h.WriteString(strconv.Itoa(len(s)))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(s)
}

// String returns a human-readable representation of the parameters
func (p *Parameters) String() string {
	if p == nil {
		return "<nil>"
	}
	masked := "<absent>"
	if p.hasMaskedPath {
		masked = p.maskedPath
	}
	return fmt.Sprintf("Parameters{component=%s, method=%s, path=%s, maskedRequestPath=%s, headers=%v, source=%s}",
		p.component.Location(), p.method, p.path, masked, p.headers.GetAll(), p.source.String())
}
