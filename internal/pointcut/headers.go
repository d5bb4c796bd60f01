package pointcut

import (
	"net/http"
	"slices"
	"sort"
	"strings"
)

// Headers is a read-only, case-insensitive, multi-valued view of request headers.
// Names are stored lowercased and remember the order in which they were first added.
//
// A nil *Headers behaves as an empty mapping.
type Headers struct {
	names  []string
	values map[string][]string
}

// NewHeaders creates headers from a map. Names are lowercased; values for names
// that collide after lowercasing are concatenated. Since map iteration is
// unordered, names are ordered lexically.
func NewHeaders(values map[string][]string) *Headers {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := EmptyHeaders()
	for _, k := range keys {
		h.add(k, values[k]...)
	}
	return h
}

// HeadersFrom copies an http.Header
func HeadersFrom(header http.Header) *Headers {
	return NewHeaders(header)
}

// EmptyHeaders returns a mapping with no headers
func EmptyHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

// With returns a copy of h with values appended to name.
// The receiver is left untouched.
func (h *Headers) With(name string, values ...string) *Headers {
	out := h.clone()
	out.add(name, values...)
	return out
}

func (h *Headers) add(name string, values ...string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = append(h.values[key], values...)
}

func (h *Headers) clone() *Headers {
	out := EmptyHeaders()
	if h == nil {
		return out
	}
	out.names = append(out.names, h.names...)
	for k, v := range h.values {
		out.values[k] = append([]string(nil), v...)
	}
	return out
}

// Get returns a copy of all values for name, or nil if absent
func (h *Headers) Get(name string) []string {
	if h == nil {
		return nil
	}
	vals, ok := h.values[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return append([]string(nil), vals...)
}

// First returns the first value for name
func (h *Headers) First(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	vals := h.values[strings.ToLower(name)]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Has reports whether name is present (case-insensitive)
func (h *Headers) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Names returns the lowercased header names in insertion order
func (h *Headers) Names() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.names...)
}

// Len returns the number of distinct header names
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// Iterate calls fn for each header in insertion order with a copy of its values.
func (h *Headers) Iterate(fn func(name string, values []string)) {
	if h == nil {
		return
	}
	for _, name := range h.names {
		fn(name, append([]string(nil), h.values[name]...))
	}
}

// GetAll returns a copy of every header keyed by lowercased name
func (h *Headers) GetAll() map[string][]string {
	out := make(map[string][]string, h.Len())
	h.Iterate(func(name string, values []string) {
		out[name] = values
	})
	return out
}

// Equal reports whether both mappings hold the same names with the same values.
// The order of names is not significant; the order of values under a name is.
func (h *Headers) Equal(other *Headers) bool {
	if h.Len() != other.Len() {
		return false
	}
	if h.Len() == 0 {
		return true
	}
	for name, vals := range h.values {
		otherVals, ok := other.values[name]
		if !ok || !slices.Equal(vals, otherVals) {
			return false
		}
	}
	return true
}

// sortedNames is used for order-independent hashing
func (h *Headers) sortedNames() []string {
	names := h.Names()
	sort.Strings(names)
	return names
}
