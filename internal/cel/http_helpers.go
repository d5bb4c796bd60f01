// Package cel provides CEL helper functions for HTTP pointcut expressions.
package cel

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/alechenninger/httppolicy/internal/attributes"
)

// HeadersType is the CEL type of the headers variable: lowercased name to values
var HeadersType = cel.MapType(cel.StringType, cel.ListType(cel.StringType))

// HTTPHelpersLibrary creates a CEL library with helpers for matching HTTP requests.
//
// Provides:
//   - header(headers, name) - first value of a header (case-insensitive), or ""
//   - hasHeader(headers, name) - whether the header is present (case-insensitive)
//   - pathMatches(path, glob) - whether path matches a '/'-separated glob
func HTTPHelpersLibrary() cel.EnvOption {
	return cel.Lib(&httpHelpersLib{})
}

type httpHelpersLib struct{}

func (lib *httpHelpersLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("header",
			cel.Overload("header_map_string",
				[]*cel.Type{HeadersType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(lib.header),
			),
		),

		cel.Function("hasHeader",
			cel.Overload("hasHeader_map_string",
				[]*cel.Type{HeadersType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(lib.hasHeader),
			),
		),

		cel.Function("pathMatches",
			cel.Overload("pathMatches_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(lib.pathMatches),
			),
		),
	}
}

func (lib *httpHelpersLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// lookup finds the value list for a header name
func lookup(headersVal, nameVal ref.Val) (traits.Lister, bool) {
	name, ok := nameVal.Value().(string)
	if !ok {
		return nil, false
	}

	headers, ok := headersVal.(traits.Mapper)
	if !ok {
		return nil, false
	}

	values, found := headers.Find(types.String(strings.ToLower(name)))
	if !found {
		return nil, false
	}

	list, ok := values.(traits.Lister)
	return list, ok
}

func (lib *httpHelpersLib) header(headersVal, nameVal ref.Val) ref.Val {
	list, ok := lookup(headersVal, nameVal)
	if !ok || list.Size() == types.IntZero {
		return types.String("")
	}

	first, ok := list.Get(types.IntZero).(types.String)
	if !ok {
		return types.String("")
	}
	return first
}

func (lib *httpHelpersLib) hasHeader(headersVal, nameVal ref.Val) ref.Val {
	_, ok := lookup(headersVal, nameVal)
	return types.Bool(ok)
}

func (lib *httpHelpersLib) pathMatches(pathVal, globVal ref.Val) ref.Val {
	path, ok := pathVal.Value().(string)
	if !ok {
		return types.Bool(false)
	}
	expr, ok := globVal.Value().(string)
	if !ok {
		return types.Bool(false)
	}

	pattern, err := attributes.NewGlobPattern(expr)
	if err != nil {
		return types.NewErr("pathMatches: %v", err)
	}
	return types.Bool(pattern.Match(path))
}
