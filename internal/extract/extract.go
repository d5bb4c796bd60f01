// Package extract builds pointcut parameters from live requests, copying only
// the attributes a merged requirement set asks for.
package extract

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// ErrNoHTTPAttributes is returned when an ext_authz request carries no HTTP request
var ErrNoHTTPAttributes = errors.New("no HTTP request attributes")

// Result is the outcome of extracting one request
type Result struct {
	// Parameters to evaluate pointcuts against
	Parameters *pointcut.Parameters

	// MatchedPatterns are the required path patterns that matched the live path.
	// Empty when the requirement set does not require the request path.
	MatchedPatterns []attributes.PathPattern
}

// Extractor copies required attributes from requests into pointcut parameters
type Extractor struct {
	requirements attributes.RequirementSet
	basePath     string
}

// New creates an extractor for the given merged requirements.
// basePath is the path the component is bound to (e.g. "/api/*"); when it is
// open the masked request path is populated.
func New(requirements attributes.RequirementSet, basePath string) *Extractor {
	return &Extractor{
		requirements: requirements,
		basePath:     basePath,
	}
}

// Requirements returns the requirements this extractor honours
func (e *Extractor) Requirements() attributes.RequirementSet {
	return e.requirements
}

// FromHTTP extracts parameters from an HTTP request.
// source may be nil; it is attached for response-side correlation.
func (e *Extractor) FromHTTP(component pointcut.Component, r *http.Request, source *pointcut.Parameters) (*Result, error) {
	if r == nil {
		return nil, errors.New("nil http request")
	}
	return e.build(component, r.URL.Path, r.Method, r.Header.Values, source)
}

// FromCheckRequest extracts parameters from an Envoy ext_authz check request.
// Envoy lowercases header names and joins repeated values with ",".
func (e *Extractor) FromCheckRequest(component pointcut.Component, req *authv3.CheckRequest) (*Result, error) {
	httpReq := req.GetAttributes().GetRequest().GetHttp()
	if httpReq == nil {
		return nil, ErrNoHTTPAttributes
	}

	headers := httpReq.GetHeaders()
	lookup := func(name string) []string {
		v, ok := headers[strings.ToLower(name)]
		if !ok {
			return nil
		}
		return []string{v}
	}

	// Envoy's path includes the query string
	path, _, _ := strings.Cut(httpReq.GetPath(), "?")

	return e.build(component, path, httpReq.GetMethod(), lookup, nil)
}

func (e *Extractor) build(
	component pointcut.Component,
	path, method string,
	lookup func(name string) []string,
	source *pointcut.Parameters,
) (*Result, error) {
	opts := []pointcut.Option{pointcut.WithSource(source)}

	if e.requirements.RequireHeaders() {
		headers := pointcut.EmptyHeaders()
		for _, name := range e.requirements.Headers() {
			// names differing only in case refer to the same header
			if headers.Has(name) {
				continue
			}
			if values := lookup(name); len(values) > 0 {
				headers = headers.With(name, values...)
			}
		}
		opts = append(opts, pointcut.WithHeaders(headers))
	}

	if masked, ok := MaskPath(e.basePath, path); ok {
		opts = append(opts, pointcut.WithMaskedRequestPath(masked))
	}

	params, err := pointcut.NewParameters(component, path, method, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build pointcut parameters: %w", err)
	}

	result := &Result{Parameters: params}
	if e.requirements.RequireRequestPath() {
		for _, p := range e.requirements.RequestPathPatterns() {
			if p.Match(path) {
				result.MatchedPatterns = append(result.MatchedPatterns, p)
			}
		}
	}

	return result, nil
}

// MaskPath strips an open base path from requestPath.
//
// A base path is open when it ends in "/*". The result always starts with "/".
// It returns false when the base path is not open or requestPath lies outside it.
//
//	MaskPath("/api/*", "/api/users") == ("/users", true)
//	MaskPath("/api/*", "/api")       == ("/", true)
//	MaskPath("/api", "/api/users")   == ("", false)
func MaskPath(basePath, requestPath string) (string, bool) {
	prefix, open := strings.CutSuffix(basePath, "/*")
	if !open {
		return "", false
	}
	prefix = strings.TrimSuffix(prefix, "/")

	if prefix == "" {
		if !strings.HasPrefix(requestPath, "/") {
			return "/" + requestPath, true
		}
		return requestPath, true
	}

	rest, ok := strings.CutPrefix(requestPath, prefix)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "/", true
	}
	if !strings.HasPrefix(rest, "/") {
		// "/apiary" is not under "/api/*"
		return "", false
	}
	return rest, true
}
