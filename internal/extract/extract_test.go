package extract

import (
	"errors"
	"net/http/httptest"
	"slices"
	"testing"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

func TestMaskPath(t *testing.T) {
	tests := []struct {
		base, path string
		want       string
		wantOK     bool
	}{
		{"/api/*", "/api/users", "/users", true},
		{"/api/*", "/api/users/42", "/users/42", true},
		{"/api/*", "/api", "/", true},
		{"/api/*", "/apiary", "", false},
		{"/api/*", "/other", "", false},
		{"/*", "/anything", "/anything", true},
		{"/api", "/api/users", "", false},
		{"", "/api/users", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.base+" "+tt.path, func(t *testing.T) {
			got, ok := MaskPath(tt.base, tt.path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MaskPath(%q, %q) = (%q, %v), want (%q, %v)", tt.base, tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func policyRequirements(t *testing.T) attributes.RequirementSet {
	t.Helper()
	p1, err := attributes.NewBuilder().Headers("Authorization").Build()
	if err != nil {
		t.Fatal(err)
	}
	p2, err := attributes.NewBuilder().
		RequestPathPatterns(attributes.MustPathPattern(attributes.PatternKindGlob, "/api/*")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return attributes.Merge(p1, p2)
}

func TestExtractor_FromHTTP(t *testing.T) {
	listener := pointcut.Location("listener")

	t.Run("copies only required headers and evaluates patterns", func(t *testing.T) {
		e := New(policyRequirements(t), "/api/*")

		r := httptest.NewRequest("GET", "/api/users?limit=5", nil)
		r.Header.Set("Authorization", "Bearer x")
		r.Header.Set("Cookie", "session=secret")

		res, err := e.FromHTTP(listener, r, nil)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}

		params := res.Parameters
		if params.Path() != "/api/users" || params.Method() != "GET" {
			t.Errorf("unexpected path/method: %s %s", params.Method(), params.Path())
		}
		if got := params.Headers().Get("authorization"); !slices.Equal(got, []string{"Bearer x"}) {
			t.Errorf("authorization = %v", got)
		}
		if params.Headers().Has("cookie") {
			t.Error("cookie header should not be extracted")
		}
		if masked, ok := params.MaskedRequestPath(); !ok || masked != "/users" {
			t.Errorf("MaskedRequestPath() = (%q, %v)", masked, ok)
		}
		if len(res.MatchedPatterns) != 1 || res.MatchedPatterns[0].String() != "/api/*" {
			t.Errorf("MatchedPatterns = %v", res.MatchedPatterns)
		}
	})

	t.Run("no header requirement leaves headers empty", func(t *testing.T) {
		e := New(attributes.NoAttributes(), "/api")
		r := httptest.NewRequest("POST", "/api/users", nil)
		r.Header.Set("Authorization", "Bearer x")

		res, err := e.FromHTTP(listener, r, nil)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}
		if res.Parameters.Headers().Len() != 0 {
			t.Errorf("expected no headers, got %v", res.Parameters.Headers().GetAll())
		}
		if _, ok := res.Parameters.MaskedRequestPath(); ok {
			t.Error("closed base path must not produce a masked path")
		}
		if res.MatchedPatterns != nil {
			t.Error("expected no pattern evaluation")
		}
	})

	t.Run("header names differing in case are copied once", func(t *testing.T) {
		upper, err := attributes.NewBuilder().Headers("Authorization").Build()
		if err != nil {
			t.Fatal(err)
		}
		lower, err := attributes.NewBuilder().Headers("authorization").Build()
		if err != nil {
			t.Fatal(err)
		}

		r := httptest.NewRequest("GET", "/api/users", nil)
		r.Header.Set("Authorization", "Bearer x")

		merged, err := New(upper.Merge(lower), "").FromHTTP(listener, r, nil)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}
		single, err := New(upper, "").FromHTTP(listener, r, nil)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}

		if got := merged.Parameters.Headers().Get("authorization"); !slices.Equal(got, []string{"Bearer x"}) {
			t.Errorf("authorization = %v, want [Bearer x]", got)
		}
		if !merged.Parameters.Equal(single.Parameters) {
			t.Error("expected the same parameters as a single-name requirement")
		}
		if merged.Parameters.Hash() != single.Parameters.Hash() {
			t.Error("expected the same hash as a single-name requirement")
		}
	})

	t.Run("source parameters are attached", func(t *testing.T) {
		e := New(attributes.NoAttributes(), "")
		req, _ := pointcut.NewParameters(listener, "/api/users", "GET")
		res, err := e.FromHTTP(listener, httptest.NewRequest("GET", "/api/users", nil), req)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}
		if res.Parameters.Source() != req {
			t.Error("expected source parameters to be attached")
		}
	})

	t.Run("missing component", func(t *testing.T) {
		e := New(attributes.NoAttributes(), "")
		_, err := e.FromHTTP(nil, httptest.NewRequest("GET", "/", nil), nil)
		if !errors.Is(err, pointcut.ErrMissingComponent) {
			t.Errorf("expected ErrMissingComponent, got %v", err)
		}
	})
}

func TestExtractor_FromCheckRequest(t *testing.T) {
	e := New(policyRequirements(t), "/api/*")

	t.Run("reads envoy attributes", func(t *testing.T) {
		req := &authv3.CheckRequest{
			Attributes: &authv3.AttributeContext{
				Request: &authv3.AttributeContext_Request{
					Http: &authv3.AttributeContext_HttpRequest{
						Method: "GET",
						Path:   "/api/users?expand=true",
						Headers: map[string]string{
							"authorization": "Bearer x",
							"user-agent":    "curl",
						},
					},
				},
			},
		}

		res, err := e.FromCheckRequest(pointcut.Location("envoy"), req)
		if err != nil {
			t.Fatalf("FromCheckRequest failed: %v", err)
		}
		if res.Parameters.Path() != "/api/users" {
			t.Errorf("expected query to be stripped, got %q", res.Parameters.Path())
		}
		if v, _ := res.Parameters.Headers().First("Authorization"); v != "Bearer x" {
			t.Errorf("authorization = %q", v)
		}
		if res.Parameters.Headers().Has("user-agent") {
			t.Error("user-agent should not be extracted")
		}
	})

	t.Run("no http attributes", func(t *testing.T) {
		_, err := e.FromCheckRequest(pointcut.Location("envoy"), &authv3.CheckRequest{})
		if !errors.Is(err, ErrNoHTTPAttributes) {
			t.Errorf("expected ErrNoHTTPAttributes, got %v", err)
		}
	})
}
