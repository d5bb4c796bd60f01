package server

import (
	"context"
	"fmt"
	"net"
	"slices"
	"testing"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/extract"
	"github.com/alechenninger/httppolicy/internal/pointcut"
	"github.com/alechenninger/httppolicy/internal/policy"
)

func newTestAuthzServer(t *testing.T) *AuthzServer {
	t.Helper()

	registry := policy.NewRegistry(nil)

	authReq, err := attributes.NewBuilder().Headers("Authorization").Build()
	if err != nil {
		t.Fatal(err)
	}
	api := attributes.MustPathPattern(attributes.PatternKindGlob, "/api/*")
	pathReq, err := attributes.NewBuilder().RequestPathPatterns(api).Build()
	if err != nil {
		t.Fatal(err)
	}

	decls := []*policy.Declaration{
		{
			Name:         "require-auth",
			Requirements: authReq,
			Pointcut: pointcut.Func(func(p *pointcut.Parameters) bool {
				return p.Headers().Has("authorization")
			}),
		},
		{
			Name:         "api",
			Requirements: pathReq,
			Pointcut:     policy.NewPathPointcut(api),
		},
	}
	for _, d := range decls {
		if err := registry.Register(d); err != nil {
			t.Fatal(err)
		}
	}

	extractor := extract.New(registry.Requirements(policy.PhaseSource), "/api/*")
	return NewAuthzServer(registry, extractor, pointcut.Location("envoy"), nil)
}

func checkRequest(path string, headers map[string]string) *authv3.CheckRequest {
	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Method:  "GET",
					Path:    path,
					Headers: headers,
				},
			},
		},
	}
}

func TestAuthzServer_Check(t *testing.T) {
	ctx := context.Background()
	authzServer := newTestAuthzServer(t)

	tests := []struct {
		name         string
		path         string
		headers      map[string]string
		wantHeader   string
		wantPolicies []any
		wantPatterns []any
	}{
		{
			name:         "both policies apply",
			path:         "/api/users?page=2",
			headers:      map[string]string{"authorization": "Bearer x"},
			wantHeader:   "api,require-auth",
			wantPolicies: []any{"api", "require-auth"},
			wantPatterns: []any{"/api/*"},
		},
		{
			name:         "path policy only",
			path:         "/api/users",
			wantHeader:   "api",
			wantPolicies: []any{"api"},
			wantPatterns: []any{"/api/*"},
		},
		{
			name:         "nothing applies",
			path:         "/health",
			headers:      map[string]string{"x-other": "1"},
			wantHeader:   "",
			wantPolicies: []any{},
			wantPatterns: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := authzServer.Check(ctx, checkRequest(tt.path, tt.headers))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if resp.Status.Code != int32(codes.OK) {
				t.Fatalf("expected OK status, got code %d: %s", resp.Status.Code, resp.Status.Message)
			}

			okResp := resp.GetOkResponse()
			if okResp == nil {
				t.Fatal("expected OK response")
			}
			if len(okResp.Headers) != 1 {
				t.Fatalf("expected 1 header, got %d", len(okResp.Headers))
			}
			header := okResp.Headers[0].Header
			if header.Key != ApplicablePoliciesHeader || header.Value != tt.wantHeader {
				t.Errorf("header = %s: %q, want %q", header.Key, header.Value, tt.wantHeader)
			}

			metadata := resp.DynamicMetadata.AsMap()
			if got := metadata["applicable_policies"].([]any); !slices.Equal(got, tt.wantPolicies) {
				t.Errorf("applicable_policies = %v, want %v", got, tt.wantPolicies)
			}
			if got := metadata["matched_patterns"].([]any); !slices.Equal(got, tt.wantPatterns) {
				t.Errorf("matched_patterns = %v, want %v", got, tt.wantPatterns)
			}
		})
	}

	t.Run("missing http attributes", func(t *testing.T) {
		resp, err := authzServer.Check(ctx, &authv3.CheckRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status.Code != int32(codes.InvalidArgument) {
			t.Errorf("expected InvalidArgument, got code %d", resp.Status.Code)
		}
		if resp.GetDeniedResponse() == nil {
			t.Error("expected denied response")
		}
	})
}

func TestServer_StartStop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := New(Config{AuthzServer: newTestAuthzServer(t)})
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop(ctx)

	target := fmt.Sprintf("localhost:%d", srv.Addr().(*net.TCPAddr).Port)
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer conn.Close()

	resp, err := authv3.NewAuthorizationClient(conn).Check(ctx,
		checkRequest("/api/orders", map[string]string{"authorization": "Bearer x"}))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v := resp.GetOkResponse().GetHeaders()[0].GetHeader().GetValue(); v != "api,require-auth" {
		t.Errorf("header value = %q", v)
	}

	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestServer_StartWithoutAuthzServer(t *testing.T) {
	if err := New(Config{}).Start(context.Background()); err == nil {
		t.Error("expected error")
	}
}
