package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	"github.com/alechenninger/httppolicy/internal/policy"
)

func TestProvider(t *testing.T) {
	dir := t.TempDir()
	declarations := `
policy {
  name          = "api"
  path_patterns = ["/api/*"]
}
`
	if err := os.WriteFile(filepath.Join(dir, "api.hcl"), []byte(declarations), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		BasePath:  "/api/*",
		Component: "gateway",
		PolicyDir: dir,
		Policies: []policy.Definition{
			{
				Name:       "require-auth",
				Headers:    []string{"Authorization"},
				Pointcut:   policy.PointcutCEL,
				Expression: `header(headers, "authorization").startsWith("Bearer ")`,
			},
			{
				Name:     "outbound",
				Phase:    "operation",
				Headers:  []string{"X-Tenant"},
				Pointcut: policy.PointcutAny,
			},
		},
		Observability: ObservabilityConfig{LogLevel: "debug", LogFormat: "json"},
	}
	cfg.applyDefaults()

	var logs bytes.Buffer
	provider := NewProvider(cfg).WithLogOutput(&logs)

	registry, err := provider.Registry()
	if err != nil {
		t.Fatalf("Registry failed: %v", err)
	}

	source := registry.Requirements(policy.PhaseSource)
	if !slices.Equal(source.Headers(), []string{"Authorization"}) || !source.RequireRequestPath() {
		t.Errorf("unexpected source requirements: %v", source)
	}
	if !slices.Equal(registry.Requirements(policy.PhaseOperation).Headers(), []string{"X-Tenant"}) {
		t.Errorf("unexpected operation requirements")
	}

	again, _ := provider.Registry()
	if again != registry {
		t.Error("expected registry to be cached")
	}

	authz, err := provider.AuthzServer()
	if err != nil {
		t.Fatalf("AuthzServer failed: %v", err)
	}

	resp, err := authz.Check(context.Background(), &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Method:  "GET",
					Path:    "/api/users",
					Headers: map[string]string{"authorization": "Bearer x"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v := resp.GetOkResponse().GetHeaders()[0].GetHeader().GetValue(); v != "api,require-auth" {
		t.Errorf("applicable header = %q", v)
	}

	if !strings.Contains(logs.String(), `"request_id"`) {
		t.Errorf("expected evaluation logs, got %q", logs.String())
	}
	if provider.ServerConfig().GRPCPort != DefaultGRPCPort {
		t.Errorf("ServerConfig().GRPCPort = %d", provider.ServerConfig().GRPCPort)
	}
	if provider.Component().Location() != "gateway" {
		t.Errorf("Component() = %q", provider.Component().Location())
	}
}

func TestProvider_InvalidPolicy(t *testing.T) {
	cfg := &Config{
		Policies: []policy.Definition{{Name: "broken", Pointcut: policy.PointcutCEL, Expression: "method"}},
	}
	if _, err := NewProvider(cfg).WithLogOutput(&bytes.Buffer{}).Registry(); err == nil {
		t.Error("expected error for non-boolean expression")
	}
}

func TestProvider_InvalidLogFormat(t *testing.T) {
	cfg := &Config{Observability: ObservabilityConfig{LogFormat: "xml"}}
	if _, err := NewProvider(cfg).Logger(); err == nil {
		t.Error("expected error")
	}
}
