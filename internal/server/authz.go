package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/extract"
	"github.com/alechenninger/httppolicy/internal/pointcut"
	"github.com/alechenninger/httppolicy/internal/policy"
)

const (
	// ApplicablePoliciesHeader carries the comma-separated names of applicable policies
	ApplicablePoliciesHeader = "x-applicable-policies"

	metadataApplicablePolicies = "applicable_policies"
	metadataMatchedPatterns    = "matched_patterns"
)

// AuthzServer implements Envoy's ext_authz Authorization service.
//
// It never denies a well-formed request: it reports which source-phase policies
// apply so later filters can enforce them.
type AuthzServer struct {
	authv3.UnimplementedAuthorizationServer

	registry  *policy.Registry
	extractor *extract.Extractor
	component pointcut.Component
	logger    *slog.Logger
}

// NewAuthzServer creates a new ext_authz server.
// The extractor should be built from the registry's source-phase requirements.
func NewAuthzServer(registry *policy.Registry, extractor *extract.Extractor, component pointcut.Component, logger *slog.Logger) *AuthzServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthzServer{
		registry:  registry,
		extractor: extractor,
		component: component,
		logger:    logger,
	}
}

// Check implements the ext_authz check endpoint
func (s *AuthzServer) Check(ctx context.Context, req *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	// 1. Copy only the attributes the registered policies need
	result, err := s.extractor.FromCheckRequest(s.component, req)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejecting check request", "error", err)
		return s.denyResponse(codes.InvalidArgument, fmt.Sprintf("failed to extract request attributes: %v", err)), nil
	}

	// 2. Evaluate every source-phase pointcut
	applicable := s.registry.Applicable(ctx, policy.PhaseSource, result.Parameters)
	names := policy.Names(applicable)

	// 3. Report the outcome to Envoy
	metadata, err := dynamicMetadata(names, result.MatchedPatterns)
	if err != nil {
		return s.denyResponse(codes.Internal, fmt.Sprintf("failed to build dynamic metadata: %v", err)), nil
	}

	return &authv3.CheckResponse{
		Status: &status.Status{
			Code: int32(codes.OK),
		},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: []*corev3.HeaderValueOption{
					{
						Header: &corev3.HeaderValue{
							Key:   ApplicablePoliciesHeader,
							Value: strings.Join(names, ","),
						},
						// A client-supplied value must never survive
						AppendAction: corev3.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
					},
				},
			},
		},
		DynamicMetadata: metadata,
	}, nil
}

func dynamicMetadata(names []string, matched []attributes.PathPattern) (*structpb.Struct, error) {
	policies := make([]any, len(names))
	for i, n := range names {
		policies[i] = n
	}
	patterns := make([]any, len(matched))
	for i, p := range matched {
		patterns[i] = p.String()
	}

	return structpb.NewStruct(map[string]any{
		metadataApplicablePolicies: policies,
		metadataMatchedPatterns:    patterns,
	})
}

// denyResponse creates a denial response
func (s *AuthzServer) denyResponse(code codes.Code, message string) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &status.Status{
			Code:    int32(code),
			Message: message,
		},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Body: message,
			},
		},
	}
}
