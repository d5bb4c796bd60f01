package cli

import (
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/alechenninger/httppolicy/internal/config"
	"github.com/alechenninger/httppolicy/internal/policy"
)

// checkResult is the JSON form of a local evaluation
type checkResult struct {
	Phase              policy.Phase `json:"phase"`
	Method             string       `json:"method"`
	Path               string       `json:"path"`
	MaskedPath         string       `json:"masked_path,omitempty"`
	ExtractedHeaders   []string     `json:"extracted_headers"`
	MatchedPatterns    []string     `json:"matched_patterns"`
	ApplicablePolicies []string     `json:"applicable_policies"`
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var (
		method  string
		path    string
		headers []string
		phase   string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate policies against a single request",
		Long: `Evaluate the configured policies against a request described by flags,
printing the attributes that were extracted and the policies that apply.

Example:
  httppolicy check --path /api/users --header "Authorization=Bearer x"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := policy.ParsePhase(phase)
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), method, path, nil)
			if err != nil {
				return fmt.Errorf("invalid request: %w", err)
			}
			for _, h := range headers {
				name, value, ok := strings.Cut(h, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid header %q (expected name=value)", h)
				}
				req.Header.Add(name, value)
			}

			provider, _, err := loadProvider(cmd)
			if err != nil {
				return err
			}
			registry, err := provider.Registry()
			if err != nil {
				return err
			}
			extractor, err := provider.Extractor(ph)
			if err != nil {
				return err
			}

			extracted, err := extractor.FromHTTP(provider.Component(), req, nil)
			if err != nil {
				return err
			}
			params := extracted.Parameters
			applicable := registry.Applicable(cmd.Context(), ph, params)

			result := checkResult{
				Phase:              ph,
				Method:             params.Method(),
				Path:               params.Path(),
				ExtractedHeaders:   params.Headers().Names(),
				MatchedPatterns:    []string{},
				ApplicablePolicies: policy.Names(applicable),
			}
			result.MaskedPath, _ = params.MaskedRequestPath()
			for _, p := range extracted.MatchedPatterns {
				result.MatchedPatterns = append(result.MatchedPatterns, patternRef(p))
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				b, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
			case "text":
				fmt.Fprintf(out, "%s %s (%s)\n", result.Method, result.Path, result.Phase)
				if result.MaskedPath != "" {
					fmt.Fprintf(out, "  masked path:         %s\n", result.MaskedPath)
				}
				fmt.Fprintf(out, "  extracted headers:   %v\n", result.ExtractedHeaders)
				fmt.Fprintf(out, "  matched patterns:    %v\n", result.MatchedPatterns)
				fmt.Fprintf(out, "  applicable policies: %v\n", result.ApplicablePolicies)
			default:
				return fmt.Errorf("unknown output format %q (supported: text, json)", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", http.MethodGet, "request method")
	cmd.Flags().StringVar(&path, "path", "/", "request path")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as name=value (repeatable)")
	cmd.Flags().StringVar(&phase, "phase", string(policy.PhaseSource), "phase to evaluate: source, operation")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json")
	config.RegisterFlags(cmd.Flags())

	return cmd
}
