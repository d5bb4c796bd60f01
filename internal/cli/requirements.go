package cli

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/config"
	"github.com/alechenninger/httppolicy/internal/policy"
)

// requirementsView is the JSON form of a merged requirement set
type requirementsView struct {
	Phase        policy.Phase `json:"phase"`
	Policies     []string     `json:"policies"`
	Headers      []string     `json:"headers"`
	PathPatterns []string     `json:"path_patterns"`
}

func newRequirementsView(phase policy.Phase, registry *policy.Registry) requirementsView {
	set := registry.Requirements(phase)
	view := requirementsView{
		Phase:        phase,
		Policies:     policy.Names(registry.Declarations(phase)),
		Headers:      set.Headers(),
		PathPatterns: []string{},
	}
	for _, p := range set.RequestPathPatterns() {
		view.PathPatterns = append(view.PathPatterns, patternRef(p))
	}
	return view
}

func patternRef(p attributes.PathPattern) string {
	return string(p.Kind()) + ":" + p.String()
}

// NewRequirementsCmd creates the requirements command
func NewRequirementsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "requirements",
		Short: "Print the merged attribute requirements per phase",
		Long: `Print, for each phase, the headers and path patterns that must be
extracted from requests so every registered policy can be evaluated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _, err := loadProvider(cmd)
			if err != nil {
				return err
			}
			registry, err := provider.Registry()
			if err != nil {
				return err
			}

			views := []requirementsView{
				newRequirementsView(policy.PhaseSource, registry),
				newRequirementsView(policy.PhaseOperation, registry),
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				b, err := json.MarshalIndent(views, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
			case "text":
				for _, v := range views {
					fmt.Fprintf(out, "%s (%d policies)\n", v.Phase, len(v.Policies))
					fmt.Fprintf(out, "  headers:       %v\n", v.Headers)
					fmt.Fprintf(out, "  path patterns: %v\n", v.PathPatterns)
				}
			default:
				return fmt.Errorf("unknown output format %q (supported: text, json)", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json")
	config.RegisterFlags(cmd.Flags())

	return cmd
}
