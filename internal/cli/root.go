// Package cli implements the httppolicy command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// NewRootCmd creates the root command for httppolicy
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "httppolicy",
		Short: "httppolicy - decides which HTTP policies apply to a request",
		Long: `httppolicy evaluates policy pointcuts against HTTP requests.

Each policy declares the request attributes it needs (header names, path
patterns). Requirements are merged per phase so only those attributes are
extracted from live traffic before pointcuts are evaluated.

Policies are served to Envoy over the ext_authz gRPC API, or evaluated
locally with the check command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./configs/httppolicy.yaml if present)")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewRequirementsCmd())
	rootCmd.AddCommand(NewCheckCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
