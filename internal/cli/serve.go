package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alechenninger/httppolicy/internal/config"
	"github.com/alechenninger/httppolicy/internal/policy"
	"github.com/alechenninger/httppolicy/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ext_authz server",
		Long: `Start the httppolicy ext_authz gRPC server.

The server will:
  - Load policy declarations from policy_dir, policy_files and inline policies
  - Extract only the headers and path patterns those policies require
  - Report applicable policies to Envoy in the x-applicable-policies header
    and in dynamic metadata

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (HTTPPOLICY_*, "__" between nesting levels)
  3. Configuration file`,
		RunE: runServe,
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	provider, configPath, err := loadProvider(cmd)
	if err != nil {
		return err
	}

	logger, err := provider.Logger()
	if err != nil {
		return err
	}

	// 2. Build components via provider
	authzServer, err := provider.AuthzServer()
	if err != nil {
		return fmt.Errorf("failed to create ext_authz server: %w", err)
	}

	serverCfg := provider.ServerConfig()
	serverCfg.AuthzServer = authzServer
	serverCfg.Logger = logger

	// 3. Start server
	srv := server.New(serverCfg)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	extractor, err := provider.Extractor(policy.PhaseSource)
	if err != nil {
		return err
	}
	logger.Info("httppolicy is running",
		"grpc_port", serverCfg.GRPCPort,
		"component", provider.Component().Location(),
		"requirements", extractor.Requirements().String(),
		"config", configPath)

	// 4. Wait for interrupt signal
	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
