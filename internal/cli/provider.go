package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/alechenninger/httppolicy/internal/config"
)

const defaultConfigPath = "./configs/httppolicy.yaml"

// resolveConfigPath picks the config file: --config, then HTTPPOLICY_CONFIG,
// then the default path when it exists. Empty means no file.
func resolveConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	if path := os.Getenv("HTTPPOLICY_CONFIG"); path != "" {
		return path, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return defaultConfigPath, nil
}

// loadProvider loads configuration (file + env vars + flags) and wraps it in a provider
func loadProvider(cmd *cobra.Command) (*config.Provider, string, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return nil, "", err
	}

	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return config.NewProvider(cfg).WithLogOutput(cmd.ErrOrStderr()), configPath, nil
}
