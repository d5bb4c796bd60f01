// Package config loads httppolicy configuration and builds the components it describes.
package config

import "github.com/alechenninger/httppolicy/internal/policy"

// Config is the root configuration structure for httppolicy
type Config struct {
	// Server configuration
	Server ServerConfig `koanf:"server"`

	// Component identifies the listener this instance guards in pointcut parameters
	Component string `koanf:"component" usage:"component identity reported to pointcuts (default: httppolicy)"`

	// BasePath is the path the component is bound to, e.g. "/api/*".
	// When it ends in "/*" pointcuts also receive the masked request path.
	BasePath string `koanf:"base_path" usage:"base path the component is bound to, e.g. /api/*"`

	// PolicyDir is a directory of declaration files (.yaml, .yml, .json, .hcl)
	PolicyDir string `koanf:"policy_dir" usage:"directory of policy declaration files"`

	// PolicyFiles lists individual declaration files
	PolicyFiles []string `koanf:"policy_files" usage:"policy declaration files (repeatable)"`

	// Policies are declared inline
	Policies []policy.Definition `koanf:"policies"`

	// CEL configuration for expression pointcuts
	CEL CELConfig `koanf:"cel"`

	// Observability configuration (logging)
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig contains network-level server settings
type ServerConfig struct {
	// GRPCPort is the port for the ext_authz gRPC service
	GRPCPort int `koanf:"grpc_port" usage:"gRPC server port (ext_authz)"`
}

// CELConfig configures CEL pointcut compilation
type CELConfig struct {
	// MaxPrograms bounds the number of compiled programs kept for reuse.
	// Zero means no limit.
	MaxPrograms int `koanf:"max_programs" usage:"maximum compiled CEL programs to cache (0: unlimited)"`
}

// ObservabilityConfig configures application logging
type ObservabilityConfig struct {
	// LogLevel sets the log level
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `koanf:"log_level" usage:"log level: debug, info, warn, error"`

	// LogFormat sets the log format
	// Options: "text", "json"
	// Default: "text"
	LogFormat string `koanf:"log_format" usage:"log format: text, json"`
}

const (
	DefaultGRPCPort  = 9090
	DefaultComponent = "httppolicy"
)

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort
	}
	if c.Component == "" {
		c.Component = DefaultComponent
	}
}
