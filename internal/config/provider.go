package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/alechenninger/httppolicy/internal/extract"
	"github.com/alechenninger/httppolicy/internal/logging"
	"github.com/alechenninger/httppolicy/internal/pointcut"
	"github.com/alechenninger/httppolicy/internal/policy"
	"github.com/alechenninger/httppolicy/internal/probe"
	"github.com/alechenninger/httppolicy/internal/server"
)

// Provider constructs all application components from configuration
// This is the main entry point for building a configured httppolicy instance
type Provider struct {
	config    *Config
	logOutput io.Writer

	// Lazily constructed components (cached after first call)
	logger   *slog.Logger
	registry *policy.Registry
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
	}
}

// WithLogOutput directs logs to w instead of stderr. It must be called before Logger.
func (p *Provider) WithLogOutput(w io.Writer) *Provider {
	p.logOutput = w
	return p
}

// Logger returns the configured logger
func (p *Provider) Logger() (*slog.Logger, error) {
	if p.logger != nil {
		return p.logger, nil
	}

	obs := p.config.Observability
	logger, err := logging.NewLogger(obs.LogFormat, obs.LogLevel, p.logOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	p.logger = logger
	return logger, nil
}

// Registry returns a registry with every configured declaration registered:
// files in policy_dir, then policy_files, then inline policies.
func (p *Provider) Registry() (*policy.Registry, error) {
	if p.registry != nil {
		return p.registry, nil
	}

	logger, err := p.Logger()
	if err != nil {
		return nil, err
	}

	compiler, err := policy.NewCELCompiler(p.config.CEL.MaxPrograms)
	if err != nil {
		return nil, err
	}
	factory := policy.NewFactory(compiler, logger)

	var decls []*policy.Declaration

	if p.config.PolicyDir != "" {
		loaded, err := policy.LoadDeclarationsFromDir(p.config.PolicyDir, factory)
		if err != nil {
			return nil, err
		}
		decls = append(decls, loaded...)
	}

	for _, path := range p.config.PolicyFiles {
		loaded, err := policy.LoadDeclarationsFromFile(path, factory)
		if err != nil {
			return nil, err
		}
		decls = append(decls, loaded...)
	}

	for _, def := range p.config.Policies {
		d, err := factory.Declaration(def, "")
		if err != nil {
			return nil, fmt.Errorf("inline policy: %w", err)
		}
		decls = append(decls, d)
	}

	registry := policy.NewRegistry(probe.NewLoggingEvaluationObserver(logger))
	for _, d := range decls {
		if err := registry.Register(d); err != nil {
			return nil, err
		}
	}

	logger.Info("Policies registered",
		"source", len(registry.Declarations(policy.PhaseSource)),
		"operation", len(registry.Declarations(policy.PhaseOperation)))

	p.registry = registry
	return registry, nil
}

// Extractor returns an extractor for the merged requirements of phase
func (p *Provider) Extractor(phase policy.Phase) (*extract.Extractor, error) {
	registry, err := p.Registry()
	if err != nil {
		return nil, err
	}
	return extract.New(registry.Requirements(phase), p.config.BasePath), nil
}

// Component returns the configured component identity
func (p *Provider) Component() pointcut.Component {
	return pointcut.Location(p.config.Component)
}

// AuthzServer returns the ext_authz server for the source phase
func (p *Provider) AuthzServer() (*server.AuthzServer, error) {
	registry, err := p.Registry()
	if err != nil {
		return nil, err
	}
	extractor, err := p.Extractor(policy.PhaseSource)
	if err != nil {
		return nil, err
	}
	logger, err := p.Logger()
	if err != nil {
		return nil, err
	}
	return server.NewAuthzServer(registry, extractor, p.Component(), logger), nil
}

// ServerConfig returns the server configuration
func (p *Provider) ServerConfig() server.Config {
	return server.Config{
		GRPCPort: p.config.Server.GRPCPort,
	}
}
