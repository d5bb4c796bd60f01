package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variables read into the config.
// "__" separates nesting levels: HTTPPOLICY_SERVER__GRPC_PORT sets server.grpc_port.
const EnvPrefix = "HTTPPOLICY_"

// Loader merges configuration from a file, the environment and flags.
// Precedence (highest to lowest): flags, environment, file.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader loads path (if not empty) and the environment
func NewLoader(path string) (*Loader, error) {
	return NewLoaderWithFlags(path, nil)
}

// NewLoaderWithFlags loads path (if not empty), the environment and any flags
// registered with RegisterFlags. Only flags known to the config are read.
func NewLoaderWithFlags(path string, flags *pflag.FlagSet) (*Loader, error) {
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		mapping := GetFlagMapping()
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := mapping[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	return &Loader{k: k}, nil
}

// envKey maps HTTPPOLICY_OBSERVABILITY__LOG_LEVEL to observability.log_level
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", path)
	}
}

// Get unmarshals the merged configuration and applies defaults
func (l *Loader) Get() (*Config, error) {
	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
