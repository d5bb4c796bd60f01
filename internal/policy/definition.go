package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alechenninger/httppolicy/internal/attributes"
	luaservices "github.com/alechenninger/httppolicy/internal/lua"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// Pointcut kinds accepted in definitions
const (
	PointcutCEL  = "cel"
	PointcutLua  = "lua"
	PointcutPath = "path"
	PointcutAny  = "any"
)

// Definition is the configuration form of a Declaration, as found in
// declaration files and inline in the main config.
type Definition struct {
	// Name uniquely identifies the policy
	Name string `koanf:"name" json:"name" yaml:"name" hcl:"name"`

	// Phase is "source" (default) or "operation"
	Phase string `koanf:"phase" json:"phase,omitempty" yaml:"phase,omitempty" hcl:"phase"`

	// Headers the pointcut needs
	Headers []string `koanf:"headers" json:"headers,omitempty" yaml:"headers,omitempty" hcl:"headers"`

	// PathPatterns the pointcut needs, as "glob:<expr>", "regex:<expr>" or a bare glob
	PathPatterns []string `koanf:"path_patterns" json:"path_patterns,omitempty" yaml:"path_patterns,omitempty" hcl:"path_patterns"`

	// Pointcut selects the implementation: cel, lua, path or any.
	// Default: path when PathPatterns is set, otherwise any.
	Pointcut string `koanf:"pointcut" json:"pointcut,omitempty" yaml:"pointcut,omitempty" hcl:"pointcut"`

	// Expression is the CEL expression (pointcut: cel)
	Expression string `koanf:"expression" json:"expression,omitempty" yaml:"expression,omitempty" hcl:"expression"`

	// Script is inline Lua source (pointcut: lua)
	Script string `koanf:"script" json:"script,omitempty" yaml:"script,omitempty" hcl:"script"`

	// ScriptFile is a Lua file, relative to the file the definition came from (pointcut: lua)
	ScriptFile string `koanf:"script_file" json:"script_file,omitempty" yaml:"script_file,omitempty" hcl:"script_file"`

	// ConsidersPath lets cel and lua pointcuts see the full request path
	ConsidersPath bool `koanf:"considers_path" json:"considers_path,omitempty" yaml:"considers_path,omitempty" hcl:"considers_path"`

	// Config is exposed to lua scripts through the config module
	Config map[string]any `koanf:"config" json:"config,omitempty" yaml:"config,omitempty" hcl:"config"`
}

// ParsePatternRef parses "glob:<expr>", "regex:<expr>" or a bare glob
func ParsePatternRef(ref string) (attributes.PathPattern, error) {
	kind, expr, found := strings.Cut(ref, ":")
	if !found {
		return attributes.ParsePathPattern(attributes.PatternKindGlob, ref)
	}
	switch attributes.PatternKind(kind) {
	case attributes.PatternKindGlob, attributes.PatternKindRegexp:
		return attributes.ParsePathPattern(attributes.PatternKind(kind), expr)
	default:
		return attributes.ParsePathPattern(attributes.PatternKindGlob, ref)
	}
}

// Factory turns definitions into declarations
type Factory struct {
	cel    *CELCompiler
	logger *slog.Logger
}

// NewFactory creates a factory. A nil logger uses slog.Default.
func NewFactory(compiler *CELCompiler, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{cel: compiler, logger: logger}
}

// Declaration builds a declaration from def. baseDir resolves relative script files.
func (f *Factory) Declaration(def Definition, baseDir string) (*Declaration, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidDeclaration)
	}

	phase, err := ParsePhase(def.Phase)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, def.Name, err)
	}

	patterns := make([]attributes.PathPattern, 0, len(def.PathPatterns))
	for _, ref := range def.PathPatterns {
		p, err := ParsePatternRef(ref)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", def.Name, err)
		}
		patterns = append(patterns, p)
	}

	b := attributes.NewBuilder()
	if len(def.Headers) > 0 {
		b.Headers(def.Headers...)
	}
	if len(patterns) > 0 {
		b.RequestPathPatterns(patterns...)
	}
	requirements, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", def.Name, err)
	}

	pc, err := f.pointcut(def, patterns, baseDir)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", def.Name, err)
	}

	return &Declaration{
		Name:         def.Name,
		Phase:        phase,
		Requirements: requirements,
		Pointcut:     pc,
	}, nil
}

func (f *Factory) pointcut(def Definition, patterns []attributes.PathPattern, baseDir string) (pointcut.Pointcut, error) {
	kind := def.Pointcut
	if kind == "" {
		kind = PointcutAny
		if len(patterns) > 0 {
			kind = PointcutPath
		}
	}

	logger := f.logger.With(slog.String("policy", def.Name))

	switch kind {
	case PointcutAny:
		return AnyPointcut{}, nil

	case PointcutPath:
		if len(patterns) == 0 {
			return nil, fmt.Errorf("%w: path pointcut requires path_patterns", ErrInvalidDeclaration)
		}
		return NewPathPointcut(patterns...), nil

	case PointcutCEL:
		if def.Expression == "" {
			return nil, fmt.Errorf("%w: cel pointcut requires expression", ErrInvalidDeclaration)
		}
		if f.cel == nil {
			return nil, fmt.Errorf("%w: no CEL compiler configured", ErrInvalidDeclaration)
		}
		return f.cel.Compile(def.Expression, def.ConsidersPath, logger)

	case PointcutLua:
		name, source, err := luaSource(def, baseDir)
		if err != nil {
			return nil, err
		}
		script, err := luaservices.Compile(name, source, def.Config)
		if err != nil {
			return nil, err
		}
		return NewLuaPointcut(script, def.ConsidersPath, logger)

	default:
		return nil, fmt.Errorf("%w: unknown pointcut %q (supported: cel, lua, path, any)", ErrInvalidDeclaration, kind)
	}
}

func luaSource(def Definition, baseDir string) (name, source string, err error) {
	switch {
	case def.Script != "" && def.ScriptFile != "":
		return "", "", fmt.Errorf("%w: script and script_file are mutually exclusive", ErrInvalidDeclaration)
	case def.Script != "":
		return def.Name + ".lua", def.Script, nil
	case def.ScriptFile != "":
		path := def.ScriptFile
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("failed to read lua script: %w", err)
		}
		return filepath.Base(path), string(b), nil
	default:
		return "", "", fmt.Errorf("%w: lua pointcut requires script or script_file", ErrInvalidDeclaration)
	}
}
