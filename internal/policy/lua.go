package policy

import (
	"fmt"
	"log/slog"

	luaservices "github.com/alechenninger/httppolicy/internal/lua"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

const luaMatchFunction = "matches"

// LuaPointcut calls a script's matches(request) function.
// The request table has path, method, masked_path and headers (lowercased
// name to list of values). Errors and non-true results count as no match.
type LuaPointcut struct {
	script        *luaservices.Script
	considersPath bool
	logger        *slog.Logger
}

var _ pointcut.PathAware = (*LuaPointcut)(nil)

// NewLuaPointcut wraps a compiled script, verifying it defines matches
func NewLuaPointcut(script *luaservices.Script, considersPath bool, logger *slog.Logger) (*LuaPointcut, error) {
	defined, err := script.Defines(luaMatchFunction)
	if err != nil {
		return nil, err
	}
	if !defined {
		return nil, fmt.Errorf("%w: %s must define function %s(request)",
			luaservices.ErrFunctionNotDefined, script.Name(), luaMatchFunction)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LuaPointcut{
		script:        script,
		considersPath: considersPath,
		logger:        logger,
	}, nil
}

// Matches implements pointcut.Pointcut
func (p *LuaPointcut) Matches(params *pointcut.Parameters) bool {
	out, err := p.script.Call(luaMatchFunction, requestView(params))
	if err != nil {
		p.logger.Warn("pointcut script failed", "script", p.script.Name(), "error", err)
		return false
	}

	matched, ok := out.(bool)
	return ok && matched
}

// ConsidersPath implements pointcut.PathAware
func (p *LuaPointcut) ConsidersPath() bool {
	return p.considersPath
}
