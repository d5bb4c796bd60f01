package policy

import (
	"github.com/alechenninger/httppolicy/internal/attributes"
	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// PathPointcut matches when any of its patterns matches the request path
type PathPointcut struct {
	patterns []attributes.PathPattern
}

// NewPathPointcut creates a path pointcut
func NewPathPointcut(patterns ...attributes.PathPattern) *PathPointcut {
	return &PathPointcut{patterns: patterns}
}

// Matches implements pointcut.Pointcut
func (p *PathPointcut) Matches(params *pointcut.Parameters) bool {
	for _, pattern := range p.patterns {
		if pattern.Match(params.Path()) {
			return true
		}
	}
	return false
}

// ConsidersPath implements pointcut.PathAware. Always true.
func (p *PathPointcut) ConsidersPath() bool {
	return true
}

// AnyPointcut matches every event
type AnyPointcut struct{}

// Matches implements pointcut.Pointcut
func (AnyPointcut) Matches(*pointcut.Parameters) bool {
	return true
}

// requestView is the representation of parameters handed to scripted pointcuts
func requestView(params *pointcut.Parameters) map[string]any {
	masked, _ := params.MaskedRequestPath()
	return map[string]any{
		"path":        params.Path(),
		"method":      params.Method(),
		"masked_path": masked,
		"headers":     params.Headers().GetAll(),
	}
}
