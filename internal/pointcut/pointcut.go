package pointcut

// Pointcut decides whether a policy applies to a request or response event
type Pointcut interface {
	// Matches reports whether the policy applies for the given parameters
	Matches(params *Parameters) bool
}

// Func adapts a plain function to the Pointcut interface
type Func func(params *Parameters) bool

// Matches implements Pointcut
func (f Func) Matches(params *Parameters) bool {
	return f(params)
}

// PathAware is an optional capability of a Pointcut.
//
// If a pointcut implements PathAware and ConsidersPath returns true, the full
// request path is taken into account when evaluating it. Otherwise the path
// is ignored.
type PathAware interface {
	Pointcut

	// ConsidersPath returns true if the full path must be considered for the pointcut
	ConsidersPath() bool
}

// ConsidersPath probes pc for the PathAware capability.
// Pointcuts that do not implement it do not consider the path.
func ConsidersPath(pc Pointcut) bool {
	if aware, ok := pc.(PathAware); ok {
		return aware.ConsidersPath()
	}
	return false
}

// PathInsensitive returns a copy of p for evaluating a pointcut that does not
// consider the full path: the path and masked request path are cleared, all
// other fields are preserved.
func PathInsensitive(p *Parameters) *Parameters {
	if p == nil {
		return nil
	}
	out := *p
	out.path = ""
	out.maskedPath = ""
	out.hasMaskedPath = false
	return &out
}
