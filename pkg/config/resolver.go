package config

import (
	"os"
	"regexp"

	"github.com/rs/zerolog"
)

// placeholderPattern matches ${name} placeholders.
var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// EnvVariable is the variable implicitly bound to the environment name.
const EnvVariable = "env"

// VariableResolver substitutes ${name} placeholders in a Node tree.
//
// Lookup order is the explicit variables, then the process environment.
// Unresolved placeholders are left in place and logged. Substituted text
// is never scanned again.
type VariableResolver struct {
	logger zerolog.Logger

	// lookupEnv reads process environment variables.
	lookupEnv func(string) (string, bool)
}

// ResolverOption configures a VariableResolver.
type ResolverOption func(*VariableResolver)

// WithResolverLogger sets the logger used for unresolved placeholders.
func WithResolverLogger(logger zerolog.Logger) ResolverOption {
	return func(r *VariableResolver) {
		r.logger = logger
	}
}

// WithEnvLookup replaces the process environment lookup.
func WithEnvLookup(fn func(string) (string, bool)) ResolverOption {
	return func(r *VariableResolver) {
		r.lookupEnv = fn
	}
}

// NewVariableResolver creates a resolver reading os.LookupEnv by default.
func NewVariableResolver(opts ...ResolverOption) *VariableResolver {
	r := &VariableResolver{
		logger:    zerolog.Nop(),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a copy of tree with placeholders substituted in every
// string value. Map keys are left unchanged.
func (r *VariableResolver) Resolve(tree *Node, variables map[string]string, environment string) *Node {
	scope := make(map[string]string, len(variables)+1)
	if environment != "" {
		scope[EnvVariable] = environment
	}
	for k, v := range variables {
		scope[k] = v
	}

	return r.resolveNode(tree, scope)
}

func (r *VariableResolver) resolveNode(n *Node, scope map[string]string) *Node {
	if n == nil {
		return nil
	}

	switch n.Kind {
	case StringKind:
		return NewString(r.ResolveString(n.Str, scope))
	case SequenceKind:
		out := NewSequence()
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = r.resolveNode(item, scope)
		}
		return out
	case MapKind:
		out := NewMap()
		for _, k := range n.Keys {
			out.Set(k, r.resolveNode(n.Fields[k], scope))
		}
		return out
	default:
		return n.Clone()
	}
}

// ResolveString substitutes placeholders in a single string.
func (r *VariableResolver) ResolveString(s string, scope map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		if v, ok := scope[name]; ok {
			return v
		}
		if v, ok := r.lookupEnv(name); ok {
			return v
		}

		r.logger.Warn().
			Str("variable", name).
			Msg("Unresolved variable, leaving placeholder in place")
		return match
	})
}
