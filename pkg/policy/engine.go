package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

// Engine evaluates Rego policies against plans and destroy requests. It
// implements engine.PolicyEvaluator.
type Engine struct {
	mu        sync.RWMutex
	policies  map[string]*compiledPolicy
	logger    zerolog.Logger
	loader    *Loader
	protected []string
	threshold int
	user      string
	now       func() time.Time
}

var _ engine.PolicyEvaluator = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithProtectedEnvironments marks environments where destroys are denied.
func WithProtectedEnvironments(envs ...string) Option {
	return func(e *Engine) { e.protected = append(e.protected, envs...) }
}

// WithMassChangeThreshold sets the mutation count that triggers a warning.
// Zero or less disables the warning.
func WithMassChangeThreshold(n int) Option {
	return func(e *Engine) { e.threshold = n }
}

// WithUser sets the user reported to policies.
func WithUser(user string) Option {
	return func(e *Engine) { e.user = user }
}

// WithClock overrides the evaluation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies:  make(map[string]*compiledPolicy),
		logger:    logger.With().Str("component", "policy-engine").Logger(),
		threshold: DefaultMassChangeThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loader = NewLoader(e.logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// EvaluatePlan evaluates policies against an apply of plan.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.Plan) (*engine.PolicyResult, error) {
	input := e.newInput(OperationApply, plan.Environment)
	for _, item := range plan.Items {
		in := InputItem{
			LogicalID: item.LogicalID,
			Action:    string(item.Action),
			Changes:   item.Changes,
		}
		if item.Config != nil {
			in.Title = item.Config.Title
			in.WarehouseID = item.Config.WarehouseID
			in.Tables = item.Config.TableIdentifiers()
		}
		if item.Current != nil {
			in.RemoteID = item.Current.RemoteIDOrEmpty()
		}
		input.Items = append(input.Items, in)
		input.Summary[in.Action]++
	}

	return e.evaluate(ctx, input, "plan_id", plan.ID)
}

// EvaluateDestroy evaluates policies against destroying logicalIDs.
func (e *Engine) EvaluateDestroy(ctx context.Context, environment string, logicalIDs []string) (*engine.PolicyResult, error) {
	input := e.newInput(OperationDestroy, environment)
	for _, id := range logicalIDs {
		input.Items = append(input.Items, InputItem{LogicalID: id, Action: string(engine.ActionDestroy)})
	}
	input.Summary[string(engine.ActionDestroy)] = len(logicalIDs)

	return e.evaluate(ctx, input, "environment", environment)
}

func (e *Engine) newInput(operation, environment string) *PolicyInput {
	protected := e.protected
	if protected == nil {
		protected = []string{}
	}
	return &PolicyInput{
		Operation:   operation,
		Environment: environment,
		Items:       []InputItem{},
		Summary:     map[string]int{},
		Context: &PolicyContext{
			User:                  e.user,
			Timestamp:             e.now(),
			ProtectedEnvironments: protected,
			MassChangeThreshold:   e.threshold,
		},
	}
}

// evaluate runs every enabled policy. Error and critical violations deny
// the operation; the rest become warnings. A policy that fails to
// evaluate is reported as a warning and skipped.
func (e *Engine) evaluate(ctx context.Context, input *PolicyInput, logKey, logValue string) (*engine.PolicyResult, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, err := toDocument(input)
	if err != nil {
		return nil, err
	}

	result := &engine.PolicyResult{Allowed: true, EvaluatedAt: e.now()}
	for _, cp := range e.sortedPolicies() {
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str(logKey, logValue).
				Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("Policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for _, v := range violations {
			if Severity(v.Severity).Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
				continue
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		}
	}

	e.logger.Debug().
		Str("operation", input.Operation).
		Str(logKey, logValue).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(startTime)).
		Msg("Policy evaluation completed")

	return result, nil
}

// toDocument converts input to plain JSON values so policies see the same
// field names as the JSON tags.
func toDocument(input *PolicyInput) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy input: %w", err)
	}
	return doc, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input map[string]interface{}) ([]engine.PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []engine.PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// deny is a set, which evaluates to a list
		if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
			for _, d := range denySet {
				violations = append(violations, createViolation(cp.policy, d))
			}
		}
	}

	return violations, nil
}

// createViolation creates a PolicyViolation from a deny entry, which is
// either a message string or a {message, severity, resource} object.
func createViolation(policy *Policy, result interface{}) engine.PolicyViolation {
	violation := engine.PolicyViolation{
		Policy:   policy.Name,
		Severity: string(policy.Severity),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
		if res, ok := v["resource"].(string); ok {
			violation.ResourceID = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compilePolicy prepares the deny query of a policy's package.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil || module.Package == nil {
		return nil, fmt.Errorf("policy %s declares no package", policy.Name)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		cp, err := compilePolicy(ctx, &builtins[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

// LoadPolicies replaces the custom policies with those in dir. Built-in
// policies keep their enabled state. On error the loaded set is unchanged.
func (e *Engine) LoadPolicies(ctx context.Context, dir string) error {
	policies, err := e.loader.LoadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Info().Str("policy_dir", dir).Int("count", len(compiled)).Msg("Custom policies loaded")
	return nil
}

func (e *Engine) sortedPolicies() []*compiledPolicy {
	out := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].policy.Name < out[j].policy.Name })
	return out
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.sortedPolicies() {
		policies = append(policies, *cp.policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}
