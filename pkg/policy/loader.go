package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/rs/zerolog"
)

// Loader reads custom space policies from a project's policy_dir.
//
// Rego files become policies named after the file, described by their
// leading comment block. JSON files carry a full Policy document. Names
// must be unique and must not shadow a built-in policy.
type Loader struct {
	logger   zerolog.Logger
	reserved map[string]bool
}

// NewLoader creates a loader that refuses the built-in policy names.
func NewLoader(logger zerolog.Logger) *Loader {
	reserved := make(map[string]bool)
	for _, p := range GetBuiltinPolicies() {
		reserved[p.Name] = true
	}
	return &Loader{
		logger:   logger.With().Str("component", "policy-loader").Logger(),
		reserved: reserved,
	}
}

// LoadDir reads every .rego and .json file under dir, in lexical order.
// A missing dir yields no policies. Any broken file fails the load, and
// all of them are reported.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]Policy, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug().Str("policy_dir", dir).Msg("No policy directory, using built-in policies only")
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPolicyFile(path) {
			files = append(files, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read policy_dir %s: %w", dir, err)
	}
	sort.Strings(files)

	var (
		policies []Policy
		errs     []error
		seen     = make(map[string]string)
	)
	for _, path := range files {
		policy, err := l.loadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		switch {
		case l.reserved[policy.Name]:
			errs = append(errs, fmt.Errorf("%s: policy %q shadows a built-in space policy", path, policy.Name))
			continue
		case seen[policy.Name] != "":
			errs = append(errs, fmt.Errorf("%s: policy %q is already defined in %s", path, policy.Name, seen[policy.Name]))
			continue
		}
		seen[policy.Name] = path
		policies = append(policies, *policy)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	l.logger.Debug().Str("policy_dir", dir).Int("count", len(policies)).Msg("Custom space policies read")
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	default:
		return false
	}
}

func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var policy *Policy
	if filepath.Ext(path) == ".json" {
		policy, err = decodePolicyDocument(data)
	} else {
		policy = &Policy{
			Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
			Description: leadingComment(string(data)),
			Rego:        string(data),
			Severity:    SeverityWarning,
			Enabled:     true,
		}
	}
	if err != nil {
		return nil, err
	}

	module, err := ast.ParseModule(path, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("policy %q is not valid rego: %w", policy.Name, err)
	}
	if module == nil || module.Package == nil {
		return nil, fmt.Errorf("policy %q has no package declaring a deny set", policy.Name)
	}
	policy.Source = path
	policy.Builtin = false
	return policy, nil
}

// decodePolicyDocument reads a JSON policy. Policies are enabled and warn
// unless the document says otherwise.
func decodePolicyDocument(data []byte) (*Policy, error) {
	policy := Policy{Enabled: true, Severity: SeverityWarning}
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("invalid policy document: %w", err)
	}
	switch {
	case policy.Name == "":
		return nil, errors.New("policy document has no name")
	case strings.TrimSpace(policy.Rego) == "":
		return nil, fmt.Errorf("policy %q has no rego to evaluate against spaces", policy.Name)
	}
	switch policy.Severity {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
	default:
		return nil, fmt.Errorf("policy %q has unknown severity %q", policy.Name, policy.Severity)
	}
	return &policy, nil
}

// leadingComment joins the # comment lines that open a rego file.
func leadingComment(src string) string {
	var parts []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" && len(parts) == 0 {
			continue
		}
		text, ok := strings.CutPrefix(line, "#")
		if !ok {
			break
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
