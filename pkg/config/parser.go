package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// requiredSpaceFields are the keys every space document must carry.
var requiredSpaceFields = []string{"space_id", "title", "warehouse_id"}

// tableIdentifierExpr matches catalog.schema.table. The validator tag and
// the CUE schema both use it.
const tableIdentifierExpr = `^[^.\s]+\.[^.\s]+\.[^.\s]+$`

var tableIdentifierPattern = regexp.MustCompile(tableIdentifierExpr)

// Parser loads space documents, resolves variables and produces SpaceConfigs.
type Parser struct {
	resolver  *VariableResolver
	validator *validator.Validate
	schemas   *SchemaRegistry
	logger    zerolog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserLogger sets the parser logger.
func WithParserLogger(logger zerolog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithResolver replaces the variable resolver.
func WithResolver(r *VariableResolver) ParserOption {
	return func(p *Parser) {
		p.resolver = r
	}
}

// NewParser creates a parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		validator: newValidator(),
		schemas:   NewSchemaRegistry(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resolver == nil {
		p.resolver = NewVariableResolver(WithResolverLogger(p.logger))
	}
	return p
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("table_identifier", func(fl validator.FieldLevel) bool {
		return tableIdentifierPattern.MatchString(fl.Field().String())
	})
	return v
}

// Parse parses a file or every config file in a directory.
func (p *Parser) Parse(ctx context.Context, path, env string, vars map[string]string) ([]*SpaceConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newParseError(path, "config path not found", err)
	}
	if info.IsDir() {
		return p.ParseDirectory(ctx, path, env, vars)
	}
	return p.ParseFile(ctx, path, env, vars)
}

// ParseFile parses one YAML or JSON document.
func (p *Parser) ParseFile(ctx context.Context, path, env string, vars map[string]string) ([]*SpaceConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, newParseError(path, "config file not found", err)
	}

	envVars := p.LoadEnvironmentVariables(filepath.Dir(path), env)
	merged := make(map[string]string, len(envVars)+len(vars))
	for k, v := range envVars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	doc, err := loadDocument(path)
	if err != nil {
		return nil, newParseError(path, "failed to load document", err)
	}

	resolved := p.resolver.Resolve(doc, merged, env)

	configs, err := p.toSpaceConfigs(path, resolved)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("path", path).
		Str("env", env).
		Int("spaces", len(configs)).
		Msg("Parsed config file")

	return configs, nil
}

// ParseDirectory parses *.yaml, *.yml and then *.json files in dir, in
// sorted order. The first failing file aborts the whole batch.
func (p *Parser) ParseDirectory(ctx context.Context, dir, env string, vars map[string]string) ([]*SpaceConfig, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, newParseError(dir, "directory not found", err)
	}

	files, err := configFiles(dir)
	if err != nil {
		return nil, newParseError(dir, "failed to list directory", err)
	}

	var configs []*SpaceConfig
	seen := make(map[string]string)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := p.ParseFile(ctx, file, env, vars)
		if err != nil {
			p.logger.Error().Err(err).Str("path", file).Msg("Failed to parse config file")
			return nil, err
		}

		for _, c := range parsed {
			if prev, dup := seen[c.LogicalID]; dup {
				return nil, newParseError(file, fmt.Sprintf("duplicate space_id '%s' (first defined in %s)", c.LogicalID, prev), nil)
			}
			seen[c.LogicalID] = file
		}
		configs = append(configs, parsed...)
	}

	return configs, nil
}

// configFiles lists YAML files followed by JSON files, each group sorted.
func configFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var yamlFiles, jsonFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, filepath.Join(dir, e.Name()))
		case ".json":
			jsonFiles = append(jsonFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(yamlFiles)
	sort.Strings(jsonFiles)
	return append(yamlFiles, jsonFiles...), nil
}

// LoadEnvironmentVariables reads the defaults document for env, looking in
// base/environments, base/../environments and base itself. A document may
// be a flat map or carry a variables map plus workspace_url and
// warehouse_id shortcuts. Missing or unreadable documents yield no
// variables.
func (p *Parser) LoadEnvironmentVariables(base, env string) map[string]string {
	if env == "" {
		return map[string]string{}
	}

	var candidates []string
	for _, dir := range []string{
		filepath.Join(base, "environments"),
		filepath.Join(filepath.Dir(base), "environments"),
		base,
	} {
		candidates = append(candidates,
			filepath.Join(dir, env+".yaml"),
			filepath.Join(dir, env+".yml"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}

		doc, err := loadDocument(candidate)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", candidate).Msg("Failed to load environment config")
			continue
		}

		vars := environmentVariables(doc)
		p.logger.Debug().
			Str("path", candidate).
			Int("variables", len(vars)).
			Msg("Loaded environment config")
		return vars
	}

	return map[string]string{}
}

func environmentVariables(doc *Node) map[string]string {
	vars := make(map[string]string)
	if doc == nil || doc.Kind != MapKind {
		return vars
	}

	if nested, ok := doc.Get("variables"); ok && nested.Kind == MapKind {
		for _, k := range nested.Keys {
			if s, ok := scalarString(nested.Fields[k]); ok {
				vars[k] = s
			}
		}
		for _, k := range []string{"workspace_url", "warehouse_id"} {
			if v, ok := doc.Get(k); ok {
				if s, ok := scalarString(v); ok {
					vars[k] = s
				}
			}
		}
		return vars
	}

	for _, k := range doc.Keys {
		if s, ok := scalarString(doc.Fields[k]); ok {
			vars[k] = s
		}
	}
	return vars
}

func scalarString(n *Node) (string, bool) {
	switch n.Kind {
	case StringKind, NumberKind:
		return n.Str, true
	case BoolKind:
		if n.Bool {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// loadDocument reads a YAML or JSON file into a Node tree. JSON documents
// are read by the YAML decoder. An empty file yields an empty map.
func loadDocument(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var y yaml.Node
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, err
	}

	n, err := NodeFromYAML(&y)
	if err != nil {
		return nil, err
	}
	if n.IsNull() {
		return NewMap(), nil
	}
	return n, nil
}

// spaceNodes splits a document into its space documents.
func spaceNodes(doc *Node) ([]*Node, error) {
	if doc.Kind != MapKind {
		return nil, errors.New("config must be a map")
	}
	spaces, ok := doc.Get("spaces")
	if !ok {
		return []*Node{doc}, nil
	}
	if spaces.Kind != SequenceKind {
		return nil, errors.New("'spaces' must be a list")
	}
	return spaces.Items, nil
}

func (p *Parser) toSpaceConfigs(path string, doc *Node) ([]*SpaceConfig, error) {
	nodes, err := spaceNodes(doc)
	if err != nil {
		return nil, newParseError(path, err.Error(), nil)
	}

	configs := make([]*SpaceConfig, 0, len(nodes))
	for i, n := range nodes {
		cfg, err := p.decodeSpace(n)
		if err != nil {
			id := "unknown"
			if v, ok := n.Get("space_id"); ok && v.Kind == StringKind {
				id = v.Str
			}
			return nil, newParseError(path, fmt.Sprintf("failed to parse space '%s' (spaces[%d])", id, i), err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (p *Parser) decodeSpace(n *Node) (*SpaceConfig, error) {
	if n.Kind != MapKind {
		return nil, fmt.Errorf("space must be a map, got %s", n.Kind)
	}

	var cfg SpaceConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := p.validator.Struct(&cfg); err != nil {
		return nil, describeValidation(err)
	}
	return &cfg, nil
}

// describeValidation turns validator errors into readable messages.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: missing required field", field))
		case "table_identifier":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a catalog.schema.table identifier", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Validate checks a document without resolving variables and returns
// human-readable problems. An empty result means the document is valid.
func (p *Parser) Validate(path string) []string {
	if _, err := os.Stat(path); err != nil {
		return []string{fmt.Sprintf("File not found: %s", path)}
	}

	doc, err := loadDocument(path)
	if err != nil {
		return []string{fmt.Sprintf("Failed to load file: %v", err)}
	}

	if doc.Kind != MapKind {
		return []string{"Config must be a dictionary"}
	}

	var problems []string
	if !doc.Has("spaces") && !doc.Has("space_id") {
		problems = append(problems, "Config must have 'spaces' list or be a single space config")
	}

	spaces := []*Node{doc}
	if s, ok := doc.Get("spaces"); ok {
		if s.Kind != SequenceKind {
			return []string{"'spaces' must be a list"}
		}
		spaces = s.Items
	}

	for i, space := range spaces {
		problems = append(problems, p.validateSpace(space, i)...)
	}

	return problems
}

func (p *Parser) validateSpace(space *Node, index int) []string {
	prefix := fmt.Sprintf("spaces[%d]", index)
	if space.Kind != MapKind {
		return []string{fmt.Sprintf("%s: Space must be a dictionary", prefix)}
	}

	var problems []string
	for _, field := range requiredSpaceFields {
		v, ok := space.Get(field)
		if !ok || v.IsNull() || (v.Kind == StringKind && v.Str == "") {
			problems = append(problems, fmt.Sprintf("%s: Missing required field '%s'", prefix, field))
		}
	}

	if ds, ok := space.Get("data_sources"); ok && ds.Kind == MapKind {
		if tables, ok := ds.Get("tables"); ok && tables.Kind == SequenceKind {
			for j, table := range tables.Items {
				id, ok := table.Get("identifier")
				if !ok || id.IsNull() || (id.Kind == StringKind && id.Str == "") {
					problems = append(problems, fmt.Sprintf("%s.data_sources.tables[%d]: Missing 'identifier'", prefix, j))
				}
			}
		}
	}

	if len(problems) > 0 {
		return problems
	}

	for _, v := range p.schemas.Violations(context.Background(), SpaceSchemaName, space.ToValue()) {
		problems = append(problems, fmt.Sprintf("%s: %s", prefix, v))
	}
	return problems
}
