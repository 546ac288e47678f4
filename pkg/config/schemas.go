package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SpaceSchemaName is the registry name of the space document schema.
const SpaceSchemaName = "space"

// SchemaRegistry manages CUE schemas for document validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SpaceSchemaName, "#Space", builtinSpaceSchema); err != nil {
		// The built-in schema is a constant; failing here is a programming error.
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and registers the named definition in it
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates plain Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	return nil
}

// Violations validates data and returns one message per schema violation.
func (sr *SchemaRegistry) Violations(ctx context.Context, schemaName string, data interface{}) []string {
	err := sr.ValidateAgainstSchema(ctx, schemaName, data)
	if err == nil {
		return nil
	}

	var messages []string
	for _, e := range cueerrors.Errors(err) {
		messages = append(messages, e.Error())
	}
	if len(messages) == 0 {
		messages = append(messages, err.Error())
	}
	return messages
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinSpaceSchema mirrors the validator tags on SpaceConfig so that
// Validate rejects every document Parse rejects.
const builtinSpaceSchema = `
#NonEmpty: string & !=""

#Space: {
	space_id:     #NonEmpty
	title:        #NonEmpty
	warehouse_id: #NonEmpty
	parent_path?: string | null
	version?:     int & >=1

	sample_questions?: [...] | null

	data_sources?: {
		tables?: [...#Table] | null
		...
	} | null

	instructions?: {
		example_question_sqls?: [...#ExampleQuestionSQL] | null
		sql_functions?:         [...#SQLFunction] | null
		join_specs?:            [...#JoinSpec] | null
		...
	} | null

	...
}

#Table: {
	identifier: string & =~ #"` + tableIdentifierExpr + `"#
	column_configs?: [...{
		column_name: #NonEmpty
		...
	}] | null
	...
}

#ExampleQuestionSQL: {
	parameters?: [...{
		name: #NonEmpty
		...
	}] | null
	...
}

#SQLFunction: {
	identifier: #NonEmpty
	...
}

#JoinRef: {
	identifier: #NonEmpty
	...
}

// A join either names both sides with left and right, or uses the
// left_table and right_table shorthand.
#JoinSpec: {
	left:  #JoinRef
	right: #JoinRef
	...
} | {
	left?:       null
	left_table:  #NonEmpty
	right_table: #NonEmpty
	...
}
`
