package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSpaceVersion is the serialized space format version.
const DefaultSpaceVersion = 2

// DefaultTypeHint is the parameter type used when none is given.
const DefaultTypeHint = "STRING"

// SpaceConfig is the desired state of one space.
//
// Values are built fresh on every parse and treated as immutable
// afterwards. Only the content hash and a few display fields are ever
// persisted.
type SpaceConfig struct {
	// LogicalID is the user-chosen key that identifies the space across runs.
	LogicalID string `yaml:"space_id" json:"space_id" validate:"required"`

	// Title is the display title of the space.
	Title string `yaml:"title" json:"title" validate:"required"`

	// WarehouseID references the compute endpoint that serves queries.
	WarehouseID string `yaml:"warehouse_id" json:"warehouse_id" validate:"required"`

	// ParentPath is the optional workspace folder of the space.
	ParentPath string `yaml:"parent_path,omitempty" json:"parent_path,omitempty"`

	// SampleQuestions are prompts shown to users of the space.
	SampleQuestions []SampleQuestion `yaml:"sample_questions,omitempty" json:"sample_questions"`

	// DataSources lists the tables the space can query.
	DataSources DataSources `yaml:"data_sources,omitempty" json:"data_sources"`

	// Instructions carries free text guidance, examples and SQL helpers.
	Instructions Instructions `yaml:"instructions,omitempty" json:"instructions"`

	// Benchmarks are evaluation questions kept locally.
	Benchmarks *Benchmarks `yaml:"benchmarks,omitempty" json:"benchmarks,omitempty"`

	// Version is the serialized space format version.
	Version int `yaml:"version,omitempty" json:"version"`

	// Author is free-form ownership metadata.
	Author string `yaml:"author,omitempty" json:"author,omitempty"`

	// Description is free-form metadata.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Tags are free-form labels.
	Tags []string `yaml:"tags,omitempty" json:"tags"`
}

// SampleQuestion is a prompt with an optional stable id. In documents it
// may be a bare string.
type SampleQuestion struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Question Text   `yaml:"question" json:"question"`
}

// UnmarshalYAML accepts either a string or a {id, question} map.
func (q *SampleQuestion) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*q = SampleQuestion{Question: Text{value.Value}}
		return nil
	}
	type plain SampleQuestion
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*q = SampleQuestion(p)
	return nil
}

// DataSources groups the table references of a space.
type DataSources struct {
	Tables []TableConfig `yaml:"tables,omitempty" json:"tables" validate:"dive"`
}

// TableConfig references one table by its catalog.schema.table identifier.
type TableConfig struct {
	// Identifier is the dotted 3-part table name.
	Identifier string `yaml:"identifier" json:"identifier" validate:"required,table_identifier"`

	// Description is optional table level guidance.
	Description Text `yaml:"description,omitempty" json:"description"`

	// ColumnConfigs annotate individual columns.
	ColumnConfigs []ColumnConfig `yaml:"column_configs,omitempty" json:"column_configs" validate:"dive"`
}

// ColumnConfig annotates one column of a table.
type ColumnConfig struct {
	ColumnName             string   `yaml:"column_name" json:"column_name" validate:"required"`
	Description            Text     `yaml:"description,omitempty" json:"description"`
	Synonyms               []string `yaml:"synonyms,omitempty" json:"synonyms"`
	EnableFormatAssistance bool     `yaml:"enable_format_assistance,omitempty" json:"enable_format_assistance"`
	EnableEntityMatching   bool     `yaml:"enable_entity_matching,omitempty" json:"enable_entity_matching"`
	BuildValueDictionary   bool     `yaml:"build_value_dictionary,omitempty" json:"build_value_dictionary"`
	GetExampleValues       bool     `yaml:"get_example_values,omitempty" json:"get_example_values"`
}

// Instructions holds the behavioral guidance of a space.
type Instructions struct {
	TextInstructions    []TextInstruction    `yaml:"text_instructions,omitempty" json:"text_instructions"`
	ExampleQuestionSQLs []ExampleQuestionSQL `yaml:"example_question_sqls,omitempty" json:"example_question_sqls" validate:"dive"`
	SQLFunctions        []SQLFunction        `yaml:"sql_functions,omitempty" json:"sql_functions" validate:"dive"`
	JoinSpecs           []JoinSpec           `yaml:"join_specs,omitempty" json:"join_specs" validate:"dive"`
	SQLSnippets         SQLSnippets          `yaml:"sql_snippets,omitempty" json:"sql_snippets"`
}

// TextInstruction is a block of free-text guidance.
type TextInstruction struct {
	ID      string `yaml:"id,omitempty" json:"id,omitempty"`
	Content Text   `yaml:"content" json:"content"`
}

// ExampleQuestionSQL pairs a question with the SQL that answers it.
type ExampleQuestionSQL struct {
	ID            string      `yaml:"id,omitempty" json:"id,omitempty"`
	Question      Text        `yaml:"question" json:"question"`
	SQL           Text        `yaml:"sql" json:"sql"`
	Parameters    []Parameter `yaml:"parameters,omitempty" json:"parameters" validate:"dive"`
	UsageGuidance Text        `yaml:"usage_guidance,omitempty" json:"usage_guidance"`
}

// Parameter is a named placeholder of an example SQL.
type Parameter struct {
	Name         string        `yaml:"name" json:"name" validate:"required"`
	TypeHint     string        `yaml:"type_hint,omitempty" json:"type_hint"`
	Description  Text          `yaml:"description,omitempty" json:"description"`
	DefaultValue *DefaultValue `yaml:"default_value,omitempty" json:"default_value,omitempty"`
}

// DefaultValue is the default of a parameter.
type DefaultValue struct {
	Values []string `yaml:"values" json:"values"`
}

// UnmarshalYAML accepts {values: [...]}, {value: x}, a list or a scalar.
func (d *DefaultValue) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var m struct {
			Values *Text   `yaml:"values"`
			Value  *string `yaml:"value"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.Values != nil:
			d.Values = []string(*m.Values)
		case m.Value != nil:
			d.Values = []string{*m.Value}
		default:
			d.Values = []string{}
		}
		return nil
	case yaml.SequenceNode, yaml.ScalarNode:
		var t Text
		if err := value.Decode(&t); err != nil {
			return err
		}
		d.Values = []string(t)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported default_value", value.Line)
	}
}

// SQLFunction references a registered SQL function.
type SQLFunction struct {
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	Identifier  string `yaml:"identifier" json:"identifier" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// JoinTableRef is one side of a join.
type JoinTableRef struct {
	Identifier string `yaml:"identifier" json:"identifier" validate:"required"`
	Alias      string `yaml:"alias,omitempty" json:"alias,omitempty"`
}

// JoinSpec describes how two tables relate.
type JoinSpec struct {
	ID          string       `yaml:"id,omitempty" json:"id,omitempty"`
	Left        JoinTableRef `yaml:"left" json:"left"`
	Right       JoinTableRef `yaml:"right" json:"right"`
	SQL         Text         `yaml:"sql" json:"sql"`
	Instruction Text         `yaml:"instruction,omitempty" json:"instruction"`
}

// UnmarshalYAML accepts both the left/right form and the older
// left_table/right_table/join_condition form.
func (j *JoinSpec) UnmarshalYAML(value *yaml.Node) error {
	var doc struct {
		ID          string        `yaml:"id"`
		Left        *JoinTableRef `yaml:"left"`
		Right       *JoinTableRef `yaml:"right"`
		SQL         Text          `yaml:"sql"`
		Instruction Text          `yaml:"instruction"`

		LeftTable     string `yaml:"left_table"`
		RightTable    string `yaml:"right_table"`
		JoinCondition string `yaml:"join_condition"`
		JoinType      string `yaml:"join_type"`
		Description   string `yaml:"description"`
	}
	if err := value.Decode(&doc); err != nil {
		return err
	}

	j.ID = doc.ID
	if doc.Left != nil {
		j.Left = *doc.Left
		if doc.Right != nil {
			j.Right = *doc.Right
		}
		j.SQL = doc.SQL
		j.Instruction = doc.Instruction
		return nil
	}

	j.Left = JoinTableRef{Identifier: doc.LeftTable}
	j.Right = JoinTableRef{Identifier: doc.RightTable}
	j.SQL = Text{doc.JoinCondition}
	joinType := strings.ToUpper(strings.TrimSpace(doc.JoinType))
	if joinType != "" && joinType != "INNER" {
		j.SQL = append(j.SQL, fmt.Sprintf("--rt=FROM_RELATIONSHIP_TYPE_%s--", joinType))
	}
	if doc.Description != "" {
		j.Instruction = Text{doc.Description}
	}
	return nil
}

// SQLSnippets groups reusable SQL fragments by role.
type SQLSnippets struct {
	Filters     []SQLSnippet `yaml:"filters,omitempty" json:"filters"`
	Expressions []SQLSnippet `yaml:"expressions,omitempty" json:"expressions"`
	Measures    []SQLSnippet `yaml:"measures,omitempty" json:"measures"`
}

// SQLSnippet is a named, reusable SQL fragment.
type SQLSnippet struct {
	ID          string   `yaml:"id,omitempty" json:"id,omitempty"`
	SQL         Text     `yaml:"sql" json:"sql"`
	DisplayName string   `yaml:"display_name,omitempty" json:"display_name"`
	Instruction Text     `yaml:"instruction,omitempty" json:"instruction"`
	Synonyms    []string `yaml:"synonyms,omitempty" json:"synonyms"`
}

// Benchmarks are evaluation questions. They are never sent to the remote.
type Benchmarks struct {
	Questions []BenchmarkQuestion `yaml:"questions,omitempty" json:"questions"`
}

// BenchmarkQuestion pairs a question with its expected SQL.
type BenchmarkQuestion struct {
	Question    Text `yaml:"question" json:"question"`
	ExpectedSQL Text `yaml:"expected_sql,omitempty" json:"expected_sql"`
}

// TableIdentifiers returns the identifiers of all referenced tables.
func (c *SpaceConfig) TableIdentifiers() []string {
	ids := make([]string, 0, len(c.DataSources.Tables))
	for _, t := range c.DataSources.Tables {
		ids = append(ids, t.Identifier)
	}
	return ids
}

// normalize replaces absent collections with empty ones and fills defaults.
func (c *SpaceConfig) normalize() {
	if c.Version == 0 {
		c.Version = DefaultSpaceVersion
	}
	if c.SampleQuestions == nil {
		c.SampleQuestions = []SampleQuestion{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.DataSources.Tables == nil {
		c.DataSources.Tables = []TableConfig{}
	}
	for i := range c.DataSources.Tables {
		if c.DataSources.Tables[i].ColumnConfigs == nil {
			c.DataSources.Tables[i].ColumnConfigs = []ColumnConfig{}
		}
	}

	in := &c.Instructions
	if in.TextInstructions == nil {
		in.TextInstructions = []TextInstruction{}
	}
	if in.ExampleQuestionSQLs == nil {
		in.ExampleQuestionSQLs = []ExampleQuestionSQL{}
	}
	for i := range in.ExampleQuestionSQLs {
		params := in.ExampleQuestionSQLs[i].Parameters
		if params == nil {
			in.ExampleQuestionSQLs[i].Parameters = []Parameter{}
		}
		for p := range params {
			if params[p].TypeHint == "" {
				params[p].TypeHint = DefaultTypeHint
			}
		}
	}
	if in.SQLFunctions == nil {
		in.SQLFunctions = []SQLFunction{}
	}
	if in.JoinSpecs == nil {
		in.JoinSpecs = []JoinSpec{}
	}
	if in.SQLSnippets.Filters == nil {
		in.SQLSnippets.Filters = []SQLSnippet{}
	}
	if in.SQLSnippets.Expressions == nil {
		in.SQLSnippets.Expressions = []SQLSnippet{}
	}
	if in.SQLSnippets.Measures == nil {
		in.SQLSnippets.Measures = []SQLSnippet{}
	}
}
