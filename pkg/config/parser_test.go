package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const validSpaces = `
spaces:
  - space_id: sales
    title: "Sales (${env})"
    warehouse_id: ${warehouse_id}
    sample_questions:
      - What were sales last month?
      - id: q2
        question: [Top customers?]
    data_sources:
      tables:
        - identifier: ${catalog}.sales.orders
  - space_id: hr
    title: HR
    warehouse_id: wh-hr
`

func TestParser_ParseFileWithEnvironmentDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "spaces/all.yaml", validSpaces)
	writeFile(t, dir, "environments/prod.yaml", `
workspace_url: https://example.cloud
warehouse_id: wh-prod
variables:
  catalog: prod_catalog
`)

	p := NewParser(WithResolver(NewVariableResolver(WithEnvLookup(fakeEnv(nil)))))
	configs, err := p.ParseFile(context.Background(), path, "prod", map[string]string{"catalog": "explicit"})
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if len(configs) != 2 {
		t.Fatalf("expected 2 spaces, got %d", len(configs))
	}

	sales := configs[0]
	if sales.LogicalID != "sales" || configs[1].LogicalID != "hr" {
		t.Errorf("expected document order to be preserved, got %s, %s", sales.LogicalID, configs[1].LogicalID)
	}
	if sales.Title != "Sales (prod)" {
		t.Errorf("expected env substitution in title, got %q", sales.Title)
	}
	if sales.WarehouseID != "wh-prod" {
		t.Errorf("expected warehouse from environment defaults, got %q", sales.WarehouseID)
	}
	if got := sales.DataSources.Tables[0].Identifier; got != "explicit.sales.orders" {
		t.Errorf("expected explicit variable to beat environment default, got %q", got)
	}
	if len(sales.SampleQuestions) != 2 || sales.SampleQuestions[0].Question[0] != "What were sales last month?" || sales.SampleQuestions[1].ID != "q2" {
		t.Errorf("unexpected sample questions: %+v", sales.SampleQuestions)
	}

	hr := configs[1]
	if hr.Instructions.TextInstructions == nil || hr.DataSources.Tables == nil || hr.SampleQuestions == nil {
		t.Error("absent collections must decode as empty, not nil")
	}
	if hr.Version != DefaultSpaceVersion {
		t.Errorf("expected default version %d, got %d", DefaultSpaceVersion, hr.Version)
	}
}

func TestParser_FlatEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dev.yaml", "warehouse_id: wh-flat\n")
	path := writeFile(t, dir, "space.yaml", "space_id: a\ntitle: A\nwarehouse_id: ${warehouse_id}\n")

	configs, err := NewParser().ParseFile(context.Background(), path, "dev", nil)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if configs[0].WarehouseID != "wh-flat" {
		t.Errorf("expected flat environment variables, got %q", configs[0].WarehouseID)
	}
}

func TestParser_JSONDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "space.json", `{"space_id": "j", "title": "J", "warehouse_id": "w", "tags": ["a"]}`)

	configs, err := NewParser().ParseFile(context.Background(), path, "dev", nil)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if configs[0].LogicalID != "j" || len(configs[0].Tags) != 1 {
		t.Errorf("unexpected config: %+v", configs[0])
	}
}

func TestParser_InstructionShapes(t *testing.T) {
	cfg := parseOne(t, `
space_id: s
title: S
warehouse_id: w
instructions:
  example_question_sqls:
    - question: How many?
      sql: SELECT 1
      parameters:
        - name: p1
          default_value: {values: [a, b]}
        - name: p2
          default_value: {type: LITERAL, value: NA}
        - name: p3
          default_value: [x]
        - name: p4
          default_value: solo
  join_specs:
    - left_table: a.b.orders
      right_table: a.b.customers
      join_condition: orders.cid = customers.id
      join_type: LEFT
      description: Orders to customers
    - left: {identifier: a.b.x, alias: x}
      right: {identifier: a.b.y}
      sql: [x.id = y.id]
  sql_snippets:
    measures:
      - display_name: Revenue
        sql: SUM(amount)
`)

	ex := cfg.Instructions.ExampleQuestionSQLs[0]
	wantDefaults := [][]string{{"a", "b"}, {"NA"}, {"x"}, {"solo"}}
	for i, want := range wantDefaults {
		got := ex.Parameters[i].DefaultValue
		if got == nil || strings.Join(got.Values, ",") != strings.Join(want, ",") {
			t.Errorf("parameter %d: expected default %v, got %+v", i, want, got)
		}
		if ex.Parameters[i].TypeHint != DefaultTypeHint {
			t.Errorf("parameter %d: expected type hint %s, got %s", i, DefaultTypeHint, ex.Parameters[i].TypeHint)
		}
	}

	legacy := cfg.Instructions.JoinSpecs[0]
	if legacy.Left.Identifier != "a.b.orders" || legacy.Right.Identifier != "a.b.customers" {
		t.Errorf("legacy join tables not converted: %+v", legacy)
	}
	if len(legacy.SQL) != 2 || legacy.SQL[1] != "--rt=FROM_RELATIONSHIP_TYPE_LEFT--" {
		t.Errorf("expected relationship marker for LEFT join, got %v", legacy.SQL)
	}
	if len(legacy.Instruction) != 1 {
		t.Errorf("expected description to become an instruction, got %v", legacy.Instruction)
	}

	modern := cfg.Instructions.JoinSpecs[1]
	if modern.Left.Alias != "x" || modern.Right.Identifier != "a.b.y" {
		t.Errorf("unexpected join spec: %+v", modern)
	}

	if cfg.Instructions.SQLSnippets.Measures[0].SQL[0] != "SUM(amount)" {
		t.Error("expected scalar sql to normalise to a list")
	}
}

func TestParser_DirectoryIsFailFast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "space_id: a\ntitle: A\nwarehouse_id: w\n")
	writeFile(t, dir, "b.yaml", "space_id: b\ntitle: B\n")
	writeFile(t, dir, "c.json", `{"space_id": "c", "title": "C", "warehouse_id": "w"}`)

	configs, err := NewParser().ParseDirectory(context.Background(), dir, "dev", nil)
	if err == nil {
		t.Fatal("expected the malformed file to abort the batch")
	}
	if configs != nil {
		t.Errorf("expected no partial result, got %d configs", len(configs))
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if filepath.Base(perr.Path) != "b.yaml" {
		t.Errorf("expected error to name b.yaml, got %s", perr.Path)
	}
}

func TestParser_DirectoryOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.json", `{"space_id": "z", "title": "Z", "warehouse_id": "w"}`)
	writeFile(t, dir, "b.yaml", "space_id: b\ntitle: B\nwarehouse_id: w\n")
	writeFile(t, dir, "a.yml", "space_id: a\ntitle: A\nwarehouse_id: w\n")
	writeFile(t, dir, "notes.txt", "ignored")

	configs, err := NewParser().Parse(context.Background(), dir, "dev", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var ids []string
	for _, c := range configs {
		ids = append(ids, c.LogicalID)
	}
	if strings.Join(ids, ",") != "a,b,z" {
		t.Errorf("expected yaml files sorted then json, got %v", ids)
	}
}

func TestParser_DuplicateLogicalIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "space_id: same\ntitle: A\nwarehouse_id: w\n")
	writeFile(t, dir, "b.yaml", "space_id: same\ntitle: B\nwarehouse_id: w\n")

	if _, err := NewParser().ParseDirectory(context.Background(), dir, "dev", nil); err == nil {
		t.Fatal("expected duplicate space_id to fail")
	}
}

func TestParser_MissingFile(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), "dev", nil)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParser_BadTableIdentifier(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.yaml", `
space_id: s
title: S
warehouse_id: w
data_sources:
  tables:
    - identifier: only.two
`)

	_, err := NewParser().ParseFile(context.Background(), path, "dev", nil)
	if err == nil || !strings.Contains(err.Error(), "only.two") {
		t.Fatalf("expected identifier error, got %v", err)
	}
}

// A document missing warehouse_id is rejected by both Validate and Parse.
func TestParser_ValidateAndParseAgree(t *testing.T) {
	const head = "space_id: s\ntitle: S\nwarehouse_id: w\n"

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing warehouse",
			content: "space_id: s\ntitle: S\n",
			want:    "warehouse_id",
		},
		{
			name: "parameter without name",
			content: head + `instructions:
  example_question_sqls:
    - question: How many?
      sql: SELECT 1
      parameters:
        - type_hint: STRING
`,
			want: "name",
		},
		{
			name: "identifier with whitespace",
			content: head + `data_sources:
  tables:
    - identifier: cat.my schema.tbl
`,
			want: "identifier",
		},
		{
			name: "join without left identifier",
			content: head + `instructions:
  join_specs:
    - left: {alias: x}
      right: {identifier: a.b.y}
      sql: x.id = y.id
`,
			want: "join_specs",
		},
		{
			name: "join shorthand without right table",
			content: head + `instructions:
  join_specs:
    - left_table: a.b.orders
      join_condition: orders.cid = customers.id
`,
			want: "join_specs",
		},
		{
			name: "sql function without identifier",
			content: head + `instructions:
  sql_functions:
    - description: Fiscal quarter
`,
			want: "identifier",
		},
		{
			name: "column without name",
			content: head + `data_sources:
  tables:
    - identifier: a.b.c
      column_configs:
        - description: no name
`,
			want: "column_name",
		},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "s.yaml", tt.content)

			problems := p.Validate(path)
			if len(problems) == 0 {
				t.Fatal("Validate accepted a document Parse rejects")
			}
			if !strings.Contains(strings.Join(problems, "\n"), tt.want) {
				t.Errorf("expected a problem mentioning %q, got %v", tt.want, problems)
			}

			_, err := p.ParseFile(context.Background(), path, "dev", nil)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError from Parse, got %v", err)
			}
		})
	}

	// Documents Parse accepts must validate cleanly.
	for name, content := range map[string]string{
		"export":  validSpaceForExport,
		"shapes":  head + "instructions:\n  join_specs:\n    - left_table: a.b.orders\n      right_table: a.b.customers\n  sql_functions:\n    - identifier: main.fn.fiscal_q\n",
		"complete": validSpaces,
	} {
		path := writeFile(t, t.TempDir(), name+".yaml", content)
		if problems := p.Validate(path); len(problems) != 0 {
			t.Errorf("%s: unexpected problems %v", name, problems)
		}
		if _, err := p.ParseFile(context.Background(), path, "dev", map[string]string{"catalog": "main"}); err != nil {
			t.Errorf("%s: unexpected parse error %v", name, err)
		}
	}
}

func TestParser_Validate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "valid",
			content: validSpaces,
			want:    nil,
		},
		{
			name:    "syntax error",
			content: "spaces: [unclosed",
			want:    []string{"Failed to load file"},
		},
		{
			name:    "not a map",
			content: "- a\n- b\n",
			want:    []string{"Config must be a dictionary"},
		},
		{
			name:    "spaces not a list",
			content: "spaces: nope\n",
			want:    []string{"'spaces' must be a list"},
		},
		{
			name:    "no spaces",
			content: "title: x\n",
			want: []string{
				"Config must have 'spaces' list or be a single space config",
				"spaces[0]: Missing required field 'space_id'",
				"spaces[0]: Missing required field 'warehouse_id'",
			},
		},
		{
			name: "table without identifier",
			content: `
spaces:
  - space_id: a
    title: A
    warehouse_id: w
    data_sources:
      tables:
        - description: x
`,
			want: []string{"spaces[0].data_sources.tables[0]: Missing 'identifier'"},
		},
		{
			name: "schema finding",
			content: `
space_id: a
title: A
warehouse_id: w
data_sources:
  tables:
    - identifier: not_dotted
`,
			want: []string{"spaces[0]:"},
		},
	}

	p := NewParser()
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, filepath.Join("case", string(rune('a'+i))+".yaml"), tt.content)
			got := p.Validate(path)

			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("expected no problems, got %v", got)
				}
				return
			}

			joined := strings.Join(got, "\n")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("expected %q in %v", w, got)
				}
			}
		})
	}

	if got := p.Validate(filepath.Join(dir, "missing.yaml")); len(got) != 1 || !strings.HasPrefix(got[0], "File not found") {
		t.Errorf("expected file not found, got %v", got)
	}
}

func TestSanitizeLogicalID(t *testing.T) {
	tests := map[string]string{
		"Sales Analytics!": "sales_analytics",
		"  2024 Report ":   "space_2024_report",
		"***":              "imported_space",
	}
	for in, want := range tests {
		if got := SanitizeLogicalID(in); got != want {
			t.Errorf("SanitizeLogicalID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarshalSpacesRoundTrip(t *testing.T) {
	original := parseOne(t, validSpaceForExport)

	data, err := MarshalSpaces(original)
	if err != nil {
		t.Fatalf("MarshalSpaces: %v", err)
	}

	path := writeFile(t, t.TempDir(), "out.yaml", string(data))
	back, err := NewParser().ParseFile(context.Background(), path, "dev", nil)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if back[0].ConfigHash() != original.ConfigHash() {
		t.Errorf("exported document hashes differently:\n%s", data)
	}
}

const validSpaceForExport = `
space_id: exp
title: Export Me
warehouse_id: w
parent_path: /Shared/genie
data_sources:
  tables:
    - identifier: a.b.c
      column_configs:
        - column_name: id
          enable_format_assistance: true
instructions:
  join_specs:
    - left: {identifier: a.b.c, alias: c}
      right: {identifier: a.b.d}
      sql: c.id = d.id
`
