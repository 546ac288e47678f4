package remote

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

// SpaceRequest is the create and update body of the spaces API.
// SerializedSpace holds the JSON encoding of a SerializedSpace.
type SpaceRequest struct {
	Title           string `json:"title"`
	WarehouseID     string `json:"warehouse_id"`
	ParentPath      string `json:"parent_path,omitempty"`
	SerializedSpace string `json:"serialized_space"`
}

// SerializedSpace is the version 2 space document understood by the API.
type SerializedSpace struct {
	Version      int              `json:"version"`
	Config       spaceSettings    `json:"config"`
	DataSources  wireDataSources  `json:"data_sources"`
	Instructions wireInstructions `json:"instructions"`
	Benchmarks   *wireBenchmarks  `json:"benchmarks,omitempty"`
}

type spaceSettings struct {
	SampleQuestions []wireQuestion `json:"sample_questions"`
}

type wireQuestion struct {
	ID       string   `json:"id"`
	Question wireText `json:"question"`
}

type wireDataSources struct {
	Tables []wireTable `json:"tables"`
}

type wireTable struct {
	Identifier    string       `json:"identifier"`
	Description   wireText     `json:"description,omitempty"`
	ColumnConfigs []wireColumn `json:"column_configs,omitempty"`
}

type wireColumn struct {
	ColumnName             string   `json:"column_name"`
	Description            wireText `json:"description,omitempty"`
	Synonyms               []string `json:"synonyms,omitempty"`
	EnableFormatAssistance bool     `json:"enable_format_assistance,omitempty"`
	EnableEntityMatching   bool     `json:"enable_entity_matching,omitempty"`
	BuildValueDictionary   bool     `json:"build_value_dictionary,omitempty"`
	GetExampleValues       bool     `json:"get_example_values,omitempty"`
}

type wireInstructions struct {
	TextInstructions    []wireTextInstruction `json:"text_instructions,omitempty"`
	ExampleQuestionSQLs []wireExample         `json:"example_question_sqls,omitempty"`
	SQLFunctions        []wireFunction        `json:"sql_functions,omitempty"`
	JoinSpecs           []wireJoin            `json:"join_specs,omitempty"`
	SQLSnippets         *wireSnippets         `json:"sql_snippets,omitempty"`
}

type wireTextInstruction struct {
	ID      string   `json:"id"`
	Content wireText `json:"content"`
}

type wireExample struct {
	ID            string          `json:"id"`
	Question      wireText        `json:"question"`
	SQL           wireText        `json:"sql"`
	Parameters    []wireParameter `json:"parameters,omitempty"`
	UsageGuidance wireText        `json:"usage_guidance,omitempty"`
}

type wireParameter struct {
	Name         string        `json:"name"`
	TypeHint     string        `json:"type_hint"`
	Description  wireText      `json:"description,omitempty"`
	DefaultValue *wireDefaults `json:"default_value,omitempty"`
}

type wireDefaults struct {
	Values []string `json:"values"`
}

type wireFunction struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Description string `json:"description,omitempty"`
}

type wireJoin struct {
	ID          string       `json:"id"`
	Left        wireTableRef `json:"left"`
	Right       wireTableRef `json:"right"`
	SQL         wireText     `json:"sql"`
	Instruction wireText     `json:"instruction,omitempty"`
}

type wireTableRef struct {
	Identifier string `json:"identifier"`
	Alias      string `json:"alias,omitempty"`
}

type wireSnippets struct {
	Filters     []wireSnippet `json:"filters,omitempty"`
	Expressions []wireSnippet `json:"expressions,omitempty"`
	Measures    []wireSnippet `json:"measures,omitempty"`
}

type wireSnippet struct {
	ID          string   `json:"id"`
	SQL         wireText `json:"sql"`
	DisplayName string   `json:"display_name"`
	Instruction wireText `json:"instruction,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty"`
}

type wireBenchmarks struct {
	Questions []wireBenchmark `json:"questions"`
}

type wireBenchmark struct {
	Question    wireText `json:"question"`
	ExpectedSQL wireText `json:"expected_sql"`
}

// wireText is a list of strings that also decodes from a bare string.
type wireText []string

func (t *wireText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = wireText{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// Serializer converts space configs to and from the API representation.
//
// The API requires every instruction item to carry a lowercase 32-hex id
// and every instruction list to be sorted by id. Missing ids are generated
// with NewID.
type Serializer struct {
	// NewID generates item ids. Defaults to a random uuid without hyphens.
	NewID func() string
}

// NewSerializer returns a serializer with random ids.
func NewSerializer() *Serializer {
	return &Serializer{NewID: newHexID}
}

func newHexID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (s *Serializer) id(existing string) string {
	if existing != "" {
		return existing
	}
	if s.NewID == nil {
		return newHexID()
	}
	return s.NewID()
}

// ToRequest builds the create or update body for cfg.
func (s *Serializer) ToRequest(cfg *config.SpaceConfig) (*SpaceRequest, error) {
	body, err := json.Marshal(s.ToSerializedSpace(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode serialized space for %s: %w", cfg.LogicalID, err)
	}
	return &SpaceRequest{
		Title:           cfg.Title,
		WarehouseID:     cfg.WarehouseID,
		ParentPath:      cfg.ParentPath,
		SerializedSpace: string(body),
	}, nil
}

// ToSerializedSpace builds the API space document for cfg. Tables are
// sorted by identifier, columns by name and instruction lists by id. All
// text instructions are merged into one, as the API accepts only one.
// Benchmarks stay local.
func (s *Serializer) ToSerializedSpace(cfg *config.SpaceConfig) *SerializedSpace {
	version := cfg.Version
	if version == 0 {
		version = config.DefaultSpaceVersion
	}
	out := &SerializedSpace{
		Version:     version,
		Config:      spaceSettings{SampleQuestions: []wireQuestion{}},
		DataSources: wireDataSources{Tables: []wireTable{}},
	}

	for _, q := range cfg.SampleQuestions {
		out.Config.SampleQuestions = append(out.Config.SampleQuestions, wireQuestion{
			ID:       s.id(q.ID),
			Question: wireText(q.Question),
		})
	}

	for _, t := range cfg.DataSources.Tables {
		table := wireTable{Identifier: t.Identifier, Description: wireText(t.Description)}
		for _, c := range t.ColumnConfigs {
			table.ColumnConfigs = append(table.ColumnConfigs, wireColumn{
				ColumnName:             c.ColumnName,
				Description:            wireText(c.Description),
				Synonyms:               c.Synonyms,
				EnableFormatAssistance: c.EnableFormatAssistance,
				EnableEntityMatching:   c.EnableEntityMatching,
				BuildValueDictionary:   c.BuildValueDictionary,
				GetExampleValues:       c.GetExampleValues,
			})
		}
		slices.SortStableFunc(table.ColumnConfigs, func(a, b wireColumn) int {
			return strings.Compare(a.ColumnName, b.ColumnName)
		})
		out.DataSources.Tables = append(out.DataSources.Tables, table)
	}
	slices.SortStableFunc(out.DataSources.Tables, func(a, b wireTable) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})

	s.serializeInstructions(&cfg.Instructions, &out.Instructions)
	return out
}

func (s *Serializer) serializeInstructions(in *config.Instructions, out *wireInstructions) {
	if len(in.TextInstructions) > 0 {
		merged := wireTextInstruction{Content: wireText{}}
		for _, ti := range in.TextInstructions {
			merged.Content = append(merged.Content, ti.Content...)
			if merged.ID == "" {
				merged.ID = ti.ID
			}
		}
		merged.ID = s.id(merged.ID)
		out.TextInstructions = []wireTextInstruction{merged}
	}

	for _, ex := range in.ExampleQuestionSQLs {
		w := wireExample{
			ID:            s.id(ex.ID),
			Question:      wireText(ex.Question),
			SQL:           wireText(ex.SQL),
			UsageGuidance: wireText(ex.UsageGuidance),
		}
		for _, p := range ex.Parameters {
			wp := wireParameter{Name: p.Name, TypeHint: p.TypeHint, Description: wireText(p.Description)}
			if wp.TypeHint == "" {
				wp.TypeHint = config.DefaultTypeHint
			}
			if p.DefaultValue != nil && len(p.DefaultValue.Values) > 0 {
				wp.DefaultValue = &wireDefaults{Values: p.DefaultValue.Values}
			}
			w.Parameters = append(w.Parameters, wp)
		}
		out.ExampleQuestionSQLs = append(out.ExampleQuestionSQLs, w)
	}
	slices.SortStableFunc(out.ExampleQuestionSQLs, func(a, b wireExample) int { return strings.Compare(a.ID, b.ID) })

	// The API accepts only id and identifier for functions.
	for _, f := range in.SQLFunctions {
		out.SQLFunctions = append(out.SQLFunctions, wireFunction{ID: s.id(f.ID), Identifier: f.Identifier})
	}
	slices.SortStableFunc(out.SQLFunctions, func(a, b wireFunction) int {
		if c := strings.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.Identifier, b.Identifier)
	})

	for _, j := range in.JoinSpecs {
		out.JoinSpecs = append(out.JoinSpecs, wireJoin{
			ID:          s.id(j.ID),
			Left:        wireTableRef(j.Left),
			Right:       wireTableRef(j.Right),
			SQL:         wireText(j.SQL),
			Instruction: wireText(j.Instruction),
		})
	}
	slices.SortStableFunc(out.JoinSpecs, func(a, b wireJoin) int { return strings.Compare(a.ID, b.ID) })

	snippets := &wireSnippets{
		Filters:     s.serializeSnippets(in.SQLSnippets.Filters),
		Expressions: s.serializeSnippets(in.SQLSnippets.Expressions),
		Measures:    s.serializeSnippets(in.SQLSnippets.Measures),
	}
	if len(snippets.Filters)+len(snippets.Expressions)+len(snippets.Measures) > 0 {
		out.SQLSnippets = snippets
	}
}

func (s *Serializer) serializeSnippets(in []config.SQLSnippet) []wireSnippet {
	var out []wireSnippet
	for _, sn := range in {
		out = append(out, wireSnippet{
			ID:          s.id(sn.ID),
			SQL:         wireText(sn.SQL),
			DisplayName: sn.DisplayName,
			Instruction: wireText(sn.Instruction),
			Synonyms:    sn.Synonyms,
		})
	}
	slices.SortStableFunc(out, func(a, b wireSnippet) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// spaceResponse is the subset of a get or create response the client reads.
// Fields may sit at the top level or under "space".
type spaceResponse struct {
	ID              string          `json:"id"`
	SpaceID         string          `json:"space_id"`
	Title           string          `json:"title"`
	WarehouseID     string          `json:"warehouse_id"`
	ParentPath      string          `json:"parent_path"`
	LastModified    json.RawMessage `json:"last_modified"`
	UpdateTime      json.RawMessage `json:"update_time"`
	SerializedSpace json.RawMessage `json:"serialized_space"`
	Space           *spaceResponse  `json:"space"`
}

func (r *spaceResponse) id() string {
	switch {
	case r.Space != nil && r.Space.ID != "":
		return r.Space.ID
	case r.ID != "":
		return r.ID
	default:
		return r.SpaceID
	}
}

func (r *spaceResponse) title() string {
	if r.Title == "" && r.Space != nil {
		return r.Space.Title
	}
	return r.Title
}

// toRemoteSpace flattens a response. raw is the decoded body.
func (r *spaceResponse) toRemoteSpace(raw map[string]any) *engine.RemoteSpace {
	modified := rawTimestamp(r.LastModified)
	if modified == "" {
		modified = rawTimestamp(r.UpdateTime)
	}
	return &engine.RemoteSpace{
		ID:          r.id(),
		Title:       r.title(),
		WarehouseID: r.WarehouseID,
		ParentPath:  r.ParentPath,
		ModifiedAt:  modified,
		Raw:         raw,
	}
}

// rawTimestamp renders a JSON string or number timestamp as text.
func rawTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// FromRemote converts a space fetched with its serialized document into a
// config tracked under logicalID. Benchmarks present remotely are kept.
func (s *Serializer) FromRemote(sp *engine.RemoteSpace, logicalID string) (*config.SpaceConfig, error) {
	raw, err := json.Marshal(sp.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode space %s: %w", sp.ID, err)
	}
	var resp spaceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode space %s: %w", sp.ID, err)
	}

	title := resp.title()
	if title == "" {
		title = sp.Title
	}
	warehouse := resp.WarehouseID
	if warehouse == "" {
		warehouse = sp.WarehouseID
	}
	if title == "" {
		return nil, fmt.Errorf("space %s: missing 'title' in API response", sp.ID)
	}
	if warehouse == "" {
		return nil, fmt.Errorf("space %s: missing 'warehouse_id' in API response", sp.ID)
	}

	doc, err := decodeSerialized(resp.SerializedSpace)
	if err != nil {
		return nil, fmt.Errorf("space %s: %w", sp.ID, err)
	}

	cfg := &config.SpaceConfig{
		LogicalID:   logicalID,
		Title:       title,
		WarehouseID: warehouse,
		ParentPath:  resp.ParentPath,
		Version:     doc.Version,
	}
	if cfg.Version == 0 {
		cfg.Version = config.DefaultSpaceVersion
	}

	for _, q := range doc.Config.SampleQuestions {
		cfg.SampleQuestions = append(cfg.SampleQuestions, config.SampleQuestion{ID: q.ID, Question: config.Text(q.Question)})
	}
	for _, t := range doc.DataSources.Tables {
		table := config.TableConfig{Identifier: t.Identifier, Description: config.Text(t.Description)}
		for _, c := range t.ColumnConfigs {
			table.ColumnConfigs = append(table.ColumnConfigs, config.ColumnConfig{
				ColumnName:             c.ColumnName,
				Description:            config.Text(c.Description),
				Synonyms:               c.Synonyms,
				EnableFormatAssistance: c.EnableFormatAssistance,
				EnableEntityMatching:   c.EnableEntityMatching,
				BuildValueDictionary:   c.BuildValueDictionary,
				GetExampleValues:       c.GetExampleValues,
			})
		}
		cfg.DataSources.Tables = append(cfg.DataSources.Tables, table)
	}

	in := &doc.Instructions
	for _, ti := range in.TextInstructions {
		cfg.Instructions.TextInstructions = append(cfg.Instructions.TextInstructions,
			config.TextInstruction{ID: ti.ID, Content: config.Text(ti.Content)})
	}
	for _, ex := range in.ExampleQuestionSQLs {
		e := config.ExampleQuestionSQL{
			ID:            ex.ID,
			Question:      config.Text(ex.Question),
			SQL:           config.Text(ex.SQL),
			UsageGuidance: config.Text(ex.UsageGuidance),
		}
		for _, p := range ex.Parameters {
			param := config.Parameter{Name: p.Name, TypeHint: p.TypeHint, Description: config.Text(p.Description)}
			if param.TypeHint == "" {
				param.TypeHint = config.DefaultTypeHint
			}
			if p.DefaultValue != nil {
				param.DefaultValue = &config.DefaultValue{Values: p.DefaultValue.Values}
			}
			e.Parameters = append(e.Parameters, param)
		}
		cfg.Instructions.ExampleQuestionSQLs = append(cfg.Instructions.ExampleQuestionSQLs, e)
	}
	for _, f := range in.SQLFunctions {
		cfg.Instructions.SQLFunctions = append(cfg.Instructions.SQLFunctions,
			config.SQLFunction{ID: f.ID, Identifier: f.Identifier, Description: f.Description})
	}
	for _, j := range in.JoinSpecs {
		cfg.Instructions.JoinSpecs = append(cfg.Instructions.JoinSpecs, config.JoinSpec{
			ID:          j.ID,
			Left:        config.JoinTableRef(j.Left),
			Right:       config.JoinTableRef(j.Right),
			SQL:         config.Text(j.SQL),
			Instruction: config.Text(j.Instruction),
		})
	}
	if in.SQLSnippets != nil {
		cfg.Instructions.SQLSnippets = config.SQLSnippets{
			Filters:     snippetsFromWire(in.SQLSnippets.Filters),
			Expressions: snippetsFromWire(in.SQLSnippets.Expressions),
			Measures:    snippetsFromWire(in.SQLSnippets.Measures),
		}
	}
	if doc.Benchmarks != nil && len(doc.Benchmarks.Questions) > 0 {
		cfg.Benchmarks = &config.Benchmarks{}
		for _, q := range doc.Benchmarks.Questions {
			cfg.Benchmarks.Questions = append(cfg.Benchmarks.Questions, config.BenchmarkQuestion{
				Question:    config.Text(q.Question),
				ExpectedSQL: config.Text(q.ExpectedSQL),
			})
		}
	}
	return cfg, nil
}

func snippetsFromWire(in []wireSnippet) []config.SQLSnippet {
	var out []config.SQLSnippet
	for _, sn := range in {
		out = append(out, config.SQLSnippet{
			ID:          sn.ID,
			SQL:         config.Text(sn.SQL),
			DisplayName: sn.DisplayName,
			Instruction: config.Text(sn.Instruction),
			Synonyms:    sn.Synonyms,
		})
	}
	return out
}

// decodeSerialized accepts the serialized space as a JSON string, an
// object or nothing. An undecodable string yields an empty document.
func decodeSerialized(raw json.RawMessage) (*SerializedSpace, error) {
	doc := &SerializedSpace{}
	if len(raw) == 0 || string(raw) == "null" {
		return doc, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return doc, nil
		}
		if err := json.Unmarshal([]byte(encoded), doc); err != nil {
			return &SerializedSpace{}, nil
		}
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("invalid serialized_space: %w", err)
	}
	return doc, nil
}
