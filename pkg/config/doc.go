// Package config loads genie-forge space documents.
//
// # Overview
//
// Space documents are YAML or JSON files that either describe one space at
// the top level or hold a spaces list. Parsing runs in four steps:
//
//  1. The document is read into a Node tree, a closed tagged-variant type
//     (null, string, number, bool, sequence, ordered map).
//  2. Environment defaults are loaded from environments/<env>.yaml and
//     merged beneath explicitly supplied variables.
//  3. VariableResolver substitutes ${name} placeholders from the variables,
//     then the process environment. Unresolved placeholders are kept.
//  4. Each space is decoded into a SpaceConfig and checked with
//     go-playground/validator.
//
// Validate is independent of parsing: it does not resolve variables and
// reports problems as strings, including CUE schema findings from the
// SchemaRegistry.
//
// # Change detection
//
// SpaceConfig.ConfigHash is a SHA-256 over a canonical JSON projection that
// excludes the logical id, drops empty values and sorts keys. Two documents
// with the same meaningful content always hash the same.
//
// # Usage Example
//
//	parser := config.NewParser(config.WithParserLogger(logger))
//
//	spaces, err := parser.Parse(ctx, "conf/spaces", "dev", map[string]string{
//	    "catalog": "main",
//	})
//	if err != nil {
//	    return err
//	}
//
//	for _, s := range spaces {
//	    fmt.Println(s.LogicalID, s.ConfigHash())
//	}
package config
