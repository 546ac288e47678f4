package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Text is a list of strings that may be written in documents either as a
// single string or as a sequence of strings.
type Text []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (t *Text) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() == "!!null" {
			*t = Text{}
			return nil
		}
		*t = Text{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Text, 0, len(value.Content))
		for _, c := range value.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string, got %s", c.Line, kindName(c.Kind))
			}
			out = append(out, c.Value)
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or list of strings, got %s", value.Line, kindName(value.Kind))
	}
}

// String joins the text with newlines.
func (t Text) String() string {
	switch len(t) {
	case 0:
		return ""
	case 1:
		return t[0]
	}
	s := t[0]
	for _, line := range t[1:] {
		s += "\n" + line
	}
	return s
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "map"
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
