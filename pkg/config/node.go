package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Node.
type Kind int

const (
	// NullKind is an explicit null or an empty document.
	NullKind Kind = iota

	// StringKind is a string scalar.
	StringKind

	// NumberKind is an integer or floating point scalar.
	NumberKind

	// BoolKind is a boolean scalar.
	BoolKind

	// SequenceKind is an ordered list of nodes.
	SequenceKind

	// MapKind is a string-keyed map that remembers insertion order.
	MapKind
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case StringKind:
		return "string"
	case NumberKind:
		return "number"
	case BoolKind:
		return "bool"
	case SequenceKind:
		return "sequence"
	case MapKind:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a closed, tagged-variant tree for configuration documents.
// Exactly the fields matching Kind are meaningful.
type Node struct {
	Kind Kind

	// Str holds the string value, or the literal text of a number.
	Str string

	// Bool holds the boolean value.
	Bool bool

	// Items holds sequence elements.
	Items []*Node

	// Keys records map keys in document order.
	Keys []string

	// Fields holds map values by key.
	Fields map[string]*Node
}

// NewNull returns a null node.
func NewNull() *Node { return &Node{Kind: NullKind} }

// NewString returns a string node.
func NewString(s string) *Node { return &Node{Kind: StringKind, Str: s} }

// NewNumber returns a number node from its literal text.
func NewNumber(lit string) *Node { return &Node{Kind: NumberKind, Str: lit} }

// NewBool returns a boolean node.
func NewBool(b bool) *Node { return &Node{Kind: BoolKind, Bool: b} }

// NewSequence returns a sequence node holding items.
func NewSequence(items ...*Node) *Node {
	return &Node{Kind: SequenceKind, Items: items}
}

// NewMap returns an empty map node.
func NewMap() *Node {
	return &Node{Kind: MapKind, Fields: make(map[string]*Node)}
}

// Set stores value under key, appending the key if it is new.
func (n *Node) Set(key string, value *Node) {
	if _, exists := n.Fields[key]; !exists {
		n.Keys = append(n.Keys, key)
	}
	n.Fields[key] = value
}

// Get returns the value stored under key in a map node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != MapKind {
		return nil, false
	}
	v, ok := n.Fields[key]
	return v, ok
}

// Has reports whether a map node contains key.
func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// IsNull reports whether the node is nil or a null node.
func (n *Node) IsNull() bool {
	return n == nil || n.Kind == NullKind
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Kind: n.Kind, Str: n.Str, Bool: n.Bool}
	switch n.Kind {
	case SequenceKind:
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = item.Clone()
		}
	case MapKind:
		out.Keys = append([]string(nil), n.Keys...)
		out.Fields = make(map[string]*Node, len(n.Fields))
		for k, v := range n.Fields {
			out.Fields[k] = v.Clone()
		}
	}
	return out
}

// NodeFromYAML converts a decoded yaml.v3 node into a Node tree.
func NodeFromYAML(y *yaml.Node) (*Node, error) {
	if y == nil {
		return NewNull(), nil
	}

	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return NewNull(), nil
		}
		return NodeFromYAML(y.Content[0])

	case yaml.AliasNode:
		return NodeFromYAML(y.Alias)

	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(y.Content); i += 2 {
			keyNode, valNode := y.Content[i], y.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: map keys must be scalars", keyNode.Line)
			}
			val, err := NodeFromYAML(valNode)
			if err != nil {
				return nil, err
			}
			m.Set(keyNode.Value, val)
		}
		return m, nil

	case yaml.SequenceNode:
		seq := NewSequence()
		for _, c := range y.Content {
			item, err := NodeFromYAML(c)
			if err != nil {
				return nil, err
			}
			seq.Items = append(seq.Items, item)
		}
		return seq, nil

	case yaml.ScalarNode:
		switch y.ShortTag() {
		case "!!null":
			return NewNull(), nil
		case "!!bool":
			b, err := strconv.ParseBool(y.Value)
			if err != nil {
				// YAML 1.1 spellings such as "yes" are left as strings.
				return NewString(y.Value), nil
			}
			return NewBool(b), nil
		case "!!int", "!!float":
			return NewNumber(y.Value), nil
		default:
			return NewString(y.Value), nil
		}
	}

	return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", y.Line, y.Kind)
}

// ToYAML converts the tree back into a yaml.v3 node suitable for Decode.
func (n *Node) ToYAML() *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}

	switch n.Kind {
	case StringKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Str}
	case NumberKind:
		tag := "!!float"
		if _, err := strconv.ParseInt(n.Str, 0, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: n.Str}
	case BoolKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.Bool)}
	case SequenceKind:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			seq.Content = append(seq.Content, item.ToYAML())
		}
		return seq
	case MapKind:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.Keys {
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				n.Fields[k].ToYAML(),
			)
		}
		return m
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// Decode decodes the tree into out using yaml.v3 struct tags.
func (n *Node) Decode(out interface{}) error {
	return n.ToYAML().Decode(out)
}

// ToValue converts the tree into plain Go values (map[string]interface{},
// []interface{}, string, int64, float64, bool, nil).
func (n *Node) ToValue() interface{} {
	if n == nil {
		return nil
	}

	switch n.Kind {
	case StringKind:
		return n.Str
	case NumberKind:
		if i, err := strconv.ParseInt(n.Str, 0, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n.Str, 64); err == nil {
			return f
		}
		return n.Str
	case BoolKind:
		return n.Bool
	case SequenceKind:
		out := make([]interface{}, len(n.Items))
		for i, item := range n.Items {
			out[i] = item.ToValue()
		}
		return out
	case MapKind:
		out := make(map[string]interface{}, len(n.Fields))
		for k, v := range n.Fields {
			out[k] = v.ToValue()
		}
		return out
	default:
		return nil
	}
}
