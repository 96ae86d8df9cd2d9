package document

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Parser is positioned over one value of a parsed document.
type Parser struct {
	node *yaml.Node
}

// NewParser parses a JSON or YAML document and positions at its root value.
func NewParser(data []byte) (*Parser, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("document: empty input")
	}
	return &Parser{node: resolve(doc.Content[0])}, nil
}

// ParserFor positions a parser at an existing node.
func ParserFor(n *yaml.Node) *Parser { return &Parser{node: resolve(n)} }

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// Pos returns "line:col" of the current value.
func (p *Parser) Pos() string {
	return fmt.Sprintf("%d:%d", p.node.Line, p.node.Column)
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("document: at %s: %s", p.Pos(), fmt.Sprintf(format, args...))
}

func (p *Parser) IsNull() bool {
	return p.node.Kind == yaml.ScalarNode && p.node.ShortTag() == tagNull
}

func (p *Parser) IsObject() bool { return p.node.Kind == yaml.MappingNode }

// Fields calls fn for each key of the current object in document order.
func (p *Parser) Fields(fn func(name string, value *Parser) error) error {
	if p.node.Kind != yaml.MappingNode {
		return p.errorf("expected object, got %s", kindName(p.node))
	}
	for i := 0; i+1 < len(p.node.Content); i += 2 {
		key := resolve(p.node.Content[i])
		if key.Kind != yaml.ScalarNode {
			return ParserFor(key).errorf("expected field name")
		}
		if err := fn(key.Value, ParserFor(p.node.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Object returns the value stored under key, or nil if the key is absent.
func (p *Parser) Object(key string) (*Parser, error) {
	var found *Parser
	err := p.Fields(func(name string, v *Parser) error {
		if name == key && found == nil {
			found = v
		}
		return nil
	})
	return found, err
}

// Text returns the scalar text of a non-null value.
func (p *Parser) Text() (string, error) {
	if p.node.Kind != yaml.ScalarNode || p.IsNull() {
		return "", p.errorf("expected text, got %s", kindName(p.node))
	}
	return p.node.Value, nil
}

// OptionalText is Text that maps null to nil.
func (p *Parser) OptionalText() (*string, error) {
	if p.IsNull() {
		return nil, nil
	}
	s, err := p.Text()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Int64 accepts integers, numeric strings and floats with no fractional
// part, such as 1.0 or 1.7e12.
func (p *Parser) Int64() (int64, error) {
	if p.node.Kind != yaml.ScalarNode {
		return 0, p.errorf("expected number, got %s", kindName(p.node))
	}
	switch p.node.ShortTag() {
	case tagInt:
		var v int64
		if err := p.node.Decode(&v); err != nil {
			return 0, p.errorf("%v", err)
		}
		return v, nil
	case tagFloat:
		var f float64
		if err := p.node.Decode(&f); err != nil {
			return 0, p.errorf("%v", err)
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, p.errorf("expected whole number, got %s", p.node.Value)
		}
		return int64(f), nil
	case tagStr:
		v, err := strconv.ParseInt(p.node.Value, 10, 64)
		if err != nil {
			return 0, p.errorf("expected number, got %q", p.node.Value)
		}
		return v, nil
	}
	return 0, p.errorf("expected number, got %s", kindName(p.node))
}

// Time reads epoch millis or an RFC 3339 string. Null yields nil.
func (p *Parser) Time() (*time.Time, error) {
	if p.IsNull() {
		return nil, nil
	}
	if p.node.Kind == yaml.ScalarNode && p.node.ShortTag() != tagInt {
		if ts, err := time.Parse(time.RFC3339Nano, p.node.Value); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	ms, err := p.Int64()
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(ms).UTC()
	return &ts, nil
}

// Map decodes the current object into generic values. Integers come back as
// int64 and other numbers as float64.
func (p *Parser) Map() (map[string]any, error) {
	if p.IsNull() {
		return nil, nil
	}
	v, err := p.Value()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, p.errorf("expected object, got %s", kindName(p.node))
	}
	return m, nil
}

// Value decodes the current node into a generic value.
func (p *Parser) Value() (any, error) {
	n := p.node
	switch n.Kind {
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		err := p.Fields(func(name string, v *Parser) error {
			val, err := v.Value()
			if err != nil {
				return err
			}
			out[name] = val
			return nil
		})
		return out, err
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := ParserFor(c).Value()
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case tagNull:
			return nil, nil
		case tagBool:
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, p.errorf("%v", err)
			}
			return b, nil
		case tagInt:
			var i int64
			if err := n.Decode(&i); err == nil {
				return i, nil
			}
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, p.errorf("%v", err)
			}
			return f, nil
		case tagFloat:
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, p.errorf("%v", err)
			}
			return f, nil
		default:
			return n.Value, nil
		}
	}
	return nil, p.errorf("unsupported node %s", kindName(n))
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "object"
	case yaml.SequenceNode:
		return "array"
	case yaml.ScalarNode:
		if n.ShortTag() == tagNull {
			return "null"
		}
		return "scalar " + n.ShortTag()
	}
	return "node"
}
