// Package document reads and writes field-tagged objects in JSON or YAML.
//
// Both directions go through a yaml.v3 node tree, which keeps field order on
// write and gives line/column positions on read. YAML is a superset of JSON,
// so a single Parser handles either content type.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ContentType int

const (
	JSON ContentType = iota
	YAML
)

func (c ContentType) String() string {
	if c == YAML {
		return "yaml"
	}
	return "json"
}

func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "application/json":
		return JSON, nil
	case "yaml", "yml", "application/yaml":
		return YAML, nil
	}
	return JSON, fmt.Errorf("document: unsupported content type %q", s)
}

const (
	tagNull  = "!!null"
	tagStr   = "!!str"
	tagInt   = "!!int"
	tagFloat = "!!float"
	tagBool  = "!!bool"
)

// Builder assembles one object. Calls are chained; the first error is kept
// and reported by Bytes or Err.
type Builder struct {
	root  *yaml.Node
	stack []*yaml.Node
	err   error
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Err() error { return b.err }

func (b *Builder) setErr(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) top() *yaml.Node {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// StartObject opens the root object.
func (b *Builder) StartObject() *Builder {
	if b.root != nil {
		return b.setErr(errors.New("document: root object already started"))
	}
	b.root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	b.stack = append(b.stack, b.root)
	return b
}

// StartObjectField opens a nested object under name.
func (b *Builder) StartObjectField(name string) *Builder {
	parent := b.top()
	if parent == nil {
		return b.setErr(fmt.Errorf("document: field %q outside an object", name))
	}
	obj := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	parent.Content = append(parent.Content, keyNode(name), obj)
	b.stack = append(b.stack, obj)
	return b
}

func (b *Builder) EndObject() *Builder {
	if len(b.stack) == 0 {
		return b.setErr(errors.New("document: EndObject without open object"))
	}
	b.stack = b.stack[:len(b.stack)-1]
	return b
}

// Field writes name: v. Accepted values are nil, string, bool, the signed
// integer kinds, float32/float64, time.Time (as epoch millis), []any and
// map[string]any.
func (b *Builder) Field(name string, v any) *Builder {
	parent := b.top()
	if parent == nil {
		return b.setErr(fmt.Errorf("document: field %q outside an object", name))
	}
	n, err := valueNode(v)
	if err != nil {
		return b.setErr(fmt.Errorf("document: field %q: %w", name, err))
	}
	parent.Content = append(parent.Content, keyNode(name), n)
	return b
}

// NullField writes name: null.
func (b *Builder) NullField(name string) *Builder { return b.Field(name, nil) }

// Node returns the built tree.
func (b *Builder) Node() (*yaml.Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.root == nil {
		return nil, errors.New("document: empty builder")
	}
	if len(b.stack) != 0 {
		return nil, fmt.Errorf("document: %d unclosed object(s)", len(b.stack))
	}
	return b.root, nil
}

// Bytes renders the object in the given content type.
func (b *Builder) Bytes(ct ContentType) ([]byte, error) {
	root, err := b.Node()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if ct == YAML {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := writeJSON(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func keyNode(name string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: name}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func valueNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case nil:
		return scalar(tagNull, "null"), nil
	case string:
		return scalar(tagStr, t), nil
	case bool:
		return scalar(tagBool, strconv.FormatBool(t)), nil
	case int:
		return scalar(tagInt, strconv.Itoa(t)), nil
	case int32:
		return scalar(tagInt, strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return scalar(tagInt, strconv.FormatInt(t, 10)), nil
	case float32:
		return floatNode(float64(t))
	case float64:
		return floatNode(t)
	case time.Time:
		return scalar(tagInt, strconv.FormatInt(t.UnixMilli(), 10)), nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, e := range t {
			n, err := valueNode(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case map[string]any:
		obj := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n, err := valueNode(t[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj.Content = append(obj.Content, keyNode(k), n)
		}
		return obj, nil
	case map[string]int64:
		m := make(map[string]any, len(t))
		for k, n := range t {
			m[k] = n
		}
		return valueNode(m)
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func floatNode(f float64) (*yaml.Node, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return scalar(tagFloat, s), nil
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(n.Content[i].Value)
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, e := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		switch n.Tag {
		case tagNull:
			buf.WriteString("null")
		case tagInt, tagFloat, tagBool:
			buf.WriteString(n.Value)
		default:
			s, _ := json.Marshal(n.Value)
			buf.Write(s)
		}
	default:
		return fmt.Errorf("document: cannot render node kind %v as json", n.Kind)
	}
	return nil
}
