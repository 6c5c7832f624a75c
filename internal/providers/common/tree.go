package common

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Node is a decoded response tree shared by the XML and JSON decoders.
// Object keys keep their document order so searches over the tree are deterministic.
type Node struct {
	Kind   Kind
	Bool   bool
	Number float64
	Text   string
	Items  []*Node
	Keys   []string
	Fields map[string]*Node
}

func NullNode() *Node { return &Node{Kind: KindNull} }

func StringNode(s string) *Node { return &Node{Kind: KindString, Text: s} }

func NumberNode(f float64) *Node { return &Node{Kind: KindNumber, Number: f} }

func BoolNode(b bool) *Node { return &Node{Kind: KindBool, Bool: b} }

func ArrayNode(items ...*Node) *Node {
	return &Node{Kind: KindArray, Items: items}
}

func ObjectNode() *Node {
	return &Node{Kind: KindObject, Fields: make(map[string]*Node)}
}

// Set adds or replaces a field. Only valid on object nodes.
func (n *Node) Set(key string, value *Node) *Node {
	if _, exists := n.Fields[key]; !exists {
		n.Keys = append(n.Keys, key)
	}
	n.Fields[key] = value
	return n
}

func (n *Node) IsNull() bool { return n == nil || n.Kind == KindNull }

func (n *Node) IsObject() bool { return n != nil && n.Kind == KindObject }

func (n *Node) IsArray() bool { return n != nil && n.Kind == KindArray }

// Get returns the named field of an object node. An exact key wins over a
// case-insensitive match. Returns nil when absent.
func (n *Node) Get(key string) *Node {
	if !n.IsObject() {
		return nil
	}
	if value, ok := n.Fields[key]; ok {
		return value
	}
	for _, k := range n.Keys {
		if strings.EqualFold(k, key) {
			return n.Fields[k]
		}
	}
	return nil
}

// Path walks nested object fields.
func (n *Node) Path(keys ...string) *Node {
	current := n
	for _, key := range keys {
		current = current.Get(key)
		if current == nil {
			return nil
		}
	}
	return current
}

// List views a node as a list: arrays yield their items, a bare value yields
// a one-element list and null yields nothing.
func (n *Node) List() []*Node {
	switch {
	case n.IsNull():
		return nil
	case n.IsArray():
		return n.Items
	default:
		return []*Node{n}
	}
}

// Scalar renders a scalar node as text. Containers and null give "".
func (n *Node) Scalar() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindString:
		return n.Text
	case KindNumber:
		return strconv.FormatFloat(n.Number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(n.Bool)
	default:
		return ""
	}
}

// Value converts the tree to plain Go values: map[string]any, []any, string,
// float64, bool or nil.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindBool:
		return n.Bool
	case KindNumber:
		return n.Number
	case KindString:
		return n.Text
	case KindArray:
		items := make([]any, len(n.Items))
		for i, item := range n.Items {
			items[i] = item.Value()
		}
		return items
	case KindObject:
		fields := make(map[string]any, len(n.Keys))
		for _, key := range n.Keys {
			fields[key] = n.Fields[key].Value()
		}
		return fields
	default:
		return nil
	}
}

var ErrEmptyBody = errors.New("empty response body")

// Decode sniffs the payload and decodes it as XML or JSON. Anything else is
// returned as a single string node.
func Decode(payload []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}
	switch trimmed[0] {
	case '<':
		return DecodeXML(trimmed)
	case '{', '[':
		return DecodeJSON(trimmed)
	default:
		return StringNode(string(trimmed)), nil
	}
}

func DecodeJSON(payload []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	node, err := decodeJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return node, nil
}

func decodeJSONValue(dec *json.Decoder) (*Node, error) {
	token, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch value := token.(type) {
	case json.Delim:
		switch value {
		case '{':
			obj := ObjectNode()
			for dec.More() {
				keyToken, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyToken)
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := ArrayNode()
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", value)
		}
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return StringNode(value.String()), nil
		}
		return NumberNode(f), nil
	case string:
		return StringNode(value), nil
	case bool:
		return BoolNode(value), nil
	case nil:
		return NullNode(), nil
	default:
		return nil, fmt.Errorf("unexpected token %T", token)
	}
}

// DecodeXML converts an XML document into a tree. The root element itself is
// dropped and its content returned: attributes and child elements become
// fields, repeated child tags become arrays, and a text-only element becomes a
// string node.
func DecodeXML(payload []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	dec.CharsetReader = charsetReader
	dec.Strict = false

	for {
		token, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("decode xml: no root element")
			}
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		if start, ok := token.(xml.StartElement); ok {
			node, err := decodeXMLElement(dec, start)
			if err != nil {
				return nil, fmt.Errorf("decode xml: %w", err)
			}
			return node, nil
		}
	}
}

func decodeXMLElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	obj := ObjectNode()
	for _, attr := range start.Attr {
		obj.Set(attr.Name.Local, StringNode(attr.Value))
	}

	var text strings.Builder
	hasChildren := false
	for {
		token, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch value := token.(type) {
		case xml.StartElement:
			hasChildren = true
			child, err := decodeXMLElement(dec, value)
			if err != nil {
				return nil, err
			}
			appendXMLChild(obj, value.Name.Local, child)
		case xml.CharData:
			text.Write(value)
		case xml.EndElement:
			content := strings.TrimSpace(text.String())
			if content == "" {
				return obj, nil
			}
			if !hasChildren && len(start.Attr) == 0 {
				return StringNode(content), nil
			}
			obj.Set("text", StringNode(content))
			return obj, nil
		}
	}
}

func appendXMLChild(obj *Node, tag string, child *Node) {
	existing, ok := obj.Fields[tag]
	if !ok {
		obj.Set(tag, child)
		return
	}
	// Element decoding never yields arrays, so an array here holds earlier siblings.
	if existing.IsArray() {
		existing.Items = append(existing.Items, child)
		return
	}
	obj.Fields[tag] = ArrayNode(existing, child)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "windows-1251", "cp1251", "cp-1251", "win-1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "koi8-r":
		return charmap.KOI8R.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}
