package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Well-known node types.
const (
	TypeDoc        = "doc"
	TypeParagraph  = "paragraph"
	TypeHeading    = "heading"
	TypeText       = "text"
	TypeImage      = "image"
	TypeVideoEmbed = "video-embed"
	TypeCodeBlock  = "code-block"

	TypeYouTube        = "youtube"
	TypeEditorCode     = "codeBlock"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeBlockquote     = "blockquote"
	TypeHorizontalRule = "horizontalRule"
	TypeHardBreak      = "hardBreak"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableCell      = "tableCell"
	TypeTableHeader    = "tableHeader"
)

// Node is one element of a rich-text document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"` // Only on text nodes.
}

// Mark is inline formatting applied to a text node (bold, link, ...).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes a JSON document. Numbers are kept as json.Number so their
// literal text survives a round trip.
func Parse(data []byte) (*Node, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader is Parse over a reader.
func ParseReader(r io.Reader) (*Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var n Node
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode document: trailing data")
	}
	return &n, nil
}

// Canonical returns the canonical serialization of the tree: compact JSON
// with fixed field order, sorted attr keys, empty fields omitted and no HTML
// escaping. Sizes and equality are measured on this form.
func (n *Node) Canonical() ([]byte, error) {
	return Marshal(n)
}

// Marshal encodes v as compact JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Equal reports whether two trees have the same canonical serialization.
func Equal(a, b *Node) bool {
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(key string) any {
	if n == nil || n.Attrs == nil {
		return nil
	}
	return n.Attrs[key]
}

// StringAttr returns the named attribute if it is a string.
func (n *Node) StringAttr(key string) (string, bool) {
	s, ok := n.Attr(key).(string)
	return s, ok
}

// Depth returns the nesting depth of the tree. A lone root has depth 1.
func Depth(n *Node) int {
	if n == nil {
		return 0
	}
	max := 0
	for _, c := range n.Content {
		if d := Depth(c); d > max {
			max = d
		}
	}
	return max + 1
}

// Walk visits the tree depth-first in document order. Returning false from
// fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Content {
		Walk(c, fn)
	}
}

// PlainText concatenates all text payloads, one line per block.
func PlainText(n *Node) string {
	var sb strings.Builder
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Type == TypeText {
			sb.WriteString(n.Text)
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
		if len(n.Content) > 0 && n.Type != TypeDoc {
			sb.WriteString("\n")
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// NewDoc returns a doc root holding the given blocks.
func NewDoc(children ...*Node) *Node {
	return &Node{Type: TypeDoc, Content: children}
}

// Paragraph returns a paragraph holding the given inline nodes.
func Paragraph(children ...*Node) *Node {
	return &Node{Type: TypeParagraph, Content: children}
}

// Heading returns a heading of the given level.
func Heading(level int, children ...*Node) *Node {
	return &Node{
		Type:    TypeHeading,
		Attrs:   map[string]any{"level": level},
		Content: children,
	}
}

// Text returns a text run.
func Text(s string, marks ...Mark) *Node {
	return &Node{Type: TypeText, Text: s, Marks: marks}
}

// CodeBlock returns a code block containing a single text run.
func CodeBlock(language, code string) *Node {
	n := &Node{Type: TypeCodeBlock}
	if language != "" {
		n.Attrs = map[string]any{"language": language}
	}
	if code != "" {
		n.Content = []*Node{Text(code)}
	}
	return n
}
