package codec

import (
	"bytes"
	"fmt"

	"github.com/dgallion1/postpack/internal/doctree"
)

// literalPrefix marks a type name written verbatim instead of as a code.
const literalPrefix = "~"

// envelope is the top level of a compact string.
type envelope struct {
	V int `json:"v"`
	D any `json:"d"`
}

// cnode is a compacted node. A text node with nothing but its payload is
// written as a bare JSON string instead.
type cnode struct {
	Type    string            `json:"t,omitempty"`
	Attrs   map[string]any    `json:"a,omitempty"`
	Content []any             `json:"c,omitempty"`
	Text    string            `json:"x,omitempty"`
	Marks   []any             `json:"m,omitempty"`
	Meta    map[string]string `json:"q,omitempty"`
}

type cmark struct {
	Type  string         `json:"t"`
	Attrs map[string]any `json:"a"`
}

// Encode compacts a document rooted at a doc node into a compact string.
//
// Documents holding at least one compactable image or video embed always
// encode smaller than their canonical serialization. Documents made only of
// identity-rule types carry no such guarantee: short type codes usually
// still save bytes, but the envelope can make a tiny document larger.
func (c *Codec) Encode(doc *doctree.Node) (string, error) {
	if doc == nil || doc.Type != doctree.TypeDoc {
		return "", ErrNotDocument
	}
	root, err := c.compactNode(doc, 1)
	if err != nil {
		return "", err
	}
	b, err := doctree.Marshal(envelope{V: GrammarVersion, D: root})
	if err != nil {
		return "", fmt.Errorf("marshal compact document: %w", err)
	}
	return string(b), nil
}

func (c *Codec) compactNode(n *doctree.Node, depth int) (any, error) {
	if depth > c.cfg.MaxDepth {
		return nil, fmt.Errorf("%w (max %d)", ErrTooDeep, c.cfg.MaxDepth)
	}
	if n == nil {
		return nil, fmt.Errorf("encode: nil node at depth %d", depth)
	}

	cn := &cnode{Attrs: n.Attrs, Text: n.Text}
	if n.Type != doctree.TypeText {
		cn.Type = literalPrefix + n.Type
		if rule, ok := c.byType[n.Type]; ok {
			if rule.Compact == nil {
				cn.Type = rule.Code
			} else if red, sm := c.reduce(rule, n.Attrs); sm != nil {
				c.fallback(sm)
			} else {
				cn.Type = rule.Code
				cn.Attrs = red.Attrs
				cn.Meta = red.Meta
			}
		}
	}

	for _, m := range n.Marks {
		if len(m.Attrs) == 0 {
			cn.Marks = append(cn.Marks, m.Type)
		} else {
			cn.Marks = append(cn.Marks, cmark{Type: m.Type, Attrs: m.Attrs})
		}
	}

	for _, child := range n.Content {
		cc, err := c.compactNode(child, depth+1)
		if err != nil {
			return nil, err
		}
		cn.Content = append(cn.Content, cc)
	}

	if cn.Type == "" && len(cn.Attrs) == 0 && len(cn.Content) == 0 && len(cn.Marks) == 0 {
		return n.Text, nil
	}
	return cn, nil
}

// reduce applies a rule's compaction and accepts it only if expanding the
// result under the assumed context gives back the same attrs. Derived attrs
// the input did not carry are ignored in the comparison.
func (c *Codec) reduce(rule Rule, attrs map[string]any) (Reduced, *ShapeMismatchError) {
	red, err := rule.Compact(attrs)
	if err != nil {
		return Reduced{}, &ShapeMismatchError{NodeType: rule.Type, Reason: "attrs do not fit", Err: err}
	}
	back, err := rule.Expand(red.Attrs, red.Meta, red.Assumed)
	if err != nil {
		return Reduced{}, &ShapeMismatchError{NodeType: rule.Type, Reason: "compacted form does not expand", Err: err}
	}
	for _, k := range rule.Derived {
		if _, ok := attrs[k]; !ok {
			delete(back, k)
		}
	}
	want, err := doctree.Marshal(attrs)
	if err != nil {
		return Reduced{}, &ShapeMismatchError{NodeType: rule.Type, Reason: "attrs not serializable", Err: err}
	}
	got, err := doctree.Marshal(back)
	if err != nil || !bytes.Equal(want, got) {
		return Reduced{}, &ShapeMismatchError{NodeType: rule.Type, Reason: "expansion does not reproduce attrs"}
	}
	return red, nil
}

func (c *Codec) fallback(sm *ShapeMismatchError) {
	c.log().Warn("compaction fell back to pass-through", "node_type", sm.NodeType, "error", sm)
	if c.cfg.OnFallback != nil {
		c.cfg.OnFallback(sm)
	}
}
