package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
)

// Decode expands a compact string produced by Encode, rebuilding derived
// fields from ctx. It fails with *MalformedInputError if the string is not
// valid compact grammar and with *MissingContextError if a node needs a
// context field that ctx lacks.
func (c *Codec) Decode(compact string, ctx Context) (*doctree.Node, error) {
	dec := json.NewDecoder(strings.NewReader(compact))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("invalid json", err)
	}
	if dec.More() {
		return nil, malformed("trailing data after envelope", nil)
	}

	env, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("envelope is not an object", nil)
	}
	for k := range env {
		if k != "v" && k != "d" {
			return nil, malformed(fmt.Sprintf("unknown envelope key %q", k), nil)
		}
	}
	if v, _ := env["v"].(json.Number); v.String() != fmt.Sprint(GrammarVersion) {
		return nil, malformed(fmt.Sprintf("unsupported grammar version %v", env["v"]), nil)
	}
	d, ok := env["d"]
	if !ok {
		return nil, malformed("missing document", nil)
	}

	root, err := c.expandNode(d, ctx, 1)
	if err != nil {
		return nil, err
	}
	if root.Type != doctree.TypeDoc {
		return nil, malformed(fmt.Sprintf("root node is %q, not doc", root.Type), nil)
	}
	return root, nil
}

func (c *Codec) expandNode(v any, ctx Context, depth int) (*doctree.Node, error) {
	if depth > c.cfg.MaxDepth {
		return nil, fmt.Errorf("%w (max %d)", ErrTooDeep, c.cfg.MaxDepth)
	}

	if s, ok := v.(string); ok {
		return doctree.Text(s), nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformed(fmt.Sprintf("node is %T, want string or object", v), nil)
	}

	n := &doctree.Node{Type: doctree.TypeText}
	var (
		rule    *Rule
		meta    map[string]string
		content []any
		marks   []any
	)
	for k, val := range obj {
		var ok bool
		switch k {
		case "t":
			code, _ := val.(string)
			if code == "" {
				return nil, malformed("type code must be a non-empty string", nil)
			}
			if strings.HasPrefix(code, literalPrefix) {
				n.Type = code[len(literalPrefix):]
				break
			}
			r, found := c.byCode[code]
			if !found {
				return nil, malformed(fmt.Sprintf("unknown type code %q", code), nil)
			}
			rule = &r
			n.Type = r.Type
		case "a":
			n.Attrs, ok = val.(map[string]any)
		case "c":
			content, ok = val.([]any)
		case "x":
			n.Text, ok = val.(string)
		case "m":
			marks, ok = val.([]any)
		case "q":
			meta, ok = stringMap(val)
		default:
			return nil, malformed(fmt.Sprintf("unknown node key %q", k), nil)
		}
		if !ok && k != "t" {
			return nil, malformed(fmt.Sprintf("node key %q has wrong type %T", k, val), nil)
		}
	}

	if rule != nil && rule.Expand != nil {
		attrs, err := rule.Expand(n.Attrs, meta, ctx)
		if err != nil {
			var mce *MissingContextError
			if errors.As(err, &mce) {
				return nil, mce
			}
			return nil, malformed("expand "+rule.Type, err)
		}
		n.Attrs = attrs
	} else if meta != nil {
		return nil, malformed(fmt.Sprintf("unexpected rule metadata on %s node", n.Type), nil)
	}

	for _, m := range marks {
		mark, err := expandMark(m)
		if err != nil {
			return nil, err
		}
		n.Marks = append(n.Marks, mark)
	}

	for _, child := range content {
		cn, err := c.expandNode(child, ctx, depth+1)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, cn)
	}
	return n, nil
}

func expandMark(v any) (doctree.Mark, error) {
	switch m := v.(type) {
	case string:
		return doctree.Mark{Type: m}, nil
	case map[string]any:
		var mark doctree.Mark
		for k, val := range m {
			var ok bool
			switch k {
			case "t":
				mark.Type, ok = val.(string)
			case "a":
				mark.Attrs, ok = val.(map[string]any)
			default:
				return doctree.Mark{}, malformed(fmt.Sprintf("unknown mark key %q", k), nil)
			}
			if !ok {
				return doctree.Mark{}, malformed(fmt.Sprintf("mark key %q has wrong type %T", k, val), nil)
			}
		}
		return mark, nil
	default:
		return doctree.Mark{}, malformed(fmt.Sprintf("mark is %T, want string or object", v), nil)
	}
}

func stringMap(v any) (map[string]string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, false
		}
		out[k] = s
	}
	return out, true
}
