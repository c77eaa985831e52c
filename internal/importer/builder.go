package importer

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/media"
)

// inlines accumulates inline nodes, merging adjacent text runs that carry
// the same marks.
type inlines []*doctree.Node

func (in *inlines) text(s string, marks []doctree.Mark) {
	if s == "" {
		return
	}
	if n := len(*in); n > 0 {
		last := (*in)[n-1]
		if last.Type == doctree.TypeText && sameMarks(last.Marks, marks) {
			last.Text += s
			return
		}
	}
	*in = append(*in, doctree.Text(s, marks...))
}

func (in *inlines) add(n *doctree.Node) {
	*in = append(*in, n)
}

func sameMarks(a, b []doctree.Mark) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	ab, err1 := doctree.Marshal(a)
	bb, err2 := doctree.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}

// withMark returns a copy of marks with m appended.
func withMark(marks []doctree.Mark, m doctree.Mark) []doctree.Mark {
	out := make([]doctree.Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

func linkMark(href, title string) doctree.Mark {
	attrs := map[string]any{"href": href}
	if title != "" {
		attrs["title"] = title
	}
	return doctree.Mark{Type: "link", Attrs: attrs}
}

func imageNode(src, alt, title string) *doctree.Node {
	attrs := map[string]any{"src": src}
	if alt != "" {
		attrs["alt"] = alt
	}
	if title != "" {
		attrs["title"] = title
	}
	return &doctree.Node{Type: doctree.TypeImage, Attrs: attrs}
}

// videoNode returns a video embed for a recognized video link, with the
// link normalized to its canonical form.
func videoNode(src string) (*doctree.Node, bool) {
	ref, err := media.ParseVideoURL(strings.TrimSpace(src))
	if err != nil {
		return nil, false
	}
	attrs := map[string]any{"src": ref.URL(), "videoId": ref.ID}
	if ref.Start > 0 {
		attrs["startTime"] = ref.Start
	}
	return &doctree.Node{Type: doctree.TypeVideoEmbed, Attrs: attrs}, true
}

// paragraphBlocks wraps inline content in a paragraph. Surrounding
// whitespace is trimmed and an empty paragraph yields nothing. A paragraph
// holding nothing but images is replaced by the images, and one holding
// nothing but a video link becomes a video embed.
func paragraphBlocks(content []*doctree.Node) []*doctree.Node {
	content = trimInlines(content)
	if len(content) == 0 {
		return nil
	}

	if len(content) == 1 && content[0].Type == doctree.TypeText {
		run := content[0]
		href := run.Text
		if len(run.Marks) == 1 && run.Marks[0].Type == "link" {
			href, _ = run.Marks[0].Attrs["href"].(string)
		}
		if len(run.Marks) <= 1 {
			if v, ok := videoNode(href); ok {
				return []*doctree.Node{v}
			}
		}
	}

	var images []*doctree.Node
	for _, n := range content {
		switch {
		case n.Type == doctree.TypeImage:
			images = append(images, n)
		case n.Type == doctree.TypeText && strings.TrimSpace(n.Text) == "":
		default:
			return []*doctree.Node{doctree.Paragraph(content...)}
		}
	}
	return images
}

// trimInlines strips leading and trailing whitespace from a run of inline
// nodes and drops text runs left empty.
func trimInlines(content []*doctree.Node) []*doctree.Node {
	for len(content) > 0 {
		first := content[0]
		if first.Type != doctree.TypeText {
			break
		}
		first.Text = strings.TrimLeftFunc(first.Text, unicode.IsSpace)
		if first.Text != "" {
			break
		}
		content = content[1:]
	}
	for len(content) > 0 {
		last := content[len(content)-1]
		if last.Type == doctree.TypeHardBreak {
			content = content[:len(content)-1]
			continue
		}
		if last.Type != doctree.TypeText {
			break
		}
		last.Text = strings.TrimRightFunc(last.Text, unicode.IsSpace)
		if last.Text != "" {
			break
		}
		content = content[:len(content)-1]
	}
	return content
}

// collapseSpace folds runs of whitespace into single spaces, keeping a
// single leading or trailing space where the input had one.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	if space {
		sb.WriteByte(' ')
	}
	return sb.String()
}
