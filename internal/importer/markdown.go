package importer

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownImporter handles Markdown files using goldmark.
type MarkdownImporter struct{}

func (p *MarkdownImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	return doctree.NewDoc(mdBlocks(root, src)...), nil
}

// mdBlocks converts the block children of n.
func mdBlocks(n ast.Node, src []byte) []*doctree.Node {
	var out []*doctree.Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, mdBlock(c, src)...)
	}
	return out
}

func mdBlock(n ast.Node, src []byte) []*doctree.Node {
	switch node := n.(type) {
	case *ast.Heading:
		return []*doctree.Node{doctree.Heading(node.Level, trimInlines(mdInlines(node, src))...)}

	case *ast.Paragraph, *ast.TextBlock:
		return paragraphBlocks(mdInlines(node, src))

	case *ast.FencedCodeBlock:
		return []*doctree.Node{doctree.CodeBlock(string(node.Language(src)), mdLines(node, src))}

	case *ast.CodeBlock:
		return []*doctree.Node{doctree.CodeBlock("", mdLines(node, src))}

	case *ast.Blockquote:
		return []*doctree.Node{{Type: doctree.TypeBlockquote, Content: mdBlocks(node, src)}}

	case *ast.List:
		list := &doctree.Node{Type: doctree.TypeBulletList}
		if node.IsOrdered() {
			list.Type = doctree.TypeOrderedList
			if node.Start != 1 {
				list.Attrs = map[string]any{"start": node.Start}
			}
		}
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			li := &doctree.Node{Type: doctree.TypeListItem, Content: mdBlocks(item, src)}
			if len(li.Content) == 0 {
				li.Content = []*doctree.Node{doctree.Paragraph()}
			}
			list.Content = append(list.Content, li)
		}
		return []*doctree.Node{list}

	case *ast.ThematicBreak:
		return []*doctree.Node{{Type: doctree.TypeHorizontalRule}}

	case *ast.HTMLBlock:
		// Raw HTML is dropped; the HTML importer handles real markup.
		return nil

	default:
		return mdBlocks(n, src)
	}
}

// mdLines joins the raw lines of a code block without its final newline.
func mdLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func mdInlines(n ast.Node, src []byte) []*doctree.Node {
	var in inlines
	mdInline(&in, n, src, nil)
	return in
}

func mdInline(in *inlines, n ast.Node, src []byte, marks []doctree.Mark) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			in.text(string(node.Value(src)), marks)
			switch {
			case node.HardLineBreak():
				in.add(&doctree.Node{Type: doctree.TypeHardBreak})
			case node.SoftLineBreak():
				in.text(" ", marks)
			}

		case *ast.String:
			in.text(string(node.Value), marks)

		case *ast.CodeSpan:
			var buf bytes.Buffer
			for t := node.FirstChild(); t != nil; t = t.NextSibling() {
				switch v := t.(type) {
				case *ast.Text:
					buf.Write(v.Value(src))
				case *ast.String:
					buf.Write(v.Value)
				}
			}
			in.text(buf.String(), withMark(marks, doctree.Mark{Type: "code"}))

		case *ast.Emphasis:
			mark := doctree.Mark{Type: "italic"}
			if node.Level >= 2 {
				mark.Type = "bold"
			}
			mdInline(in, node, src, withMark(marks, mark))

		case *ast.Link:
			mdInline(in, node, src, withMark(marks, linkMark(string(node.Destination), string(node.Title))))

		case *ast.AutoLink:
			href := string(node.URL(src))
			if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(href, "mailto:") {
				href = "mailto:" + href
			}
			in.text(string(node.Label(src)), withMark(marks, linkMark(href, "")))

		case *ast.Image:
			var alt inlines
			mdInline(&alt, node, src, nil)
			in.add(imageNode(string(node.Destination), doctree.PlainText(doctree.Paragraph(alt...)), string(node.Title)))

		case *ast.RawHTML:
			// Inline HTML tags carry no text of their own.

		default:
			mdInline(in, c, src, marks)
		}
	}
}
