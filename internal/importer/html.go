package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLImporter handles HTML files.
type HTMLImporter struct{}

func (p *HTMLImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// Find <body> or use whole document.
	root := findBody(doc)
	if root == nil {
		root = doc
	}
	return doctree.NewDoc(htmlBlocks(root)...), nil
}

// htmlBlocks converts the children of n into block nodes. Loose inline
// content between blocks is gathered into paragraphs.
func htmlBlocks(n *html.Node) []*doctree.Node {
	var out []*doctree.Node
	var pending inlines

	flush := func() {
		out = append(out, paragraphBlocks(pending)...)
		pending = nil
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !isBlockTag(c.Data) {
			htmlInline(&pending, c, nil)
			continue
		}
		flush()
		out = append(out, htmlBlock(c)...)
	}
	flush()
	return out
}

func isBlockTag(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6",
		"p", "pre", "ul", "ol", "li", "blockquote", "hr", "table",
		"div", "section", "article", "main", "aside", "figure",
		"iframe", "script", "style", "nav", "footer", "header", "head", "title":
		return true
	}
	return false
}

func htmlBlock(n *html.Node) []*doctree.Node {
	if level := headingLevel(n.Data); level > 0 {
		var in inlines
		htmlInline(&in, n, nil)
		return []*doctree.Node{doctree.Heading(level, trimInlines(in)...)}
	}

	switch n.Data {
	// Skip non-content elements.
	case "script", "style", "nav", "footer", "header", "head", "title":
		return nil

	case "p":
		var in inlines
		htmlInline(&in, n, nil)
		return paragraphBlocks(in)

	case "pre":
		language := ""
		if code := firstChildElement(n, "code"); code != nil {
			for _, cls := range strings.Fields(attr(code, "class")) {
				if l, ok := strings.CutPrefix(cls, "language-"); ok {
					language = l
					break
				}
			}
		}
		return []*doctree.Node{doctree.CodeBlock(language, strings.TrimSuffix(rawText(n), "\n"))}

	case "ul", "ol":
		list := &doctree.Node{Type: doctree.TypeBulletList}
		if n.Data == "ol" {
			list.Type = doctree.TypeOrderedList
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				list.Content = append(list.Content, htmlBlock(c)...)
			}
		}
		if len(list.Content) == 0 {
			return nil
		}
		return []*doctree.Node{list}

	case "li":
		li := &doctree.Node{Type: doctree.TypeListItem, Content: htmlBlocks(n)}
		if len(li.Content) == 0 {
			li.Content = []*doctree.Node{doctree.Paragraph()}
		}
		return []*doctree.Node{li}

	case "blockquote":
		return []*doctree.Node{{Type: doctree.TypeBlockquote, Content: htmlBlocks(n)}}

	case "hr":
		return []*doctree.Node{{Type: doctree.TypeHorizontalRule}}

	case "iframe":
		if v, ok := videoNode(attr(n, "src")); ok {
			return []*doctree.Node{v}
		}
		return nil

	case "table":
		table := &doctree.Node{Type: doctree.TypeTable}
		var rows func(*html.Node)
		rows = func(n *html.Node) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch c.Data {
				case "thead", "tbody", "tfoot":
					rows(c)
				case "tr":
					table.Content = append(table.Content, htmlRow(c))
				}
			}
		}
		rows(n)
		if len(table.Content) == 0 {
			return nil
		}
		return []*doctree.Node{table}

	default:
		// Generic containers.
		return htmlBlocks(n)
	}
}

func htmlRow(tr *html.Node) *doctree.Node {
	row := &doctree.Node{Type: doctree.TypeTableRow}
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		cell := &doctree.Node{Type: doctree.TypeTableCell, Content: htmlBlocks(c)}
		if c.Data == "th" {
			cell.Type = doctree.TypeTableHeader
		}
		if len(cell.Content) == 0 {
			cell.Content = []*doctree.Node{doctree.Paragraph()}
		}
		row.Content = append(row.Content, cell)
	}
	return row
}

func htmlInline(in *inlines, n *html.Node, marks []doctree.Mark) {
	switch n.Type {
	case html.TextNode:
		in.text(collapseSpace(n.Data), marks)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			htmlInline(in, c, marks)
		}
		return
	}

	switch n.Data {
	case "script", "style":
		return
	case "br":
		in.add(&doctree.Node{Type: doctree.TypeHardBreak})
		return
	case "img":
		if src := attr(n, "src"); src != "" {
			in.add(imageNode(src, attr(n, "alt"), attr(n, "title")))
		}
		return
	case "strong", "b":
		marks = withMark(marks, doctree.Mark{Type: "bold"})
	case "em", "i":
		marks = withMark(marks, doctree.Mark{Type: "italic"})
	case "s", "strike", "del":
		marks = withMark(marks, doctree.Mark{Type: "strike"})
	case "u":
		marks = withMark(marks, doctree.Mark{Type: "underline"})
	case "code":
		marks = withMark(marks, doctree.Mark{Type: "code"})
	case "a":
		if href := attr(n, "href"); href != "" {
			marks = withMark(marks, linkMark(href, attr(n, "title")))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		htmlInline(in, c, marks)
	}
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

// rawText returns the text content of n with whitespace preserved.
func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
