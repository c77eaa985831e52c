package importer

import (
	"strings"
	"testing"

	"github.com/dgallion1/postpack/internal/doctree"
)

func importMarkdown(t *testing.T, input string) *doctree.Node {
	t.Helper()
	doc, err := (&MarkdownImporter{}).Import(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return doc
}

func TestMarkdownImporter_Blocks(t *testing.T) {
	input := `# Title

Intro text.

## Section A

- one
- two

1. first
2. second

> quoted

---
`
	doc := importMarkdown(t, input)

	var types []string
	for _, n := range doc.Content {
		types = append(types, n.Type)
	}
	want := []string{"heading", "paragraph", "heading", "bulletList", "orderedList", "blockquote", "horizontalRule"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("expected blocks %v, got %v", want, types)
	}

	h1 := doc.Content[0]
	if h1.Attr("level") != 1 {
		t.Errorf("expected level 1, got %v", h1.Attr("level"))
	}
	if got := doctree.PlainText(h1); got != "Title" {
		t.Errorf("expected heading text %q, got %q", "Title", got)
	}

	list := doc.Content[3]
	if len(list.Content) != 2 {
		t.Fatalf("expected 2 list items, got %d", len(list.Content))
	}
	item := list.Content[0]
	if item.Type != "listItem" || item.Content[0].Type != "paragraph" {
		t.Errorf("expected listItem holding a paragraph, got %s > %s", item.Type, item.Content[0].Type)
	}
	if got := doctree.PlainText(item); got != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}
}

func TestMarkdownImporter_Marks(t *testing.T) {
	doc := importMarkdown(t, "Plain **bold** *it* `code` [docs](https://example.com \"Docs\").")
	para := doc.Content[0]

	var got []string
	for _, n := range para.Content {
		var marks []string
		for _, m := range n.Marks {
			marks = append(marks, m.Type)
		}
		got = append(got, n.Text+"|"+strings.Join(marks, "+"))
	}
	want := []string{"Plain |", "bold|bold", " |", "it|italic", " |", "code|code", " |", "docs|link", ".|"}
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("expected runs %v, got %v", want, got)
	}

	link := para.Content[7].Marks[0]
	if link.Attrs["href"] != "https://example.com" || link.Attrs["title"] != "Docs" {
		t.Errorf("unexpected link attrs %v", link.Attrs)
	}
}

func TestMarkdownImporter_CodeBlocks(t *testing.T) {
	input := "Intro.\n\n```go\nfmt.Println(1)\nfmt.Println(2)\n```\n\n    indented\n"
	doc := importMarkdown(t, input)
	if len(doc.Content) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(doc.Content))
	}

	fenced := doc.Content[1]
	if fenced.Type != doctree.TypeCodeBlock {
		t.Fatalf("expected code-block, got %s", fenced.Type)
	}
	if fenced.Attr("language") != "go" {
		t.Errorf("expected language go, got %v", fenced.Attr("language"))
	}
	if got := fenced.Content[0].Text; got != "fmt.Println(1)\nfmt.Println(2)" {
		t.Errorf("unexpected code %q", got)
	}

	indented := doc.Content[2]
	if indented.Attrs != nil || indented.Content[0].Text != "indented" {
		t.Errorf("unexpected indented block %+v", indented)
	}
}

func TestMarkdownImporter_Media(t *testing.T) {
	input := "![A cat](https://res.cloudinary.com/demo/image/upload/v1/cat.jpg)\n\nhttps://youtu.be/abc123xyz?t=30\n\n[watch](https://www.youtube.com/watch?v=abc123xyz)\n"
	doc := importMarkdown(t, input)
	if len(doc.Content) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(doc.Content))
	}

	img := doc.Content[0]
	if img.Type != doctree.TypeImage {
		t.Fatalf("expected image block, got %s", img.Type)
	}
	if img.Attr("alt") != "A cat" {
		t.Errorf("expected alt %q, got %v", "A cat", img.Attr("alt"))
	}

	short := doc.Content[1]
	if short.Type != doctree.TypeVideoEmbed {
		t.Fatalf("expected video-embed, got %s", short.Type)
	}
	if short.Attr("videoId") != "abc123xyz" || short.Attr("startTime") != 30 {
		t.Errorf("unexpected video attrs %v", short.Attrs)
	}

	linked := doc.Content[2]
	if src, _ := linked.StringAttr("src"); src != "https://www.youtube.com/watch?v=abc123xyz" {
		t.Errorf("unexpected src %q", src)
	}
}

func TestMarkdownImporter_EmptyInput(t *testing.T) {
	doc := importMarkdown(t, "")
	if doc.Type != doctree.TypeDoc {
		t.Fatalf("expected doc root, got %s", doc.Type)
	}
	if len(doc.Content) != 0 {
		t.Errorf("expected 0 blocks for empty input, got %d", len(doc.Content))
	}
}
