package importer

import (
	"strings"
	"testing"

	"github.com/dgallion1/postpack/internal/doctree"
)

func TestTextImporter_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	doc, err := (&TextImporter{}).Import(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Content) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(doc.Content))
	}

	first := doc.Content[0]
	if len(first.Content) != 3 || first.Content[1].Type != doctree.TypeHardBreak {
		t.Errorf("expected text, hardBreak, text; got %+v", first.Content)
	}

	want := []string{"First paragraph line one.First paragraph line two.", "Second paragraph.", "Third paragraph."}
	for i, w := range want {
		if got := doctree.PlainText(doc.Content[i]); got != w {
			t.Errorf("paragraph[%d]: expected %q, got %q", i, w, got)
		}
	}
}

func TestTextImporter_EmptyInput(t *testing.T) {
	doc, err := (&TextImporter{}).Import(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Content) != 0 {
		t.Errorf("expected 0 paragraphs for empty input, got %d", len(doc.Content))
	}
}

func TestTextImporter_BlankLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		// Multiple consecutive blank lines should not produce empty paragraphs.
		{"multiple", "Para one.\n\n\n\nPara two."},
		// Lines with only whitespace should be treated as blank.
		{"whitespace only", "Para one.\n   \nPara two."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := (&TextImporter{}).Import(strings.NewReader(tt.input), "gaps.txt")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(doc.Content) != 2 {
				t.Fatalf("expected 2 paragraphs, got %d", len(doc.Content))
			}
		})
	}
}

func TestTextImporter_VideoLine(t *testing.T) {
	doc, err := (&TextImporter{}).Import(strings.NewReader("Watch this:\n\nhttps://www.youtube.com/embed/abc123xyz\n"), "v.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Content) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(doc.Content))
	}
	if got := doc.Content[1].Type; got != doctree.TypeVideoEmbed {
		t.Errorf("expected video-embed, got %s", got)
	}
}
