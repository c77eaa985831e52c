package importer

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
)

// TextImporter handles plain text files. Blank lines separate paragraphs;
// line breaks inside a paragraph are kept as hard breaks.
type TextImporter struct{}

func (p *TextImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := doctree.NewDoc()
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		var in inlines
		for i, line := range current {
			if i > 0 {
				in.add(&doctree.Node{Type: doctree.TypeHardBreak})
			}
			in.text(line, nil)
		}
		doc.Content = append(doc.Content, paragraphBlocks(in)...)
		current = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			current = append(current, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}
