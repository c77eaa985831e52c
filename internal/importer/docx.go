package importer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXImporter handles .docx files.
type DOCXImporter struct{}

func (p *DOCXImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	// go-docx needs a ReaderAt and size.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	out := doctree.NewDoc()
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			out.Content = append(out.Content, docxParagraph(doc, it)...)
		case *docx.Table:
			if t := docxTable(doc, it); t != nil {
				out.Content = append(out.Content, t)
			}
		}
	}
	return out, nil
}

func docxParagraph(doc *docx.Docx, para *docx.Paragraph) []*doctree.Node {
	content := docxInlines(doc, para)
	if level := docxHeadingLevel(para); level > 0 {
		content = trimInlines(content)
		if len(content) == 0 {
			return nil
		}
		return []*doctree.Node{doctree.Heading(level, content...)}
	}
	return paragraphBlocks(content)
}

func docxTable(doc *docx.Docx, tbl *docx.Table) *doctree.Node {
	table := &doctree.Node{Type: doctree.TypeTable}
	for i, tr := range tbl.TableRows {
		row := &doctree.Node{Type: doctree.TypeTableRow}
		for _, tc := range tr.TableCells {
			cell := &doctree.Node{Type: doctree.TypeTableCell}
			if i == 0 {
				cell.Type = doctree.TypeTableHeader
			}
			for _, para := range tc.Paragraphs {
				cell.Content = append(cell.Content, paragraphBlocks(docxInlines(doc, para))...)
			}
			if len(cell.Content) == 0 {
				cell.Content = []*doctree.Node{doctree.Paragraph()}
			}
			row.Content = append(row.Content, cell)
		}
		table.Content = append(table.Content, row)
	}
	if len(table.Content) == 0 {
		return nil
	}
	return table
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
		return int(rest[0] - '0')
	}
	if style == "title" {
		return 1
	}
	return 0
}

func docxInlines(doc *docx.Docx, para *docx.Paragraph) []*doctree.Node {
	var in inlines
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			docxRun(&in, c, nil)
		case *docx.Hyperlink:
			var marks []doctree.Mark
			if target, err := doc.ReferTarget(c.ID); err == nil && target != "" {
				marks = []doctree.Mark{linkMark(target, "")}
			}
			if len(c.Run.Children) == 0 {
				in.text(c.Run.InstrText, marks)
				continue
			}
			docxRun(&in, &c.Run, marks)
		}
	}
	return in
}

func docxRun(in *inlines, run *docx.Run, marks []doctree.Mark) {
	if p := run.RunProperties; p != nil {
		if p.Bold != nil {
			marks = withMark(marks, doctree.Mark{Type: "bold"})
		}
		if p.Italic != nil {
			marks = withMark(marks, doctree.Mark{Type: "italic"})
		}
		if p.Underline != nil && p.Underline.Val != "none" {
			marks = withMark(marks, doctree.Mark{Type: "underline"})
		}
		if p.Strike != nil && p.Strike.Val != "false" && p.Strike.Val != "0" {
			marks = withMark(marks, doctree.Mark{Type: "strike"})
		}
	}
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			in.text(t.Text, marks)
		case *docx.Tab:
			in.text("\t", marks)
		case *docx.BarterRabbet:
			in.add(&doctree.Node{Type: doctree.TypeHardBreak})
		}
	}
}
