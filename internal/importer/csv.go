package importer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/postpack/internal/doctree"
)

// CSVImporter handles CSV files. The file becomes a single table whose
// first row is the header.
type CSVImporter struct{}

func (p *CSVImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := doctree.NewDoc()
	if len(records) == 0 {
		return doc, nil
	}

	table := &doctree.Node{Type: doctree.TypeTable}
	for i, record := range records {
		cellType := doctree.TypeTableCell
		if i == 0 {
			cellType = doctree.TypeTableHeader
		}
		row := &doctree.Node{Type: doctree.TypeTableRow}
		for _, field := range record {
			para := doctree.Paragraph()
			if field != "" {
				para.Content = []*doctree.Node{doctree.Text(field)}
			}
			row.Content = append(row.Content, &doctree.Node{
				Type:    cellType,
				Content: []*doctree.Node{para},
			})
		}
		table.Content = append(table.Content, row)
	}
	doc.Content = []*doctree.Node{table}
	return doc, nil
}
