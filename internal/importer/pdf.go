package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

var errNoPDFText = errors.New("no extractable text")

// PDFImporter turns each page of a PDF into a "Page N" heading followed by
// the page's paragraphs. Scanned or oddly encoded files can fall back to the
// pdftotext binary.
type PDFImporter struct {
	FallbackPdftotext bool
}

func (p *PDFImporter) Import(r io.Reader, filename string) (*doctree.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := readPDFPages(data)
	if err != nil && p.FallbackPdftotext {
		var text string
		text, err = pdftotext(data)
		pages = splitPages(text)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return pagesToDoc(pages), nil
}

// pagesToDoc skips pages without text but keeps page numbering.
func pagesToDoc(pages []string) *doctree.Node {
	doc := doctree.NewDoc()
	for i, page := range pages {
		paras := splitParagraphs(page)
		if len(paras) == 0 {
			continue
		}
		doc.Content = append(doc.Content, doctree.Heading(2, doctree.Text(fmt.Sprintf("Page %d", i+1))))
		for _, para := range paras {
			doc.Content = append(doc.Content, doctree.Paragraph(doctree.Text(para)))
		}
	}
	return doc
}

func splitParagraphs(page string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n\n") {
		if t := collapseSpace(strings.TrimSpace(block)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// readPDFPages returns the plain text of every page, in order.
func readPDFPages(data []byte) ([]string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	pages := make([]string, reader.NumPage())
	found := false
	for i := range pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i] = text
		found = found || strings.TrimSpace(text) != ""
	}
	if !found {
		return nil, errNoPDFText
	}
	return pages, nil
}

// pdftotext runs the poppler binary over a temp copy of data. Pages in its
// output are separated by form feeds.
func pdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "postpack-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
