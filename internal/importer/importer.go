// Package importer converts uploaded files into rich-text document trees
// ready for compaction.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
)

// Importer converts raw file bytes into a doc tree.
type Importer interface {
	Import(r io.Reader, filename string) (*doctree.Node, error)
}

// Options tunes importer behavior.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate importer for a filename.
func ForFile(filename string, opts Options) (Importer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextImporter{}, nil
	case ".md", ".markdown":
		return &MarkdownImporter{}, nil
	case ".csv":
		return &CSVImporter{}, nil
	case ".html", ".htm":
		return &HTMLImporter{}, nil
	case ".pdf":
		return &PDFImporter{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXImporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// TitleOf picks a title for an imported document: the text of its first
// heading, or the filename without its extension.
func TitleOf(doc *doctree.Node, filename string) string {
	var title string
	doctree.Walk(doc, func(n *doctree.Node) bool {
		if title != "" {
			return false
		}
		if n.Type == doctree.TypeHeading {
			title = doctree.PlainText(n)
			return false
		}
		return true
	})
	if title != "" {
		return title
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
