package codec

import (
	"fmt"
	"math"

	"github.com/dgallion1/postpack/internal/doctree"
)

// Stats describes how much a document shrinks when compacted. Reduction is
// negative when the compact form is larger.
type Stats struct {
	OriginalSize     int     `json:"originalSize"`
	CompressedSize   int     `json:"compressedSize"`
	Reduction        int     `json:"reduction"`
	ReductionPercent float64 `json:"reductionPercent"`
}

// StatsFor compares the canonical serialization of doc with its compact form.
func (c *Codec) StatsFor(doc *doctree.Node) (Stats, error) {
	_, stats, err := c.EncodeWithStats(doc)
	return stats, err
}

// EncodeWithStats compacts doc and reports the savings.
func (c *Codec) EncodeWithStats(doc *doctree.Node) (string, Stats, error) {
	compact, err := c.Encode(doc)
	if err != nil {
		return "", Stats{}, err
	}
	original, err := doc.Canonical()
	if err != nil {
		return "", Stats{}, fmt.Errorf("marshal document: %w", err)
	}
	return compact, NewStats(len(original), len(compact)), nil
}

// NewStats derives reduction figures from two byte sizes. The percentage is
// rounded to two decimals.
func NewStats(originalSize, compressedSize int) Stats {
	s := Stats{
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Reduction:      originalSize - compressedSize,
	}
	if originalSize > 0 {
		pct := float64(s.Reduction) / float64(originalSize) * 100
		s.ReductionPercent = math.Round(pct*100) / 100
	}
	return s
}
