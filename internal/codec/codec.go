// Package codec compacts rich-text documents for storage and expands them
// back.
//
// Compaction drops what can be re-derived: type names become short codes,
// plain text runs become bare strings, and hosted media URLs are reduced to
// their media identifiers. Expansion rebuilds the dropped fields from a
// caller-supplied Context. For every registered node type,
// Decode(Encode(doc), ctx) reproduces doc exactly; unknown node types pass
// through untouched.
package codec

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgallion1/postpack/internal/doctree"
)

// GrammarVersion is the version written into every compact envelope.
const GrammarVersion = 1

// Context carries the reconstruction values that are not stored in the
// compact form.
type Context struct {
	CloudName string // media hosting account; required to expand images
	MediaHost string // defaults to media.DefaultHost
}

// Config controls codec behavior.
type Config struct {
	MaxDepth int          // Maximum document nesting depth.
	Logger   *slog.Logger // Receives soft compaction warnings; slog.Default() if nil.

	// OnFallback, if set, is called for each node whose compaction fell
	// back to pass-through.
	OnFallback func(*ShapeMismatchError)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 64}
}

// Codec holds a rule table. It is safe for concurrent use once all rules
// have been registered.
type Codec struct {
	cfg    Config
	byType map[string]Rule
	byCode map[string]Rule
}

// New returns a codec with the built-in rule table.
func New(cfg Config) *Codec {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 64
	}
	c := &Codec{
		cfg:    cfg,
		byType: make(map[string]Rule),
		byCode: make(map[string]Rule),
	}
	for _, r := range builtinRules() {
		if err := c.Register(r); err != nil {
			panic(err)
		}
	}
	return c
}

// Register adds a rule to the table. It must not be called concurrently
// with Encode or Decode.
func (c *Codec) Register(r Rule) error {
	switch {
	case r.Type == "" || r.Type == doctree.TypeText:
		return fmt.Errorf("register rule: invalid type %q", r.Type)
	case r.Code == "" || strings.HasPrefix(r.Code, literalPrefix):
		return fmt.Errorf("register rule %s: invalid code %q", r.Type, r.Code)
	case (r.Compact == nil) != (r.Expand == nil):
		return fmt.Errorf("register rule %s: compact and expand must be set together", r.Type)
	}
	if _, ok := c.byType[r.Type]; ok {
		return fmt.Errorf("register rule %s: type already registered", r.Type)
	}
	if other, ok := c.byCode[r.Code]; ok {
		return fmt.Errorf("register rule %s: code %q already used by %s", r.Type, r.Code, other.Type)
	}
	c.byType[r.Type] = r
	c.byCode[r.Code] = r
	return nil
}

// Rules returns the registered node types in sorted order.
func (c *Codec) Rules() []string {
	types := make([]string, 0, len(c.byType))
	for t := range c.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (c *Codec) log() *slog.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}
	return slog.Default()
}

// MaxDepth returns the configured nesting limit.
func (c *Codec) MaxDepth() int { return c.cfg.MaxDepth }

var std = New(DefaultConfig())

// Encode compacts doc with the default codec.
func Encode(doc *doctree.Node) (string, error) { return std.Encode(doc) }

// Decode expands a compact string with the default codec.
func Decode(compact string, ctx Context) (*doctree.Node, error) { return std.Decode(compact, ctx) }

// StatsFor reports the size savings of doc with the default codec.
func StatsFor(doc *doctree.Node) (Stats, error) { return std.StatsFor(doc) }

// EncodeWithStats compacts doc and reports its savings with the default codec.
func EncodeWithStats(doc *doctree.Node) (string, Stats, error) { return std.EncodeWithStats(doc) }
