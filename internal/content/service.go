// Package content stores documents as compact posts and serves them back
// expanded.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/metrics"
	"github.com/dgallion1/postpack/internal/store"
)

// ValidationError reports a request the service refuses before touching
// the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var postIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Options configures a Service.
type Options struct {
	Context    codec.Context // media reconstruction context for Load
	CacheSize  int
	CacheTTL   time.Duration
	BatchLimit int // concurrent StatsFor calls in BatchStats
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Service compacts documents into posts and expands them on the way out.
type Service struct {
	codec   *codec.Codec
	store   store.Store
	cache   *expirable.LRU[string, *doctree.Node]
	ctx     codec.Context
	limit   int
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewService(c *codec.Codec, st store.Store, opts Options) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		codec:   c,
		store:   st,
		cache:   expirable.NewLRU[string, *doctree.Node](opts.CacheSize, nil, opts.CacheTTL),
		ctx:     opts.Context,
		limit:   opts.BatchLimit,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     time.Now,
	}
}

// Codec returns the codec used for compaction.
func (s *Service) Codec() *codec.Codec { return s.codec }

// SaveRequest creates a post, or replaces it when ID names an existing one.
// Compacted, when set, is saved in place of Document.
type SaveRequest struct {
	ID        string        `json:"id,omitempty"`
	Title     string        `json:"title"`
	Slug      string        `json:"slug,omitempty"`
	Document  *doctree.Node `json:"document"`
	Compacted *Compacted    `json:"-"`
}

// Compacted is a document already run through the codec.
type Compacted struct {
	Compact   string
	Stats     codec.Stats
	canonical []byte
}

// Compact encodes doc once. The result can be handed to any number of Save
// attempts without encoding again.
func (s *Service) Compact(doc *doctree.Node) (*Compacted, error) {
	if doc == nil {
		return nil, &ValidationError{Field: "document", Reason: "required"}
	}
	compact, stats, err := s.codec.EncodeWithStats(doc)
	s.metrics.ObserveEncode(stats, err)
	if err != nil {
		return nil, fmt.Errorf("compact document: %w", err)
	}
	canonical, err := doc.Canonical()
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return &Compacted{Compact: compact, Stats: stats, canonical: canonical}, nil
}

// Save compacts the document and writes it to the store. CreatedAt is kept
// when an existing post is replaced.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*store.Post, error) {
	if req.Document == nil && req.Compacted == nil {
		return nil, &ValidationError{Field: "document", Reason: "required"}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if !postIDPattern.MatchString(id) {
		return nil, &ValidationError{Field: "id", Reason: "must be 1-64 letters, digits, '-' or '_'"}
	}

	enc := req.Compacted
	if enc == nil {
		var err error
		if enc, err = s.Compact(req.Document); err != nil {
			return nil, err
		}
	}
	stats := enc.Stats

	slug := Slugify(req.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		slug = id
	}

	now := s.now().UTC()
	post := &store.Post{
		ID:          id,
		Slug:        slug,
		Title:       title,
		Compact:     enc.Compact,
		Stats:       stats,
		ContentHash: hashHex(enc.canonical),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ID != "" {
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			post.CreatedAt = existing.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("load existing post: %w", err)
		}
	}

	if err := s.store.Put(ctx, post); err != nil {
		return nil, fmt.Errorf("store post: %w", err)
	}
	s.invalidate(id)

	s.log.Info("post saved",
		"post_id", id,
		"original_size", stats.OriginalSize,
		"compressed_size", stats.CompressedSize,
		"reduction_percent", stats.ReductionPercent,
	)
	return post, nil
}

// Document is a post with its content expanded.
type Document struct {
	store.Post
	Document *doctree.Node `json:"document"`
}

// Load reads a post and expands it with the configured media context. The
// returned tree is shared with the cache and must not be modified.
func (s *Service) Load(ctx context.Context, id string) (*Document, error) {
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key := cacheKey(id, post.Compact)
	if doc, ok := s.cache.Get(key); ok {
		s.metrics.ObserveCache(true)
		return &Document{Post: *post, Document: doc}, nil
	}
	s.metrics.ObserveCache(false)

	doc, err := s.codec.Decode(post.Compact, s.ctx)
	s.metrics.ObserveDecode(err)
	if err != nil {
		return nil, fmt.Errorf("expand post %s: %w", id, err)
	}
	s.cache.Add(key, doc)
	return &Document{Post: *post, Document: doc}, nil
}

// Delete removes a post and drops its cached expansion.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// List returns the most recently updated posts first.
func (s *Service) List(ctx context.Context, limit int) ([]store.Summary, error) {
	return s.store.List(ctx, limit)
}

// BatchStats computes stats for each document concurrently. The result is
// in input order; the first failure aborts the batch.
func (s *Service) BatchStats(ctx context.Context, docs []*doctree.Node) ([]codec.Stats, error) {
	out := make([]codec.Stats, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats, err := s.codec.StatsFor(doc)
			s.metrics.ObserveEncode(stats, err)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			out[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// invalidate drops every cached expansion of id.
func (s *Service) invalidate(id string) {
	prefix := id + ":"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

func cacheKey(id, compact string) string {
	return id + ":" + hashHex([]byte(compact))[:16]
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
