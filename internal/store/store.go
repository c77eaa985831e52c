// Package store persists compacted posts. Two interchangeable backends are
// provided: Redis and the pathstore HTTP key-value service.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/config"
)

// ErrNotFound is returned when a post does not exist.
var ErrNotFound = errors.New("post not found")

// Post is a stored document in compact form.
type Post struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Compact     string      `json:"compact"`
	Stats       codec.Stats `json:"stats"`
	ContentHash string      `json:"content_hash,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Summary is the listing view of a post.
type Summary struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"`
	Title     string      `json:"title"`
	Stats     codec.Stats `json:"stats"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (p *Post) Summary() Summary {
	return Summary{ID: p.ID, Slug: p.Slug, Title: p.Title, Stats: p.Stats, UpdatedAt: p.UpdatedAt}
}

// Store is implemented by every backend.
type Store interface {
	// Put creates or replaces a post.
	Put(ctx context.Context, p *Post) error
	// Get returns ErrNotFound if the post does not exist.
	Get(ctx context.Context, id string) (*Post, error)
	// Delete returns ErrNotFound if the post does not exist.
	Delete(ctx context.Context, id string) error
	// List returns the most recently updated posts first. A limit of zero
	// or less returns everything.
	List(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}

// RetryableError indicates a transient backend failure that can be retried.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error during %s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// New opens the backend selected by cfg.StoreBackend.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := OpenRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		log.Info("using redis store", "prefix", cfg.RedisKeyPrefix)
		return s, nil
	case config.BackendPathstore:
		log.Info("using pathstore store", "url", cfg.PathstoreURL)
		return NewPathstore(cfg.PathstoreURL, cfg.PathstoreAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// sortSummaries orders by most recent update, then id for stability.
func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

func validID(id string) error {
	if id == "" {
		return errors.New("empty post id")
	}
	for _, r := range id {
		if r == '/' || r == '*' || r == '?' || r == '#' || r == ' ' {
			return fmt.Errorf("invalid post id %q", id)
		}
	}
	return nil
}
