package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/dgallion1/postpack/internal/pathstore"
)

const postsPrefix = "content/posts"

// PathstoreStore keeps posts in the pathstore key-value service under
// content/posts/<id>.
type PathstoreStore struct {
	client *pathstore.Client
}

func NewPathstore(baseURL, apiKey string) *PathstoreStore {
	return &PathstoreStore{client: pathstore.NewClient(baseURL, apiKey)}
}

func (s *PathstoreStore) Put(ctx context.Context, p *Post) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	return pathstoreErr("put post "+p.ID, s.client.Put(ctx, postsPrefix+"/"+p.ID, p))
}

func (s *PathstoreStore) Get(ctx context.Context, id string) (*Post, error) {
	if err := validID(id); err != nil {
		return nil, ErrNotFound
	}
	raw, err := s.client.Get(ctx, postsPrefix+"/"+id)
	if err != nil {
		return nil, pathstoreErr("get post "+id, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var p Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return &p, nil
}

func (s *PathstoreStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return ErrNotFound
	}
	err := s.client.Delete(ctx, postsPrefix+"/"+id)
	var se *pathstore.StatusError
	if errors.As(err, &se) && se.NotFound() {
		return ErrNotFound
	}
	return pathstoreErr("delete post "+id, err)
}

func (s *PathstoreStore) List(ctx context.Context, limit int) ([]Summary, error) {
	nodes, err := s.client.Scan(ctx, postsPrefix)
	if err != nil {
		return nil, pathstoreErr("list posts", err)
	}
	out := make([]Summary, 0, len(nodes))
	for _, n := range nodes {
		var p Post
		if err := json.Unmarshal(n.Value, &p); err != nil {
			return nil, fmt.Errorf("decode post at %s: %w", n.Key, err)
		}
		out = append(out, p.Summary())
	}
	sortSummaries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PathstoreStore) Close() error {
	s.client.Close()
	return nil
}

// pathstoreErr marks transport failures and 5xx or 429 responses as
// retryable.
func pathstoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *pathstore.StatusError
	if errors.As(err, &se) && se.Temporary() {
		return &RetryableError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
