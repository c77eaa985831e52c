package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePathstore is an in-memory stand-in for the pathstore KV API.
type fakePathstore struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
	fail  int // status to return for every request when non-zero
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != 0 {
		http.Error(w, "unavailable", f.fail)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		type node struct {
			Key   string          `json:"key_path"`
			Value json.RawMessage `json:"value"`
		}
		var keys []string
		for k := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		out := struct {
			Nodes []node `json:"nodes"`
		}{Nodes: []node{}}
		for _, k := range keys {
			out.Nodes = append(out.Nodes, node{Key: strings.ReplaceAll(k, "/", "."), Value: f.nodes[k]})
		}
		json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodGet:
		v, ok := f.nodes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
	case r.Method == http.MethodPut:
		var req struct {
			Value  json.RawMessage `json:"value"`
			Source string          `json:"source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source != "postpack" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete:
		if _, ok := f.nodes[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.nodes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakePathstore) setFail(status int) {
	f.mu.Lock()
	f.fail = status
	f.mu.Unlock()
}

func (f *fakePathstore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[key]
	return ok
}

func newTestPathstore(t *testing.T) (*PathstoreStore, *fakePathstore) {
	t.Helper()
	fake := &fakePathstore{nodes: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s := NewPathstore(srv.URL, "secret")
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func TestPathstoreStore(t *testing.T) {
	s, fake := newTestPathstore(t)
	testStoreContract(t, s)

	if !fake.has("content/posts/0") {
		t.Error("expected post stored under content/posts/0")
	}
}

func TestPathstoreStore_ServerErrorsAreRetryable(t *testing.T) {
	s, fake := newTestPathstore(t)
	ctx := context.Background()

	fake.setFail(http.StatusServiceUnavailable)
	if err := s.Put(ctx, testPost("x", time.Now())); !IsRetryable(err) {
		t.Errorf("expected retryable error for 503, got %v", err)
	}

	fake.setFail(http.StatusBadRequest)
	_, err := s.Get(ctx, "x")
	if err == nil || IsRetryable(err) {
		t.Errorf("expected permanent error for 400, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("expected 400 not to map to ErrNotFound")
	}
}

func TestPathstoreStore_Unauthorized(t *testing.T) {
	fake := &fakePathstore{nodes: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewPathstore(srv.URL, "wrong")
	if _, err := s.List(context.Background(), 0); err == nil {
		t.Error("expected error with wrong api key")
	}
}
