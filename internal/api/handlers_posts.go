package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/postpack/internal/content"
	"github.com/dgallion1/postpack/internal/doctree"
	"github.com/dgallion1/postpack/internal/store"
)

type savePostRequest struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Document json.RawMessage `json:"document"`
}

func (s *Server) handleSavePost(w http.ResponseWriter, r *http.Request) {
	var req savePostRequest
	if err := s.readBody(w, r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if len(req.Document) == 0 {
		jsonError(w, "document is required", http.StatusBadRequest)
		return
	}
	doc, err := doctree.Parse(req.Document)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	post, err := s.content.Save(r.Context(), content.SaveRequest{
		ID:       req.ID,
		Title:    req.Title,
		Slug:     req.Slug,
		Document: doc,
	})
	if err != nil {
		s.log.Error("save post failed", "post_id", req.ID, "error", err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	posts, err := s.content.List(r.Context(), limit)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if posts == nil {
		posts = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	doc, err := s.content.Load(r.Context(), id)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	if err := s.content.Delete(r.Context(), id); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if s.orchestrator != nil {
		s.orchestrator.ForgetPost(id)
	}
	w.WriteHeader(http.StatusNoContent)
}
