package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/doctree"
)

// maxBatchDocuments bounds /api/content/stats/batch.
const maxBatchDocuments = 100

// readBody limits the request body and decodes JSON into v.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (*doctree.Node, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	return doctree.ParseReader(r.Body)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	doc, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	compact, stats, err := s.content.Codec().EncodeWithStats(doc)
	s.metrics.ObserveEncode(stats, err)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"compact": compact,
		"stats":   stats,
	})
}

type expandRequest struct {
	Compact   string `json:"compact"`
	CloudName string `json:"cloud_name,omitempty"`
	MediaHost string `json:"media_host,omitempty"`
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := s.readBody(w, r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.Compact == "" {
		jsonError(w, "compact is required", http.StatusBadRequest)
		return
	}

	ctx := s.cfg.MediaContext()
	if req.CloudName != "" {
		ctx.CloudName = req.CloudName
	}
	if req.MediaHost != "" {
		ctx.MediaHost = req.MediaHost
	}

	doc, err := s.content.Codec().Decode(req.Compact, ctx)
	s.metrics.ObserveDecode(err)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	doc, err := s.readDocument(w, r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	stats, err := s.content.Codec().StatsFor(doc)
	s.metrics.ObserveEncode(stats, err)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type batchStatsRequest struct {
	Documents []json.RawMessage `json:"documents"`
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	var req batchStatsRequest
	if err := s.readBody(w, r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		jsonError(w, "at least one document is required", http.StatusBadRequest)
		return
	}
	if len(req.Documents) > maxBatchDocuments {
		jsonError(w, fmt.Sprintf("too many documents (max %d)", maxBatchDocuments), http.StatusBadRequest)
		return
	}

	docs := make([]*doctree.Node, len(req.Documents))
	for i, raw := range req.Documents {
		doc, err := doctree.Parse(raw)
		if err != nil {
			jsonError(w, fmt.Sprintf("document %d: %s", i, err), http.StatusBadRequest)
			return
		}
		docs[i] = doc
	}

	stats, err := s.content.BatchStats(r.Context(), docs)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	var total codec.Stats
	for _, st := range stats {
		total.OriginalSize += st.OriginalSize
		total.CompressedSize += st.CompressedSize
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
		"total": codec.NewStats(total.OriginalSize, total.CompressedSize),
	})
}
