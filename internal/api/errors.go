package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/content"
	"github.com/dgallion1/postpack/internal/store"
)

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeJSON writes v without HTML escaping so document text comes back as
// it went in.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

// statusFor maps service errors to HTTP status codes. Errors it does not
// recognize get fallback.
func statusFor(err error, fallback int) int {
	var (
		validation *content.ValidationError
		malformed  *codec.MalformedInputError
		missing    *codec.MissingContextError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validation),
		errors.As(err, &malformed),
		errors.Is(err, codec.ErrNotDocument),
		errors.Is(err, codec.ErrTooDeep):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case store.IsRetryable(err):
		return http.StatusBadGateway
	}
	return fallback
}

func writeError(w http.ResponseWriter, err error, fallback int) {
	jsonError(w, err.Error(), statusFor(err, fallback))
}
