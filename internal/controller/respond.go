package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sharpsend/sendqueue/internal/apperrors"
)

// publisherHeader carries the tenant id resolved by the auth layer in front
// of this service.
const publisherHeader = "X-Publisher-ID"

// RequirePublisher rejects requests without a tenant id. Every store
// operation downstream is scoped by it.
func RequirePublisher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(publisherHeader) == "" {
			http.Error(w, "missing "+publisherHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func publisherID(r *http.Request) string {
	return r.Header.Get(publisherHeader)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *apperrors.ValidationError
		notFound   *apperrors.NotFoundError
		conflict   *apperrors.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
