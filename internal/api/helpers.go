package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/benchhub/hub/internal/repositories"
)

// timeFormat is used for every timestamp field in API responses.
const timeFormat = time.RFC3339

// parseUUID extracts and parses a UUID path parameter by name.
func parseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrBadRequest(w, "invalid "+param+": must be a valid UUID")
		return uuid.UUID{}, false
	}
	return id, true
}

// paginationOpts reads limit and offset query parameters from the request.
// Defaults: limit=20, offset=0. Max limit is capped at 100.
func paginationOpts(r *http.Request) repositories.ListOptions {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return repositories.ListOptions{Limit: limit, Offset: offset}
}

// chiURLParamSlug extracts the "slug" path parameter. Federation rows are
// slug-keyed rather than UUID-keyed (see store.FederationProject), so this
// skips the UUID parsing parseUUID performs.
func chiURLParamSlug(r *http.Request) string {
	return chi.URLParam(r, "slug")
}

// chiURLParam extracts a path parameter by name as a raw string, for
// identifiers (like a workflow node ID) that aren't UUIDs.
func chiURLParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// parseUUIDString parses a UUID from an already-extracted string, for the
// handlers that take an id out of a JSON body rather than a path parameter.
func parseUUIDString(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}
