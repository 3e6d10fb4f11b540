package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// IdempotencyKeyHeader is the request header clients set to make a write
// endpoint safe to retry (spec.md §4.5).
const IdempotencyKeyHeader = "Idempotency-Key"

// recorder buffers a handler's response so it can be replayed verbatim on a
// retried request with the same idempotency key.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// Idempotent wraps a write handler so that repeated requests carrying the
// same Idempotency-Key header and the same request body replay the first
// response instead of re-running the mutation. A key reused with a
// different body is rejected with 409 — it almost certainly indicates a
// client bug, not a legitimate retry.
func Idempotent(repo repositories.IdempotencyRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				ErrBadRequest(w, "failed to read request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])

			existing, err := repo.Get(r.Context(), key)
			switch {
			case err == nil:
				if existing.RequestHash != hash {
					ErrConflict(w, "idempotency key reused with a different request body")
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			default:
				// Not found (or lookup error): proceed and record the
				// outcome of this attempt. Any non-ErrNotFound lookup
				// failure degrades to "treat as first attempt" rather than
				// blocking the write — the idempotency cache is a safety
				// net, not the source of truth.
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				saveErr := repo.Save(r.Context(), &store.IdempotencyRecord{
					Key:          key,
					RequestHash:  hash,
					StatusCode:   rec.status,
					ResponseBody: rec.body.String(),
					CreatedAt:    time.Now().UTC(),
				})
				if saveErr != nil {
					logger.Warn("failed to persist idempotency record", zap.String("key", key), zap.Error(saveErr))
				}
			}
		})
	}
}
