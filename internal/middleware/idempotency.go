package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/minibank/ledger-service/internal/auth"
	"github.com/minibank/ledger-service/internal/handler"
	"github.com/minibank/ledger-service/internal/logging"
	"github.com/minibank/ledger-service/internal/repository"
)

type idempotencyRepository interface {
	Reserve(ctx context.Context, key string, ownerID uuid.UUID, requestHash string, expiresAt time.Time) (*repository.IdempotencyCacheEntry, error)
	Complete(ctx context.Context, key string, ownerID uuid.UUID, statusCode int, responseBody []byte) error
	Release(ctx context.Context, key string, ownerID uuid.UUID) error
}

const idempotencyTTL = 24 * time.Hour

// Idempotency makes transfer retries safe over an unreliable network: a
// retried request with the same key and body replays the recorded response
// instead of moving money twice. The key is reserved before the handler
// runs, so two copies of the same request arriving together cannot both
// move money; the loser sees the stored response, or an in-flight conflict
// if the first copy has not finished yet.
func Idempotency(repo idempotencyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			ownerID, ok := auth.OwnerIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)
			log := logging.FromContext(r.Context())

			existing, err := repo.Reserve(r.Context(), key, ownerID, reqHash, time.Now().UTC().Add(idempotencyTTL))
			if err != nil {
				log.Error("idempotency reservation failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			if existing != nil {
				if existing.RequestHash != reqHash {
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
					return
				}
				if existing.StatusCode == 0 {
					// The first copy of this request is still executing.
					handler.RespondAppError(w, handler.ErrIdempotencyInFlight, nil)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replayed", "true")
				w.WriteHeader(existing.StatusCode)
				if _, err := w.Write(existing.ResponseBody); err != nil {
					log.Error("failed to write idempotent replay", "error", err, "idempotency_key", key)
				}
				return
			}

			// The reservation must not outlive a request that never stored
			// a response, or retries would be shut out until it expires.
			completed := false
			defer func() {
				if !completed {
					if relErr := repo.Release(r.Context(), key, ownerID); relErr != nil {
						log.Error("failed to release idempotency reservation", "error", relErr, "idempotency_key", key)
					}
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if err := repo.Complete(r.Context(), key, ownerID, rec.statusCode, rec.body.Bytes()); err != nil {
				log.Error("idempotency cache store failed", "error", err, "idempotency_key", key)
				return
			}
			completed = true
		})
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
