package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyCacheEntry is one recorded response, replayed verbatim when
// the same caller retries with the same key and an identical request.
type IdempotencyCacheEntry struct {
	Key          string
	UserID       uuid.UUID
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyCacheEntry, error) {
	var e IdempotencyCacheEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, user_id, request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE idempotency_key = $1 AND user_id = $2 AND expires_at > now()`,
		key, userID,
	).Scan(&e.Key, &e.UserID, &e.RequestHash, &e.StatusCode, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &e, nil
}

// Reserve claims the key for userID before the request executes, so two
// concurrent requests with the same key cannot both reach the handler. A
// status code of zero marks the claim as in flight until Complete fills it
// in. When a live entry already holds the key, Reserve returns that entry
// instead of claiming; expired rows are reclaimed in place.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key string, userID uuid.UUID, requestHash string, expiresAt time.Time) (*IdempotencyCacheEntry, error) {
	// Two attempts: the second covers an entry expiring between the failed
	// insert and the read of the conflicting row.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO idempotency_cache (idempotency_key, user_id, request_hash, status_code, response_body, created_at, expires_at)
			VALUES ($1, $2, $3, 0, ''::bytea, now(), $4)
			ON CONFLICT (idempotency_key, user_id) DO UPDATE
			SET request_hash = EXCLUDED.request_hash,
				status_code = 0,
				response_body = EXCLUDED.response_body,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at
			WHERE idempotency_cache.expires_at <= now()`,
			key, userID, requestHash, expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("Reserve: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("Reserve: rows affected: %w", err)
		}
		if rows > 0 {
			return nil, nil
		}

		existing, err := r.Get(ctx, key, userID)
		if err != nil {
			return nil, fmt.Errorf("Reserve: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("Reserve: key %q contended", key)
}

// Complete records the response for a reserved key.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, userID uuid.UUID, statusCode int, responseBody []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache SET status_code = $1, response_body = $2
		WHERE idempotency_key = $3 AND user_id = $4`,
		statusCode, responseBody, key, userID,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release drops a reservation that never completed, so the caller's retry is
// not shut out until the entry expires. Completed entries are left alone.
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache
		WHERE idempotency_key = $1 AND user_id = $2 AND status_code = 0`,
		key, userID,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
