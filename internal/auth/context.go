package auth

import (
	"context"

	"github.com/google/uuid"
)

type ownerIDKey struct{}

// ContextWithOwnerID stamps the authenticated account owner onto the context.
func ContextWithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, id)
}

// OwnerIDFromContext returns the owner id stamped by the auth middleware.
// Handlers use it to scope account and transfer operations to the caller.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerIDKey{}).(uuid.UUID)
	return id, ok
}
