package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity carries the acting user and tenant for a request. It is resolved
// at the boundary (HTTP middleware, job payloads) and flows through context;
// the ledger core never loads users itself.
type Identity struct {
	ActorID    uuid.UUID
	ActorName  string
	BusinessID uuid.UUID
}

// SystemActorName stamps writes performed by background policy, such as the
// automatic close of a stale global-cash period.
const SystemActorName = "system"

// SystemIdentity returns the identity used for automated writes scoped to a
// business.
func SystemIdentity(businessID uuid.UUID) Identity {
	return Identity{ActorName: SystemActorName, BusinessID: businessID}
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. The zero Identity
// is returned when none was set.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
