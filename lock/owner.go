package lock

import (
	"context"

	"github.com/google/uuid"
)

type ownerKey struct{}

// WithOwner returns a context carrying owner as the lock owner. Acquires made
// with the same owner are reentrant.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the lock owner carried by ctx.
func OwnerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// NewOwner returns a fresh, time ordered owner id.
func NewOwner() string {
	return uuid.Must(uuid.NewV7()).String()
}

// EnsureOwner returns ctx unchanged if it carries an owner, otherwise a child
// context with a new one.
func EnsureOwner(ctx context.Context) context.Context {
	if _, ok := OwnerFrom(ctx); ok {
		return ctx
	}
	return WithOwner(ctx, NewOwner())
}
