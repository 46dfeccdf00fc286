package auth

import (
	"context"
	"slices"
)

// Identity is the authenticated caller of one request.
type Identity struct {
	Subject     string
	Authorities []string
}

func (i Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.Authorities, authority)
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	identity.Authorities = slices.Clone(identity.Authorities)
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
