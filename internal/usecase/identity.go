package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/iho/balanceledger/internal/domain"
)

type identityKey struct{}

// WithIdentity returns a context carrying the caller's identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey{}).(string)
	return identity, ok && identity != ""
}

// NodeIdentity resolves the caller from the context and falls back to the
// identity of the hosting node.
type NodeIdentity struct {
	node string
}

// NewNodeIdentity creates a NodeIdentity. An empty node name means every
// caller must carry an identity in its context.
func NewNodeIdentity(node string) *NodeIdentity {
	return &NodeIdentity{node: strings.TrimSpace(node)}
}

// Identity implements IdentityResolver.
func (n *NodeIdentity) Identity(ctx context.Context) (string, error) {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity, nil
	}
	if n.node == "" {
		return "", fmt.Errorf("%w: caller identity is required", domain.ErrInvalidArgument)
	}
	return n.node, nil
}
