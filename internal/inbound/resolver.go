package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/jarrod-lowe/burner-notify/internal/address"
)

// Error types for resolution. Both are terminal: redelivering the message
// cannot change the outcome.
var (
	ErrNoOwner     = errors.New("no owner for recipient")
	ErrUnparseable = errors.New("unparseable email")
)

// OwnerResolver looks up the owner of an address.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, address string) (*address.Owner, error)
}

// Resolution is a parsed email together with the owner of its recipient.
type Resolution struct {
	Email *Email
	Owner *address.Owner
}

// Resolver maps raw email to the owning user.
type Resolver struct {
	owners OwnerResolver
}

// NewResolver creates a new Resolver.
func NewResolver(owners OwnerResolver) *Resolver {
	return &Resolver{owners: owners}
}

// Resolve parses raw and looks up the owner of its first recipient. Store
// failures are returned unchanged so callers can retry them.
func (r *Resolver) Resolve(ctx context.Context, raw []byte) (*Resolution, error) {
	email, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	owner, err := r.owners.ResolveOwner(ctx, email.Recipient)
	if err != nil {
		if errors.Is(err, address.ErrOwnerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoOwner, email.Recipient)
		}
		return nil, err
	}

	return &Resolution{Email: email, Owner: owner}, nil
}
