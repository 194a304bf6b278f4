package address

import (
	"context"
	"errors"
)

// Error types for repository operations.
var (
	ErrOwnerNotFound    = errors.New("no owner for address")
	ErrAddressTaken     = errors.New("address already claimed")
	ErrStoreUnavailable = errors.New("address store unavailable")
)

// Repository defines the interface for address storage operations.
type Repository interface {
	CreateAddress(ctx context.Context, chatID int64) (string, error)
	ListAddresses(ctx context.Context, chatID int64) ([]string, error)
	DeactivateAddress(ctx context.Context, chatID int64, address string) error
	ResolveOwner(ctx context.Context, address string) (*Owner, error)
	EnsureUser(ctx context.Context, profile *UserProfile) error
}
