package store

import (
	"context"
	"errors"

	"github.com/punchamoorthee/vrfmint/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// BuildFunc produces the token for a claimed tokenID and owner.
// A non-nil error aborts the surrounding mint with no state change.
type BuildFunc func(tokenID uint64, owner string) (domain.TokenRecord, error)

// Store persists pending requests, minted tokens and the token counter.
type Store interface {
	// CreatePending stores a new pending request. ErrDuplicate if the id is taken.
	CreatePending(ctx context.Context, p domain.PendingRequest) error
	GetPending(ctx context.Context, requestID string) (*domain.PendingRequest, error)
	CountPending(ctx context.Context) (int64, error)

	// FulfillPending consumes the pending request, claims the next token id and
	// records the built token in one atomic step. ErrNotFound if no such request.
	FulfillPending(ctx context.Context, requestID string, build BuildFunc) (*domain.TokenRecord, error)
	// MintDirect claims the next token id for owner without a pending request.
	MintDirect(ctx context.Context, owner string, build BuildFunc) (*domain.TokenRecord, error)

	GetToken(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error)
	TokenCounter(ctx context.Context) (uint64, error)

	Close()
}
