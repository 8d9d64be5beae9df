package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/punchamoorthee/vrfmint/internal/domain"
	"github.com/punchamoorthee/vrfmint/internal/store"
)

func (s *MintService) MintFee() *big.Int {
	return new(big.Int).Set(s.fee)
}

func (s *MintService) Catalog() domain.Catalog {
	return s.catalog.Clone()
}

func (s *MintService) BaseURI() string {
	return s.baseURI
}

// Initialized reports whether the catalog has been loaded. A service can only
// be constructed with a valid catalog, so this is always true once built.
func (s *MintService) Initialized() bool {
	return len(s.catalog) > 0
}

// CatalogURI returns the URI minted for the catalog entry at index.
func (s *MintService) CatalogURI(index int) (string, error) {
	return s.catalog.URI(s.baseURI, index)
}

func (s *MintService) TokenCounter(ctx context.Context) (uint64, error) {
	return s.store.TokenCounter(ctx)
}

func (s *MintService) Token(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	rec, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
		}
		return nil, err
	}
	return rec, nil
}

func (s *MintService) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	rec, err := s.Token(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return rec.URI, nil
}

func (s *MintService) Pending(ctx context.Context, requestID string) (*domain.PendingRequest, error) {
	p, err := s.store.GetPending(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}
		return nil, err
	}
	return p, nil
}

// SyncMetrics resets the pending gauge from the store, e.g. after a restart on Postgres.
func (s *MintService) SyncMetrics(ctx context.Context) error {
	n, err := s.store.CountPending(ctx)
	if err != nil {
		return err
	}
	pendingRequests.Set(float64(n))
	return nil
}
