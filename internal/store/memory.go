package store

import (
	"context"
	"math/big"
	"sync"

	"github.com/punchamoorthee/vrfmint/internal/domain"
)

// MemoryStore keeps all state in process. Used when no DB_SOURCE is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]domain.PendingRequest
	tokens  []domain.TokenRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]domain.PendingRequest)}
}

func (s *MemoryStore) CreatePending(ctx context.Context, p domain.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[p.RequestID]; ok {
		return ErrDuplicate
	}
	s.pending[p.RequestID] = copyPending(p)
	return nil
}

func (s *MemoryStore) GetPending(ctx context.Context, requestID string) (*domain.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyPending(p)
	return &out, nil
}

func (s *MemoryStore) CountPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pending)), nil
}

func (s *MemoryStore) FulfillPending(ctx context.Context, requestID string, build BuildFunc) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	rec, err := s.mintLocked(p.Requester, build)
	if err != nil {
		return nil, err
	}
	delete(s.pending, requestID)
	return rec, nil
}

func (s *MemoryStore) MintDirect(ctx context.Context, owner string, build BuildFunc) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked(owner, build)
}

// mintLocked must be called with s.mu held.
func (s *MemoryStore) mintLocked(owner string, build BuildFunc) (*domain.TokenRecord, error) {
	tokenID := uint64(len(s.tokens))
	rec, err := build(tokenID, owner)
	if err != nil {
		return nil, err
	}
	rec.TokenID = tokenID
	rec.Owner = owner
	s.tokens = append(s.tokens, rec)
	return &rec, nil
}

func (s *MemoryStore) GetToken(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokenID >= uint64(len(s.tokens)) {
		return nil, ErrNotFound
	}
	rec := s.tokens[tokenID]
	return &rec, nil
}

func (s *MemoryStore) TokenCounter(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.tokens)), nil
}

func (s *MemoryStore) Close() {}

func copyPending(p domain.PendingRequest) domain.PendingRequest {
	if p.Payment != nil {
		p.Payment = new(big.Int).Set(p.Payment)
	}
	return p
}
