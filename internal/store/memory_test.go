package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/vrfmint/internal/domain"
)

func buildURI(uri string) BuildFunc {
	return func(tokenID uint64, owner string) (domain.TokenRecord, error) {
		return domain.TokenRecord{URI: uri, AttributeClass: "A", MintedAt: time.Now()}, nil
	}
}

func TestMemoryStorePendingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := domain.PendingRequest{RequestID: "r1", Requester: "alice", Payment: big.NewInt(5)}
	require.NoError(t, s.CreatePending(ctx, p))
	assert.ErrorIs(t, s.CreatePending(ctx, p), ErrDuplicate)

	got, err := s.GetPending(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Requester)
	assert.Equal(t, int64(5), got.Payment.Int64())

	// the stored payment is isolated from callers
	got.Payment.SetInt64(99)
	again, err := s.GetPending(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.Payment.Int64())

	rec, err := s.FulfillPending(ctx, "r1", buildURI("u"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.TokenID)
	assert.Equal(t, "alice", rec.Owner)

	_, err = s.GetPending(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FulfillPending(ctx, "r1", buildURI("u"))
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.TokenCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestMemoryStoreBuildFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreatePending(ctx, domain.PendingRequest{RequestID: "r1", Requester: "bob"}))

	boom := errors.New("boom")
	_, err := s.FulfillPending(ctx, "r1", func(uint64, string) (domain.TokenRecord, error) {
		return domain.TokenRecord{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetPending(ctx, "r1")
	require.NoError(t, err)
	n, _ := s.TokenCounter(ctx)
	assert.Equal(t, uint64(0), n)
	_, err = s.GetToken(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentFulfillment(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	const requests = 50
	for i := 0; i < requests; i++ {
		require.NoError(t, s.CreatePending(ctx, domain.PendingRequest{
			RequestID: fmt.Sprintf("r%d", i),
			Requester: "alice",
		}))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := make(map[string]int)
	ids := make(map[uint64]bool)
	// every request is fulfilled twice concurrently; exactly one must win
	for round := 0; round < 2; round++ {
		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				rec, err := s.FulfillPending(ctx, id, buildURI(id))
				if err != nil {
					assert.ErrorIs(t, err, ErrNotFound)
					return
				}
				mu.Lock()
				wins[id]++
				assert.False(t, ids[rec.TokenID], "token id %d claimed twice", rec.TokenID)
				ids[rec.TokenID] = true
				mu.Unlock()
			}(fmt.Sprintf("r%d", i))
		}
	}
	wg.Wait()

	assert.Len(t, wins, requests)
	for id, n := range wins {
		assert.Equal(t, 1, n, "request %s", id)
	}
	for i := uint64(0); i < requests; i++ {
		assert.True(t, ids[i], "token id %d missing", i)
	}
	pending, _ := s.CountPending(ctx)
	assert.Zero(t, pending)
}

func TestMemoryStoreMintDirectSharesCounter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, err := s.MintDirect(ctx, "alice", buildURI("basic"))
	require.NoError(t, err)
	require.NoError(t, s.CreatePending(ctx, domain.PendingRequest{RequestID: "r1", Requester: "bob"}))
	b, err := s.FulfillPending(ctx, "r1", buildURI("random"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), a.TokenID)
	assert.Equal(t, uint64(1), b.TokenID)

	tok, err := s.GetToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", tok.Owner)
	assert.Equal(t, "random", tok.URI)
}
