package oracle_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/punchamoorthee/vrfmint/internal/domain"
	"github.com/punchamoorthee/vrfmint/internal/event"
	"github.com/punchamoorthee/vrfmint/internal/oracle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingConsumer struct {
	mu    sync.Mutex
	calls map[string][]*big.Int
	err   error
	feed  *event.Feed
}

func (c *recordingConsumer) FulfillRandomWords(ctx context.Context, requestID string, words []*big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.calls == nil {
		c.calls = make(map[string][]*big.Int)
	}
	c.calls[requestID] = words
	if c.feed != nil {
		c.feed.Publish(event.MintCompletedEvent, domain.MintCompleted{RequestID: requestID})
	}
	return nil
}

func (c *recordingConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCoordinator(t *testing.T, cfg oracle.LocalConfig) *oracle.LocalCoordinator {
	t.Helper()
	c, err := oracle.NewLocalCoordinator(cfg, quiet())
	require.NoError(t, err)
	return c
}

func TestLocalCoordinatorConfigValidation(t *testing.T) {
	_, err := oracle.NewLocalCoordinator(oracle.LocalConfig{NumWords: oracle.MaxRandomWords + 1}, nil)
	assert.Error(t, err)
	_, err = oracle.NewLocalCoordinator(oracle.LocalConfig{Delay: -time.Second}, nil)
	assert.Error(t, err)
}

func TestLocalCoordinatorIssuesUniqueIDs(t *testing.T) {
	c := newCoordinator(t, oracle.LocalConfig{})
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := c.RequestRandomness(context.Background())
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, 100, c.Outstanding())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.RequestRandomness(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalCoordinatorWordsAreDeterministic(t *testing.T) {
	a := newCoordinator(t, oracle.LocalConfig{NumWords: 3, Seed: []byte("s")})
	b := newCoordinator(t, oracle.LocalConfig{NumWords: 3, Seed: []byte("s")})
	other := newCoordinator(t, oracle.LocalConfig{NumWords: 3, Seed: []byte("t")})

	wa := a.Words("req")
	wb := b.Words("req")
	require.Len(t, wa, 3)
	for i := range wa {
		assert.Equal(t, 0, wa[i].Cmp(wb[i]))
		assert.LessOrEqual(t, wa[i].BitLen(), 256)
	}
	assert.NotEqual(t, 0, wa[0].Cmp(wa[1]))
	assert.NotEqual(t, 0, wa[0].Cmp(other.Words("req")[0]))
}

func TestLocalCoordinatorManualFulfillment(t *testing.T) {
	c := newCoordinator(t, oracle.LocalConfig{NumWords: 1})
	ctx := context.Background()

	id, err := c.RequestRandomness(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.FulfillRandomWords(ctx, id), oracle.ErrNoConsumer)

	consumer := &recordingConsumer{}
	c.SetConsumer(consumer)
	require.NoError(t, c.FulfillRandomWordsWithOverride(ctx, id, []*big.Int{big.NewInt(7)}))
	assert.Equal(t, int64(7), consumer.calls[id][0].Int64())

	// delivered at most once
	assert.ErrorIs(t, c.FulfillRandomWords(ctx, id), oracle.ErrUnknownRequest)
	assert.ErrorIs(t, c.FulfillRandomWords(ctx, "never-issued"), oracle.ErrUnknownRequest)
}

func TestLocalCoordinatorPropagatesConsumerError(t *testing.T) {
	c := newCoordinator(t, oracle.LocalConfig{})
	boom := errors.New("boom")
	c.SetConsumer(&recordingConsumer{err: boom})
	id, err := c.RequestRandomness(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, c.FulfillRandomWords(context.Background(), id), boom)
}

func TestLocalCoordinatorCancel(t *testing.T) {
	c := newCoordinator(t, oracle.LocalConfig{})
	consumer := &recordingConsumer{}
	c.SetConsumer(consumer)
	id, err := c.RequestRandomness(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, c.Outstanding())

	c.Cancel(id)
	assert.Zero(t, c.Outstanding())
	assert.ErrorIs(t, c.FulfillRandomWords(context.Background(), id), oracle.ErrUnknownRequest)
	assert.Zero(t, consumer.count())
}

func TestLocalCoordinatorAutoFulfillsAcceptedRequests(t *testing.T) {
	feed := event.NewFeed(nil, quiet())
	defer feed.Stop()

	c := newCoordinator(t, oracle.LocalConfig{AutoFulfill: true, Delay: 10 * time.Millisecond})
	consumer := &recordingConsumer{feed: feed}
	c.SetConsumer(consumer)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, feed)

	for i := 0; i < 3; i++ {
		id, err := c.RequestRandomness(ctx)
		require.NoError(t, err)
		feed.Publish(event.RequestAcceptedEvent, domain.RequestAccepted{RequestID: id, Requester: "alice"})
	}
	// requests this coordinator never issued are ignored
	feed.Publish(event.RequestAcceptedEvent, domain.RequestAccepted{RequestID: "foreign"})

	require.Eventually(t, func() bool { return consumer.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Outstanding())

	cancel()
	c.Wait()
}

func TestLocalCoordinatorForgetsExternallyMintedRequests(t *testing.T) {
	feed := event.NewFeed(nil, quiet())
	defer feed.Stop()

	c := newCoordinator(t, oracle.LocalConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, feed)

	id, err := c.RequestRandomness(ctx)
	require.NoError(t, err)
	feed.Publish(event.MintCompletedEvent, domain.MintCompleted{RequestID: id})

	require.Eventually(t, func() bool { return c.Outstanding() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	c.Wait()
}
