package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/vrfmint/internal/domain"
	"github.com/punchamoorthee/vrfmint/internal/event"
)

const MaxRandomWords = 256

var ErrNoConsumer = errors.New("oracle: no consumer attached")

type LocalConfig struct {
	// Delay between seeing an accepted request and delivering its words.
	Delay time.Duration
	// NumWords delivered per request, 1..MaxRandomWords.
	NumWords int
	// Seed mixed into every derived word.
	Seed []byte
	// AutoFulfill delivers words for accepted requests without an external trigger.
	AutoFulfill bool
}

// LocalCoordinator issues request ids and derives pseudo-random words from
// (seed, request id). It has no proof and no economic security; it exists so
// the full mint flow runs on development networks.
type LocalCoordinator struct {
	mu       sync.Mutex
	issued   map[string]time.Time
	consumer Consumer
	cfg      LocalConfig
	log      logrus.FieldLogger
	inflight sync.WaitGroup
}

func NewLocalCoordinator(cfg LocalConfig, log logrus.FieldLogger) (*LocalCoordinator, error) {
	if cfg.NumWords == 0 {
		cfg.NumWords = 1
	}
	if cfg.NumWords < 0 || cfg.NumWords > MaxRandomWords {
		return nil, fmt.Errorf("num words must be between 1 and %d", MaxRandomWords)
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("delay must not be negative")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalCoordinator{
		issued: make(map[string]time.Time),
		cfg:    cfg,
		log:    log.WithField("component", "local-oracle"),
	}, nil
}

// SetConsumer attaches the contract that receives fulfillments.
func (c *LocalCoordinator) SetConsumer(consumer Consumer) {
	c.mu.Lock()
	c.consumer = consumer
	c.mu.Unlock()
}

func (c *LocalCoordinator) RequestRandomness(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	c.mu.Lock()
	c.issued[id] = time.Now()
	c.mu.Unlock()
	return id, nil
}

// Outstanding reports how many issued requests have not been delivered yet.
func (c *LocalCoordinator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issued)
}

// Words derives the words delivered for requestID: sha256(seed || id || i).
func (c *LocalCoordinator) Words(requestID string) []*big.Int {
	words := make([]*big.Int, c.cfg.NumWords)
	for i := range words {
		h := sha256.New()
		h.Write(c.cfg.Seed)
		h.Write([]byte(requestID))
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		words[i] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return words
}

// FulfillRandomWords delivers the derived words for requestID to the consumer.
func (c *LocalCoordinator) FulfillRandomWords(ctx context.Context, requestID string) error {
	return c.FulfillRandomWordsWithOverride(ctx, requestID, nil)
}

// FulfillRandomWordsWithOverride delivers words in place of the derived ones when non-empty.
func (c *LocalCoordinator) FulfillRandomWordsWithOverride(ctx context.Context, requestID string, words []*big.Int) error {
	c.mu.Lock()
	if _, ok := c.issued[requestID]; !ok {
		c.mu.Unlock()
		return ErrUnknownRequest
	}
	consumer := c.consumer
	if consumer == nil {
		c.mu.Unlock()
		return ErrNoConsumer
	}
	delete(c.issued, requestID)
	c.mu.Unlock()

	if len(words) == 0 {
		words = c.Words(requestID)
	}
	if err := consumer.FulfillRandomWords(ctx, requestID, words); err != nil {
		return fmt.Errorf("consumer rejected %s: %w", requestID, err)
	}
	return nil
}

// Cancel drops an issued request so it is never delivered.
func (c *LocalCoordinator) Cancel(requestID string) {
	c.mu.Lock()
	delete(c.issued, requestID)
	c.mu.Unlock()
}

func (c *LocalCoordinator) isIssued(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.issued[requestID]
	return ok
}

// Start subscribes to the feed and watches it until ctx is done. Accepted
// requests this coordinator issued are fulfilled after the configured delay
// when AutoFulfill is set; requests minted through another path are forgotten.
// Wait blocks until the watcher and any pending deliveries have exited.
func (c *LocalCoordinator) Start(ctx context.Context, feed *event.Feed) {
	subId, ch := feed.Subscribe(feed.Len())
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer feed.Unsubscribe(subId)
		c.watch(ctx, ch)
	}()
}

func (c *LocalCoordinator) Wait() {
	c.inflight.Wait()
}

func (c *LocalCoordinator) watch(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch data := evt.Data.(type) {
			case domain.RequestAccepted:
				if c.cfg.AutoFulfill && c.isIssued(data.RequestID) {
					c.inflight.Add(1)
					go c.deliverLater(ctx, data.RequestID)
				}
			case domain.MintCompleted:
				if data.RequestID != "" {
					c.Cancel(data.RequestID)
				}
			}
		}
	}
}

func (c *LocalCoordinator) deliverLater(ctx context.Context, requestID string) {
	defer c.inflight.Done()
	if c.cfg.Delay > 0 {
		timer := time.NewTimer(c.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	err := c.FulfillRandomWords(ctx, requestID)
	switch {
	case err == nil:
		c.log.WithField("request_id", requestID).Info("randomness delivered")
	case errors.Is(err, ErrUnknownRequest):
		// fulfilled through another path in the meantime
	default:
		c.log.WithError(err).WithField("request_id", requestID).Warn("randomness delivery failed")
	}
}
