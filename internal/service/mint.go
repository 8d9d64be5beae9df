package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/vrfmint/internal/domain"
	"github.com/punchamoorthee/vrfmint/internal/event"
	"github.com/punchamoorthee/vrfmint/internal/oracle"
	"github.com/punchamoorthee/vrfmint/internal/store"
)

var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrUnknownRequest      = errors.New("unknown request")
	ErrMalformedRandomness = errors.New("malformed randomness")
	ErrInvalidRequester    = errors.New("invalid requester")
	ErrDuplicateRequest    = errors.New("duplicate request id")
	ErrTokenNotFound       = errors.New("token not found")
)

// Options is the deployment configuration of a collection. Immutable once the service is built.
type Options struct {
	MintFee *big.Int
	Catalog domain.Catalog
	BaseURI string
	// BasicTokenURI is the fixed URI handed out by BasicMint.
	BasicTokenURI string
}

// MintService owns the collection: fee, catalog, token counter (through the
// store) and the request/fulfillment protocol with the randomness oracle.
type MintService struct {
	store   store.Store
	oracle  oracle.Coordinator
	feed    *event.Feed
	fee     *big.Int
	catalog domain.Catalog
	baseURI string
	basic   string
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewMintService(st store.Store, coord oracle.Coordinator, feed *event.Feed, opts Options, log logrus.FieldLogger) (*MintService, error) {
	if st == nil || coord == nil || feed == nil {
		return nil, errors.New("store, oracle and feed are required")
	}
	if opts.MintFee == nil || opts.MintFee.Sign() < 0 {
		return nil, errors.New("mint fee must be a non-negative amount")
	}
	if err := opts.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	basic := opts.BasicTokenURI
	if basic == "" {
		basic = opts.BaseURI + opts.Catalog[0].ContentID
	}
	return &MintService{
		store:   st,
		oracle:  coord,
		feed:    feed,
		fee:     new(big.Int).Set(opts.MintFee),
		catalog: opts.Catalog.Clone(),
		baseURI: opts.BaseURI,
		basic:   basic,
		log:     log.WithField("component", "mint"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// RequestMint accepts a paid mint request and asks the oracle for randomness.
// Nothing is stored or published when the payment is below the mint fee.
func (s *MintService) RequestMint(ctx context.Context, payment *big.Int, requester string) (string, error) {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		mintsRejected.WithLabelValues("invalid_requester").Inc()
		return "", ErrInvalidRequester
	}
	if payment == nil || payment.Cmp(s.fee) < 0 {
		mintsRejected.WithLabelValues("insufficient_payment").Inc()
		return "", fmt.Errorf("%w: need %s", ErrInsufficientPayment, s.fee)
	}

	requestID, err := s.oracle.RequestRandomness(ctx)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}

	pending := domain.PendingRequest{
		RequestID: requestID,
		Requester: requester,
		Payment:   new(big.Int).Set(payment),
		CreatedAt: s.now(),
	}
	if err := s.store.CreatePending(ctx, pending); err != nil {
		if c, ok := s.oracle.(oracle.Canceler); ok {
			c.Cancel(requestID)
		}
		if errors.Is(err, store.ErrDuplicate) {
			mintsRejected.WithLabelValues("duplicate_request").Inc()
			return "", fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
		}
		return "", fmt.Errorf("store pending request: %w", err)
	}

	mintsRequested.Inc()
	pendingRequests.Inc()
	s.feed.Publish(event.RequestAcceptedEvent, domain.RequestAccepted{
		RequestID: requestID,
		Requester: requester,
	})
	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"requester":  requester,
	}).Info("mint requested")
	return requestID, nil
}

// Fulfill is the oracle callback. It consumes the pending request, mints the
// next token with the attribute chosen by randomValues[0] mod catalog size,
// and publishes the completion. Either every effect happens or none does.
func (s *MintService) Fulfill(ctx context.Context, requestID string, randomValues []*big.Int) (*domain.TokenRecord, error) {
	if len(randomValues) == 0 {
		mintsRejected.WithLabelValues("malformed_randomness").Inc()
		return nil, fmt.Errorf("%w: no random values", ErrMalformedRandomness)
	}
	index, entry, err := s.catalog.Select(randomValues[0])
	if err != nil {
		mintsRejected.WithLabelValues("malformed_randomness").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedRandomness, err)
	}
	uri, err := s.catalog.URI(s.baseURI, index)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.FulfillPending(ctx, requestID, func(tokenID uint64, owner string) (domain.TokenRecord, error) {
		return domain.TokenRecord{
			AttributeClass: entry.Class,
			AttributeIndex: index,
			URI:            uri,
			RequestID:      requestID,
			MintedAt:       s.now(),
		}, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			mintsRejected.WithLabelValues("unknown_request").Inc()
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}
		return nil, fmt.Errorf("fulfill %s: %w", requestID, err)
	}

	mintsCompleted.WithLabelValues(rec.AttributeClass).Inc()
	pendingRequests.Dec()
	s.publishMinted(rec)
	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"requester":  rec.Owner,
		"token_id":   rec.TokenID,
		"class":      rec.AttributeClass,
	}).Info("mint completed")
	return rec, nil
}

// FulfillRandomWords lets the service act as an oracle.Consumer.
func (s *MintService) FulfillRandomWords(ctx context.Context, requestID string, words []*big.Int) error {
	_, err := s.Fulfill(ctx, requestID, words)
	if errors.Is(err, ErrUnknownRequest) {
		return fmt.Errorf("%w: %s", oracle.ErrUnknownRequest, requestID)
	}
	return err
}

// BasicMint mints the fixed basic token immediately, without payment or randomness.
// It shares the token counter with randomized mints.
func (s *MintService) BasicMint(ctx context.Context, requester string) (*domain.TokenRecord, error) {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		mintsRejected.WithLabelValues("invalid_requester").Inc()
		return nil, ErrInvalidRequester
	}
	rec, err := s.store.MintDirect(ctx, requester, func(tokenID uint64, owner string) (domain.TokenRecord, error) {
		return domain.TokenRecord{
			AttributeClass: "BASIC",
			AttributeIndex: -1,
			URI:            s.basic,
			MintedAt:       s.now(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("basic mint: %w", err)
	}
	mintsCompleted.WithLabelValues(rec.AttributeClass).Inc()
	s.publishMinted(rec)
	s.log.WithFields(logrus.Fields{
		"requester": requester,
		"token_id":  rec.TokenID,
	}).Info("basic mint completed")
	return rec, nil
}

func (s *MintService) publishMinted(rec *domain.TokenRecord) {
	s.feed.Publish(event.MintCompletedEvent, domain.MintCompleted{
		TokenID:        rec.TokenID,
		Requester:      rec.Owner,
		RequestID:      rec.RequestID,
		AttributeClass: rec.AttributeClass,
		URI:            rec.URI,
	})
}
