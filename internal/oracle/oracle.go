// Package oracle defines the randomness oracle the mint service depends on and
// a local coordinator that plays the oracle's part on development networks.
//
// The protocol is request/callback: the service asks the Coordinator for a
// request id, records it, and later the oracle calls the Consumer back with
// the random words for that id. Delivery is at most once per id.
package oracle

import (
	"context"
	"errors"
	"math/big"
)

var ErrUnknownRequest = errors.New("oracle: nonexistent request")

// Coordinator issues randomness requests.
type Coordinator interface {
	RequestRandomness(ctx context.Context) (string, error)
}

// Canceler is implemented by coordinators that can drop an issued request
// the consumer failed to record.
type Canceler interface {
	Cancel(requestID string)
}

// Consumer receives fulfilled randomness.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, requestID string, words []*big.Int) error
}
