package domain

import (
	"math/big"
	"time"
)

// PendingRequest links an outstanding oracle request to the account that paid for it.
// It exists from the moment a mint request is accepted until the oracle fulfills it.
type PendingRequest struct {
	RequestID string    `json:"request_id"`
	Requester string    `json:"requester"`
	Payment   *big.Int  `json:"payment"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenRecord is the immutable result of a successful mint.
// TokenIDs are assigned from a single counter starting at 0.
type TokenRecord struct {
	TokenID        uint64    `json:"token_id"`
	Owner          string    `json:"owner"`
	AttributeClass string    `json:"attribute_class"`
	AttributeIndex int       `json:"attribute_index"`
	URI            string    `json:"uri"`
	RequestID      string    `json:"request_id,omitempty"`
	MintedAt       time.Time `json:"minted_at"`
}

// RequestAccepted is published once a paid mint request is stored as pending.
type RequestAccepted struct {
	RequestID string `json:"request_id"`
	Requester string `json:"requester"`
}

// MintCompleted is published after a token has been minted and its pending request consumed.
type MintCompleted struct {
	TokenID        uint64 `json:"token_id"`
	Requester      string `json:"requester"`
	RequestID      string `json:"request_id,omitempty"`
	AttributeClass string `json:"attribute_class"`
	URI            string `json:"uri"`
}
