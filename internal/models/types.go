package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/punchamoorthee/vrfmint/internal/domain"
)

// MintRequest is the payload of POST /mints. Payment is a decimal integer string
// so amounts beyond 64 bits survive JSON.
type MintRequest struct {
	Requester string `json:"requester"`
	Payment   string `json:"payment"`
}

type MintAccepted struct {
	RequestID string `json:"request_id"`
	Requester string `json:"requester"`
}

type BasicMintRequest struct {
	Requester string `json:"requester"`
}

// FulfillmentRequest is the oracle callback payload of POST /fulfillments.
type FulfillmentRequest struct {
	RequestID   string   `json:"request_id"`
	RandomWords []string `json:"random_words"`
}

type CatalogItem struct {
	Index     int    `json:"index"`
	Class     string `json:"class"`
	Weight    uint32 `json:"weight"`
	ContentID string `json:"content_id"`
	URI       string `json:"uri"`
}

type CollectionResponse struct {
	MintFee      string        `json:"mint_fee"`
	TokenCounter uint64        `json:"token_counter"`
	Initialized  bool          `json:"initialized"`
	Catalog      []CatalogItem `json:"catalog"`
}

type PendingResponse struct {
	RequestID string `json:"request_id"`
	Requester string `json:"requester"`
	Payment   string `json:"payment"`
}

func NewPendingResponse(p *domain.PendingRequest) PendingResponse {
	payment := "0"
	if p.Payment != nil {
		payment = p.Payment.String()
	}
	return PendingResponse{RequestID: p.RequestID, Requester: p.Requester, Payment: payment}
}

// ParsePayment reads a decimal integer amount. An empty string means no payment.
func ParsePayment(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("payment %q is not a decimal integer", s)
	}
	return v, nil
}

// ParseRandomWords reads decimal (or 0x-prefixed hex) integers.
func ParseRandomWords(in []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(in))
	for i, s := range in {
		s = strings.TrimSpace(s)
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s, base = s[2:], 16
		}
		v, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("random_words[%d] %q is not an integer", i, in[i])
		}
		out = append(out, v)
	}
	return out, nil
}
