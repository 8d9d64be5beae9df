package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrEmptyCatalog      = errors.New("catalog must contain at least one entry")
	ErrIndexOutOfRange   = errors.New("catalog index out of range")
	ErrNegativeSelection = errors.New("selection value must be non-negative")
)

// CatalogEntry is one mintable attribute class.
type CatalogEntry struct {
	Class     string `json:"class" yaml:"class"`
	Weight    uint32 `json:"weight" yaml:"weight"`
	ContentID string `json:"content_id" yaml:"content_id"`
}

// Catalog is the ordered, fixed set of attribute classes a token can receive.
// It is treated as read-only once handed to the mint service.
type Catalog []CatalogEntry

// DefaultCatalog mirrors the three-dog collection the service launched with.
func DefaultCatalog() Catalog {
	return Catalog{
		{Class: "PUG", Weight: 10, ContentID: "QmaVkBn2tKmjbhphU7eyztbvSQU5EXDdqRyXZtRhSGgJGo"},
		{Class: "SHIBA_INU", Weight: 30, ContentID: "QmYQC5aGZu2PTH8XzbJrbDnvhj3gVs7ya33H9mqUNvST3d"},
		{Class: "ST_BERNARD", Weight: 100, ContentID: "QmZYmH5iDbD6v3U2ixoVAjioSzvWJszDzYdbeCLquGSpVm"},
	}
}

// Validate checks that the catalog is usable for selection.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[string]struct{}, len(c))
	for i, e := range c {
		if strings.TrimSpace(e.Class) == "" {
			return fmt.Errorf("catalog entry %d: class is required", i)
		}
		if strings.TrimSpace(e.ContentID) == "" {
			return fmt.Errorf("catalog entry %d (%s): content_id is required", i, e.Class)
		}
		if _, dup := seen[e.Class]; dup {
			return fmt.Errorf("catalog entry %d: duplicate class %q", i, e.Class)
		}
		seen[e.Class] = struct{}{}
	}
	return nil
}

// Select maps a random value onto a catalog position as value mod len(c).
// The result depends only on the value and the catalog size.
func (c Catalog) Select(value *big.Int) (int, CatalogEntry, error) {
	if len(c) == 0 {
		return 0, CatalogEntry{}, ErrEmptyCatalog
	}
	if value == nil || value.Sign() < 0 {
		return 0, CatalogEntry{}, ErrNegativeSelection
	}
	idx := new(big.Int).Mod(value, big.NewInt(int64(len(c)))).Int64()
	return int(idx), c[idx], nil
}

// URI composes the token URI for the entry at index.
func (c Catalog) URI(baseURI string, index int) (string, error) {
	if index < 0 || index >= len(c) {
		return "", ErrIndexOutOfRange
	}
	return baseURI + c[index].ContentID, nil
}

// Weights returns the rarity weights in catalog order.
func (c Catalog) Weights() []uint32 {
	out := make([]uint32, len(c))
	for i, e := range c {
		out[i] = e.Weight
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	copy(out, c)
	return out
}
