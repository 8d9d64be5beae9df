package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() Catalog {
	return Catalog{
		{Class: "A", Weight: 1, ContentID: "cid-a"},
		{Class: "B", Weight: 1, ContentID: "cid-b"},
		{Class: "C", Weight: 1, ContentID: "cid-c"},
	}
}

func TestCatalogSelect(t *testing.T) {
	c := testCatalog()
	tests := []struct {
		value int64
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{2, "C"},
		{3, "A"},
		{7, "B"},
		{1000000, "B"},
	}
	for _, tt := range tests {
		idx, entry, err := c.Select(big.NewInt(tt.value))
		require.NoError(t, err)
		assert.Equal(t, tt.want, entry.Class, "value %d", tt.value)
		assert.Equal(t, int(tt.value%3), idx)
	}
}

func TestCatalogSelectIsDeterministic(t *testing.T) {
	c := testCatalog()
	v, ok := new(big.Int).SetString("78541660797044910968829902406342334108369226379826116161446442989268089806461", 10)
	require.True(t, ok)

	idx1, e1, err := c.Select(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		idx, e, err := c.Select(v)
		require.NoError(t, err)
		assert.Equal(t, idx1, idx)
		assert.Equal(t, e1, e)
	}
	// value must not be mutated by selection
	assert.Equal(t, "78541660797044910968829902406342334108369226379826116161446442989268089806461", v.String())
}

func TestCatalogSelectRejectsBadInput(t *testing.T) {
	_, _, err := Catalog{}.Select(big.NewInt(1))
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, _, err = testCatalog().Select(nil)
	assert.ErrorIs(t, err, ErrNegativeSelection)

	_, _, err = testCatalog().Select(big.NewInt(-4))
	assert.ErrorIs(t, err, ErrNegativeSelection)
}

func TestCatalogURI(t *testing.T) {
	c := testCatalog()
	uri, err := c.URI("ipfs://", 1)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid-b", uri)

	_, err = c.URI("ipfs://", 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCatalogValidate(t *testing.T) {
	require.NoError(t, DefaultCatalog().Validate())
	assert.ErrorIs(t, Catalog{}.Validate(), ErrEmptyCatalog)
	assert.Error(t, Catalog{{Class: "A"}}.Validate())
	assert.Error(t, Catalog{{Class: "A", ContentID: "x"}, {Class: "A", ContentID: "y"}}.Validate())
	assert.Equal(t, []uint32{10, 30, 100}, DefaultCatalog().Weights())
}
