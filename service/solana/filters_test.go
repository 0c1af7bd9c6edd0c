package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObligationFilters(t *testing.T) {
	filters := ObligationFilters(testMarket)
	require.Len(t, filters, 2)

	require.NotNil(t, filters[0].Memcmp)
	assert.Equal(t, uint64(10), filters[0].Memcmp.Offset)
	assert.Equal(t, testMarket.Bytes(), []byte(filters[0].Memcmp.Bytes))
	assert.Equal(t, testMarket.String(), filters[0].Memcmp.Bytes.String())

	assert.Nil(t, filters[1].Memcmp)
	assert.Equal(t, uint64(1300), filters[1].DataSize)
}

func TestReserveFilters(t *testing.T) {
	filters := ReserveFilters(testMarket)
	require.Len(t, filters, 2)
	assert.Equal(t, uint64(10), filters[0].Memcmp.Offset)
	assert.Equal(t, uint64(619), filters[1].DataSize)
}

func TestMatchesFilters(t *testing.T) {
	filters := ObligationFilters(testMarket)

	assert.True(t, MatchesFilters(filters, obligationBytes(testMarket)))
	assert.False(t, MatchesFilters(filters, obligationBytes(solana.NewWallet().PublicKey())), "other market")
	assert.False(t, MatchesFilters(filters, obligationBytes(testMarket)[:1299]), "wrong size")
	assert.False(t, MatchesFilters(filters, nil))
	assert.True(t, MatchesFilters(nil, []byte{1}))
}
