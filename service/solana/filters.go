package solana

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/lendscan/service/lending"
)

// ObligationFilters selects the obligation accounts of market: the 32 market
// bytes at the lending market offset and the exact obligation length. Both
// constraints must hold.
func ObligationFilters(market solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: lending.ObligationLendingMarketOffset,
				Bytes:  solana.Base58(market.Bytes()),
			},
		},
		{DataSize: lending.ObligationLen},
	}
}

// ReserveFilters selects the reserve accounts of market.
func ReserveFilters(market solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: lending.ReserveLendingMarketOffset,
				Bytes:  solana.Base58(market.Bytes()),
			},
		},
		{DataSize: lending.ReserveLen},
	}
}

// MatchesFilters applies filters to data the way an RPC node does. It is
// used to re-check accounts returned by nodes that ignore filters.
func MatchesFilters(filters []rpc.RPCFilter, data []byte) bool {
	for _, f := range filters {
		if f.DataSize != 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if f.Memcmp != nil {
			start := f.Memcmp.Offset
			end := start + uint64(len(f.Memcmp.Bytes))
			if end > uint64(len(data)) || !bytes.Equal(data[start:end], f.Memcmp.Bytes) {
				return false
			}
		}
	}
	return true
}
