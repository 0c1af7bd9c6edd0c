package solana

import (
	"github.com/gagliardetto/solana-go"
)

// RawAccount is an account as returned by the RPC, independent of the
// RPC response format.
type RawAccount struct {
	Pubkey   solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}
