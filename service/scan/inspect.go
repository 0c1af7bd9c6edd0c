package scan

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/reserves"
	solanapkg "github.com/brojonat/lendscan/service/solana"
)

// InspectMarket fetches and decodes one lending market account.
func (s *Scanner) InspectMarket(ctx context.Context, key solana.PublicKey) (*lending.LendingMarket, error) {
	acc, err := s.source.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	return lending.DecodeLendingMarket(acc.Data)
}

// InspectReserve fetches and decodes one reserve account.
func (s *Scanner) InspectReserve(ctx context.Context, key solana.PublicKey) (*lending.Reserve, error) {
	acc, err := s.source.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	return lending.DecodeReserve(acc.Data)
}

// InspectObligation fetches and decodes one obligation account.
func (s *Scanner) InspectObligation(ctx context.Context, key solana.PublicKey) (*lending.Obligation, error) {
	acc, err := s.source.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	return lending.DecodeObligation(acc.Data)
}

// ReserveCheck is the on-chain verification of one reserve table entry.
type ReserveCheck struct {
	Asset   reserves.Asset   `json:"asset"`
	Reserve *lending.Reserve `json:"-"`
	OK      bool             `json:"ok"`
	Problem string           `json:"problem,omitempty"`
}

// VerifyReserves checks every table entry against the chain: the reserve must
// decode, belong to market, and hold a mint with the configured decimals.
func (s *Scanner) VerifyReserves(ctx context.Context, market solana.PublicKey) []ReserveCheck {
	assets := s.table.Assets()
	checks := make([]ReserveCheck, 0, len(assets))
	for _, asset := range assets {
		check := ReserveCheck{Asset: asset}
		r, err := s.InspectReserve(ctx, asset.Reserve)
		switch {
		case err != nil:
			check.Problem = err.Error()
		case !r.LendingMarket.Equals(market):
			check.Problem = fmt.Sprintf("reserve belongs to market %s", r.LendingMarket)
		case r.Liquidity.MintDecimals != asset.Decimals:
			check.Problem = fmt.Sprintf("mint has %d decimals, table says %d", r.Liquidity.MintDecimals, asset.Decimals)
		default:
			check.OK = true
		}
		check.Reserve = r
		checks = append(checks, check)
	}
	return checks
}

// UnmappedReserve is a reserve of the market that the table does not know.
type UnmappedReserve struct {
	Reserve      solana.PublicKey `json:"reserve"`
	Mint         solana.PublicKey `json:"mint"`
	MintDecimals uint8            `json:"mint_decimals"`
}

// DiscoverReserves lists every reserve of the market that is missing from the
// table. These are the entries whose positions scans report as unresolved.
func (s *Scanner) DiscoverReserves(ctx context.Context, params Params) ([]UnmappedReserve, error) {
	accounts, err := s.source.GetProgramAccounts(ctx, params.Program, solanapkg.ReserveFilters(params.Market))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reserves: %w", err)
	}

	var missing []UnmappedReserve
	for _, acc := range accounts {
		if s.table.Resolve(acc.Pubkey).Mapped() {
			continue
		}
		r, err := lending.DecodeReserve(acc.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable reserve",
				"account", acc.Pubkey.String(),
				"error", err,
			)
			continue
		}
		missing = append(missing, UnmappedReserve{
			Reserve:      acc.Pubkey,
			Mint:         r.Liquidity.Mint,
			MintDecimals: r.Liquidity.MintDecimals,
		})
	}
	return missing, nil
}
