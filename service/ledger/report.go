package ledger

import (
	"maps"
	"math/big"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DecimalsLookup returns the mint decimals of an asset symbol.
type DecimalsLookup interface {
	Decimals(symbol string) (uint8, bool)
}

// AssetTotal is the deposit and borrow total of one asset.
type AssetTotal struct {
	Symbol      string `json:"symbol"`
	Deposited   uint64 `json:"deposited"`
	Borrowed    uint64 `json:"borrowed"`
	DepositedUI string `json:"deposited_ui,omitempty"`
	BorrowedUI  string `json:"borrowed_ui,omitempty"`
	Decimals    *uint8 `json:"decimals,omitempty"`
}

// Report is a ledger snapshot ready to be rendered or published.
type Report struct {
	Market             string         `json:"market"`
	GeneratedAt        time.Time      `json:"generated_at"`
	Obligations        int            `json:"obligations"`
	Unresolved         int            `json:"unresolved"`
	Overflows          int            `json:"overflows"`
	DecodeFailures     int            `json:"decode_failures"`
	Assets             []AssetTotal   `json:"assets"`
	OverflowedDeposits []string       `json:"overflowed_deposits,omitempty"`
	OverflowedBorrows  []string       `json:"overflowed_borrows,omitempty"`
	UnresolvedReserves map[string]int `json:"unresolved_reserves,omitempty"`
}

// NewReport builds a report for l sorted by symbol. decimals may be nil, in
// which case the UI amounts are omitted.
func NewReport(market string, l *Ledger, decimals DecimalsLookup) *Report {
	symbols := lo.Uniq(append(lo.Keys(l.Deposits), lo.Keys(l.Borrows)...))
	slices.Sort(symbols)

	assets := lo.Map(symbols, func(symbol string, _ int) AssetTotal {
		total := AssetTotal{
			Symbol:    symbol,
			Deposited: l.Deposits[symbol],
			Borrowed:  l.Borrows[symbol],
		}
		if decimals == nil {
			return total
		}
		if d, ok := decimals.Decimals(symbol); ok {
			total.Decimals = lo.ToPtr(d)
			total.DepositedUI = uiAmount(total.Deposited, d)
			total.BorrowedUI = uiAmount(total.Borrowed, d)
		}
		return total
	})

	r := &Report{
		Market:      market,
		GeneratedAt: time.Now().UTC(),
		Obligations: l.Obligations,
		Unresolved:  l.Unresolved,
		Overflows:   l.Overflows,
		Assets:      assets,
	}
	r.OverflowedDeposits = slices.Clone(l.OverflowedDeposits)
	r.OverflowedBorrows = slices.Clone(l.OverflowedBorrows)
	if len(l.UnresolvedReserves) > 0 {
		r.UnresolvedReserves = maps.Clone(l.UnresolvedReserves)
	}
	return r
}

// Asset returns the total for symbol.
func (r *Report) Asset(symbol string) (AssetTotal, bool) {
	return lo.Find(r.Assets, func(a AssetTotal) bool { return a.Symbol == symbol })
}

func uiAmount(raw uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals)).String()
}
