// Package ledger folds decoded obligations into per-asset deposit and borrow totals.
package ledger

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/reserves"
)

// Resolver maps a reserve account to the asset it holds.
type Resolver interface {
	Resolve(reserve solana.PublicKey) reserves.Resolution
}

// Ledger holds accumulated totals keyed by asset symbol, in each asset's
// smallest native unit.
type Ledger struct {
	Deposits map[string]uint64 `json:"deposits"`
	Borrows  map[string]uint64 `json:"borrows"`

	Obligations int `json:"obligations"`
	Unresolved  int `json:"unresolved"`

	// Overflows counts borrow entries whose ceiled amount does not fit in a
	// u64 plus the totals listed in OverflowedDeposits and OverflowedBorrows.
	Overflows int `json:"overflows"`

	// Symbols whose exact total exceeds a u64. They are absent from Deposits
	// and Borrows.
	OverflowedDeposits []string `json:"overflowed_deposits,omitempty"`
	OverflowedBorrows  []string `json:"overflowed_borrows,omitempty"`

	// UnresolvedReserves counts unmapped occurrences per reserve address.
	UnresolvedReserves map[string]int `json:"unresolved_reserves,omitempty"`
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		Deposits:           make(map[string]uint64),
		Borrows:            make(map[string]uint64),
		UnresolvedReserves: make(map[string]int),
	}
}

// Partial is an unfinished fold. Totals are kept exact in 256 bits, so adding
// obligations or merging partials in any order yields the same Ledger.
type Partial struct {
	deposits           map[string]*uint256.Int
	borrows            map[string]*uint256.Int
	obligations        int
	unresolved         int
	entryOverflows     int
	unresolvedReserves map[string]int
}

// NewPartial returns an empty fold.
func NewPartial() *Partial {
	return &Partial{
		deposits:           make(map[string]*uint256.Int),
		borrows:            make(map[string]*uint256.Int),
		unresolvedReserves: make(map[string]int),
	}
}

// Merge adds other into p.
func (p *Partial) Merge(other *Partial) {
	if other == nil {
		return
	}
	for symbol, sum := range other.deposits {
		addWide(p.deposits, symbol, sum)
	}
	for symbol, sum := range other.borrows {
		addWide(p.borrows, symbol, sum)
	}
	for reserve, n := range other.unresolvedReserves {
		p.unresolvedReserves[reserve] += n
	}
	p.obligations += other.obligations
	p.unresolved += other.unresolved
	p.entryOverflows += other.entryOverflows
}

// Ledger narrows every total to a u64. A total that does not fit is excluded
// and reported once for its symbol.
func (p *Partial) Ledger() *Ledger {
	l := New()
	var overD, overB []string
	l.Deposits, overD = narrow(p.deposits)
	l.Borrows, overB = narrow(p.borrows)
	l.OverflowedDeposits = overD
	l.OverflowedBorrows = overB
	l.Obligations = p.obligations
	l.Unresolved = p.unresolved
	l.Overflows = p.entryOverflows + len(overD) + len(overB)
	maps.Copy(l.UnresolvedReserves, p.unresolvedReserves)
	return l
}

// addWide adds amount to m[key], creating the entry at zero. amount is not retained.
func addWide(m map[string]*uint256.Int, key string, amount *uint256.Int) {
	total, ok := m[key]
	if !ok {
		total = new(uint256.Int)
		m[key] = total
	}
	total.Add(total, amount)
}

// narrow splits exact totals into those that fit a u64 and the sorted symbols
// of those that do not.
func narrow(m map[string]*uint256.Int) (map[string]uint64, []string) {
	out := make(map[string]uint64, len(m))
	var over []string
	for symbol, total := range m {
		if !total.IsUint64() {
			over = append(over, symbol)
			continue
		}
		out[symbol] = total.Uint64()
	}
	slices.Sort(over)
	return out, over
}

// Aggregator folds obligations into a Ledger.
type Aggregator struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewAggregator creates an aggregator that resolves reserves with resolver.
func NewAggregator(resolver Resolver, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{resolver: resolver, logger: logger}
}

// Aggregate folds obligations into a fresh ledger. Nil entries are skipped.
// The result does not depend on the order of obligations.
func (a *Aggregator) Aggregate(obligations []*lending.Obligation) *Ledger {
	return a.Finish(a.Fold(obligations))
}

// Fold adds obligations to a new Partial. Nil entries are skipped.
func (a *Aggregator) Fold(obligations []*lending.Obligation) *Partial {
	p := NewPartial()
	for _, o := range obligations {
		if o == nil {
			continue
		}
		a.Add(p, o)
	}
	return p
}

// Finish narrows p into a Ledger and logs every total that overflowed.
func (a *Aggregator) Finish(p *Partial) *Ledger {
	l := p.Ledger()
	for _, symbol := range l.OverflowedDeposits {
		a.logger.Warn("deposit total overflowed", "symbol", symbol, "total", p.deposits[symbol].Dec())
	}
	for _, symbol := range l.OverflowedBorrows {
		a.logger.Warn("borrow total overflowed", "symbol", symbol, "total", p.borrows[symbol].Dec())
	}
	return l
}

// Add folds one obligation into p.
func (a *Aggregator) Add(p *Partial, o *lending.Obligation) {
	p.obligations++

	for _, d := range o.Deposits {
		res := a.resolve(p, d.DepositReserve, "deposit")
		if !res.Mapped() {
			continue
		}
		addWide(p.deposits, res.Symbol(), uint256.NewInt(d.DepositedAmount))
	}

	for _, b := range o.Borrows {
		res := a.resolve(p, b.BorrowReserve, "borrow")
		if !res.Mapped() {
			continue
		}
		amount, err := b.BorrowedAmount.CeilUint64()
		if err != nil {
			p.entryOverflows++
			a.logger.Warn("borrowed amount does not fit in u64",
				"symbol", res.Symbol(),
				"reserve", b.BorrowReserve.String(),
				"borrowed_amount", b.BorrowedAmount.String(),
				"error", err,
			)
			continue
		}
		addWide(p.borrows, res.Symbol(), uint256.NewInt(amount))
	}
}

func (a *Aggregator) resolve(p *Partial, reserve solana.PublicKey, side string) reserves.Resolution {
	res := a.resolver.Resolve(reserve)
	if !res.Mapped() {
		p.unresolved++
		p.unresolvedReserves[reserve.String()]++
		a.logger.Warn("unrecognized reserve", "reserve", reserve.String(), "side", side)
	}
	return res
}
