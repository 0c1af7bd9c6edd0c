package lending

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
)

// Obligation account sizes and offsets.
const (
	ObligationLen           = 1300
	ObligationCollateralLen = 88
	ObligationLiquidityLen  = 112
	MaxObligationReserves   = 10

	// ObligationLendingMarketOffset is where the owning market's pubkey sits
	// in an obligation buffer; the RPC memcmp filter matches at this offset.
	ObligationLendingMarketOffset = 10

	obligationDataFlatOffset = 204
	obligationDataFlatLen    = ObligationLen - obligationDataFlatOffset
)

// LastUpdate records the slot at which an account was last refreshed.
type LastUpdate struct {
	Slot  uint64 `json:"slot"`
	Stale bool   `json:"stale"`
}

// Deposit is collateral a user has supplied to one reserve.
// DepositedAmount is the collateral token count.
type Deposit struct {
	DepositReserve  solana.PublicKey `json:"deposit_reserve"`
	DepositedAmount uint64           `json:"deposited_amount"`
	MarketValue     Wad              `json:"market_value"`
	Padding         [32]byte         `json:"-"`
}

// Borrow is liquidity a user owes to one reserve.
type Borrow struct {
	BorrowReserve        solana.PublicKey `json:"borrow_reserve"`
	CumulativeBorrowRate Wad              `json:"cumulative_borrow_rate_wads"`
	BorrowedAmount       Wad              `json:"borrowed_amount_wads"`
	MarketValue          Wad              `json:"market_value"`
	Padding              [32]byte         `json:"-"`
}

// Obligation is one user's borrowing position in a lending market.
type Obligation struct {
	Version              uint8            `json:"version"`
	LastUpdate           LastUpdate       `json:"last_update"`
	LendingMarket        solana.PublicKey `json:"lending_market"`
	Owner                solana.PublicKey `json:"owner"`
	DepositedValue       Wad              `json:"deposited_value"`
	BorrowedValue        Wad              `json:"borrowed_value"`
	AllowedBorrowValue   Wad              `json:"allowed_borrow_value"`
	UnhealthyBorrowValue Wad              `json:"unhealthy_borrow_value"`
	Padding              [64]byte         `json:"-"`
	Deposits             []Deposit        `json:"deposits"`
	Borrows              []Borrow         `json:"borrows"`

	// Tail holds the bytes of data_flat after the last entry. The program does
	// not clear removed entries, so they may be non-zero. Decoding leaves Tail
	// nil when they are all zero.
	Tail []byte `json:"-"`
}

var collateralLayout = mustLayout("obligation_collateral", ObligationCollateralLen,
	pubkeyField("deposit_reserve", 0, func(d *Deposit) *solana.PublicKey { return &d.DepositReserve }),
	u64Field("deposited_amount", 32, func(d *Deposit) *uint64 { return &d.DepositedAmount }),
	wadField("market_value", 40, func(d *Deposit) *Wad { return &d.MarketValue }),
	rawField("padding", 56, func(d *Deposit) []byte { return d.Padding[:] }),
)

var liquidityLayout = mustLayout("obligation_liquidity", ObligationLiquidityLen,
	pubkeyField("borrow_reserve", 0, func(b *Borrow) *solana.PublicKey { return &b.BorrowReserve }),
	wadField("cumulative_borrow_rate_wads", 32, func(b *Borrow) *Wad { return &b.CumulativeBorrowRate }),
	wadField("borrowed_amount_wads", 48, func(b *Borrow) *Wad { return &b.BorrowedAmount }),
	wadField("market_value", 64, func(b *Borrow) *Wad { return &b.MarketValue }),
	rawField("padding", 80, func(b *Borrow) []byte { return b.Padding[:] }),
)

var obligationLayout = mustLayout("obligation", ObligationLen,
	versionField(func(o *Obligation) *uint8 { return &o.Version }),
	u64Field("last_update.slot", 1, func(o *Obligation) *uint64 { return &o.LastUpdate.Slot }),
	boolField("last_update.stale", 9, func(o *Obligation) *bool { return &o.LastUpdate.Stale }),
	pubkeyField("lending_market", ObligationLendingMarketOffset, func(o *Obligation) *solana.PublicKey { return &o.LendingMarket }),
	pubkeyField("owner", 42, func(o *Obligation) *solana.PublicKey { return &o.Owner }),
	wadField("deposited_value", 74, func(o *Obligation) *Wad { return &o.DepositedValue }),
	wadField("borrowed_value", 90, func(o *Obligation) *Wad { return &o.BorrowedValue }),
	wadField("allowed_borrow_value", 106, func(o *Obligation) *Wad { return &o.AllowedBorrowValue }),
	wadField("unhealthy_borrow_value", 122, func(o *Obligation) *Wad { return &o.UnhealthyBorrowValue }),
	rawField("padding", 138, func(o *Obligation) []byte { return o.Padding[:] }),
	countField("deposits_len", 202,
		func(o *Obligation) int { return len(o.Deposits) },
		func(o *Obligation, n int) { o.Deposits = make([]Deposit, n) },
	),
	countField("borrows_len", 203,
		func(o *Obligation) int { return len(o.Borrows) },
		func(o *Obligation, n int) { o.Borrows = make([]Borrow, n) },
	),
	Field[Obligation]{
		Name:   "data_flat",
		Offset: obligationDataFlatOffset,
		Width:  obligationDataFlatLen,
		Decode: decodeObligationEntries,
		Encode: encodeObligationEntries,
	},
)

// ObligationLayout returns the field schema of an obligation account.
func ObligationLayout() *Layout[Obligation] {
	return obligationLayout
}

// DecodeObligation parses an obligation account buffer.
func DecodeObligation(data []byte) (*Obligation, error) {
	return obligationLayout.Decode(data)
}

// EncodeObligation packs o into an obligation account buffer.
func EncodeObligation(o *Obligation) ([]byte, error) {
	return obligationLayout.Encode(o)
}

// countField stores a slice length as a single byte. Decoding allocates the
// slice so the entries field can fill it in, after checking the count against
// the program limit.
func countField(name string, offset int, get func(*Obligation) int, alloc func(*Obligation, int)) Field[Obligation] {
	return Field[Obligation]{
		Name:   name,
		Offset: offset,
		Width:  1,
		Decode: func(b []byte, o *Obligation) error {
			n := int(b[0])
			if n > MaxObligationReserves {
				return fmt.Errorf("%w: %d", ErrTooManyReserves, n)
			}
			alloc(o, n)
			return nil
		},
		Encode: func(b []byte, o *Obligation) error {
			n := get(o)
			if n > MaxObligationReserves {
				return fmt.Errorf("%w: %d", ErrTooManyReserves, n)
			}
			b[0] = uint8(n)
			return nil
		},
	}
}

// checkEntryCounts enforces the program limit and that the entries fit in data_flat.
func checkEntryCounts(deposits, borrows int) error {
	if deposits+borrows > MaxObligationReserves {
		return fmt.Errorf("%w: %d deposits + %d borrows exceeds %d",
			ErrTooManyReserves, deposits, borrows, MaxObligationReserves)
	}
	need := deposits*ObligationCollateralLen + borrows*ObligationLiquidityLen
	if need > obligationDataFlatLen {
		return fmt.Errorf("%w: %d deposits + %d borrows need %d bytes, have %d",
			ErrTooManyReserves, deposits, borrows, need, obligationDataFlatLen)
	}
	return nil
}

func decodeObligationEntries(b []byte, o *Obligation) error {
	if err := checkEntryCounts(len(o.Deposits), len(o.Borrows)); err != nil {
		return err
	}
	offset := 0
	for i := range o.Deposits {
		entry := b[offset : offset+ObligationCollateralLen]
		if err := collateralLayout.decodeInto(entry, &o.Deposits[i]); err != nil {
			return fmt.Errorf("deposit %d: %w", i, err)
		}
		offset += ObligationCollateralLen
	}
	for i := range o.Borrows {
		entry := b[offset : offset+ObligationLiquidityLen]
		if err := liquidityLayout.decodeInto(entry, &o.Borrows[i]); err != nil {
			return fmt.Errorf("borrow %d: %w", i, err)
		}
		offset += ObligationLiquidityLen
	}
	if tail := b[offset:]; slices.ContainsFunc(tail, func(c byte) bool { return c != 0 }) {
		o.Tail = bytes.Clone(tail)
	}
	return nil
}

func encodeObligationEntries(b []byte, o *Obligation) error {
	if err := checkEntryCounts(len(o.Deposits), len(o.Borrows)); err != nil {
		return err
	}
	offset := 0
	for i := range o.Deposits {
		entry := b[offset : offset+ObligationCollateralLen]
		if err := collateralLayout.encodeInto(entry, &o.Deposits[i]); err != nil {
			return fmt.Errorf("deposit %d: %w", i, err)
		}
		offset += ObligationCollateralLen
	}
	for i := range o.Borrows {
		entry := b[offset : offset+ObligationLiquidityLen]
		if err := liquidityLayout.encodeInto(entry, &o.Borrows[i]); err != nil {
			return fmt.Errorf("borrow %d: %w", i, err)
		}
		offset += ObligationLiquidityLen
	}
	if len(o.Tail) > len(b)-offset {
		return fmt.Errorf("tail of %d bytes does not fit after entries, %d bytes left", len(o.Tail), len(b)-offset)
	}
	copy(b[offset:], o.Tail)
	return nil
}
