package lending

import (
	"github.com/gagliardetto/solana-go"
)

// Reserve account sizes and offsets.
const (
	ReserveLen                 = 619
	ReserveLendingMarketOffset = 10
)

// ReserveLiquidity is the asset side of a reserve.
type ReserveLiquidity struct {
	Mint                 solana.PublicKey `json:"mint"`
	MintDecimals         uint8            `json:"mint_decimals"`
	Supply               solana.PublicKey `json:"supply"`
	PythOracle           solana.PublicKey `json:"pyth_oracle"`
	SwitchboardOracle    solana.PublicKey `json:"switchboard_oracle"`
	AvailableAmount      uint64           `json:"available_amount"`
	BorrowedAmount       Wad              `json:"borrowed_amount_wads"`
	CumulativeBorrowRate Wad              `json:"cumulative_borrow_rate_wads"`
	MarketPrice          Wad              `json:"market_price"`
}

// ReserveCollateral is the cToken side of a reserve.
type ReserveCollateral struct {
	Mint            solana.PublicKey `json:"mint"`
	MintTotalSupply uint64           `json:"mint_total_supply"`
	Supply          solana.PublicKey `json:"supply"`
}

// ReserveFees are the reserve's fee parameters.
type ReserveFees struct {
	BorrowFeeWad      uint64 `json:"borrow_fee_wad"`
	FlashLoanFeeWad   uint64 `json:"flash_loan_fee_wad"`
	HostFeePercentage uint8  `json:"host_fee_percentage"`
}

// ReserveConfig holds the risk parameters of a reserve. Rates are percentages.
type ReserveConfig struct {
	OptimalUtilizationRate uint8            `json:"optimal_utilization_rate"`
	LoanToValueRatio       uint8            `json:"loan_to_value_ratio"`
	LiquidationBonus       uint8            `json:"liquidation_bonus"`
	LiquidationThreshold   uint8            `json:"liquidation_threshold"`
	MinBorrowRate          uint8            `json:"min_borrow_rate"`
	OptimalBorrowRate      uint8            `json:"optimal_borrow_rate"`
	MaxBorrowRate          uint8            `json:"max_borrow_rate"`
	Fees                   ReserveFees      `json:"fees"`
	DepositLimit           uint64           `json:"deposit_limit"`
	BorrowLimit            uint64           `json:"borrow_limit"`
	FeeReceiver            solana.PublicKey `json:"fee_receiver"`
}

// Reserve is one lending pool for one asset.
type Reserve struct {
	Version       uint8             `json:"version"`
	LastUpdate    LastUpdate        `json:"last_update"`
	LendingMarket solana.PublicKey  `json:"lending_market"`
	Liquidity     ReserveLiquidity  `json:"liquidity"`
	Collateral    ReserveCollateral `json:"collateral"`
	Config        ReserveConfig     `json:"config"`
	Padding       [248]byte         `json:"-"`
}

var reserveLayout = mustLayout("reserve", ReserveLen,
	versionField(func(r *Reserve) *uint8 { return &r.Version }),
	u64Field("last_update.slot", 1, func(r *Reserve) *uint64 { return &r.LastUpdate.Slot }),
	boolField("last_update.stale", 9, func(r *Reserve) *bool { return &r.LastUpdate.Stale }),
	pubkeyField("lending_market", ReserveLendingMarketOffset, func(r *Reserve) *solana.PublicKey { return &r.LendingMarket }),
	pubkeyField("liquidity.mint", 42, func(r *Reserve) *solana.PublicKey { return &r.Liquidity.Mint }),
	u8Field("liquidity.mint_decimals", 74, func(r *Reserve) *uint8 { return &r.Liquidity.MintDecimals }),
	pubkeyField("liquidity.supply", 75, func(r *Reserve) *solana.PublicKey { return &r.Liquidity.Supply }),
	pubkeyField("liquidity.pyth_oracle", 107, func(r *Reserve) *solana.PublicKey { return &r.Liquidity.PythOracle }),
	pubkeyField("liquidity.switchboard_oracle", 139, func(r *Reserve) *solana.PublicKey { return &r.Liquidity.SwitchboardOracle }),
	u64Field("liquidity.available_amount", 171, func(r *Reserve) *uint64 { return &r.Liquidity.AvailableAmount }),
	wadField("liquidity.borrowed_amount_wads", 179, func(r *Reserve) *Wad { return &r.Liquidity.BorrowedAmount }),
	wadField("liquidity.cumulative_borrow_rate_wads", 195, func(r *Reserve) *Wad { return &r.Liquidity.CumulativeBorrowRate }),
	wadField("liquidity.market_price", 211, func(r *Reserve) *Wad { return &r.Liquidity.MarketPrice }),
	pubkeyField("collateral.mint", 227, func(r *Reserve) *solana.PublicKey { return &r.Collateral.Mint }),
	u64Field("collateral.mint_total_supply", 259, func(r *Reserve) *uint64 { return &r.Collateral.MintTotalSupply }),
	pubkeyField("collateral.supply", 267, func(r *Reserve) *solana.PublicKey { return &r.Collateral.Supply }),
	u8Field("config.optimal_utilization_rate", 299, func(r *Reserve) *uint8 { return &r.Config.OptimalUtilizationRate }),
	u8Field("config.loan_to_value_ratio", 300, func(r *Reserve) *uint8 { return &r.Config.LoanToValueRatio }),
	u8Field("config.liquidation_bonus", 301, func(r *Reserve) *uint8 { return &r.Config.LiquidationBonus }),
	u8Field("config.liquidation_threshold", 302, func(r *Reserve) *uint8 { return &r.Config.LiquidationThreshold }),
	u8Field("config.min_borrow_rate", 303, func(r *Reserve) *uint8 { return &r.Config.MinBorrowRate }),
	u8Field("config.optimal_borrow_rate", 304, func(r *Reserve) *uint8 { return &r.Config.OptimalBorrowRate }),
	u8Field("config.max_borrow_rate", 305, func(r *Reserve) *uint8 { return &r.Config.MaxBorrowRate }),
	u64Field("config.fees.borrow_fee_wad", 306, func(r *Reserve) *uint64 { return &r.Config.Fees.BorrowFeeWad }),
	u64Field("config.fees.flash_loan_fee_wad", 314, func(r *Reserve) *uint64 { return &r.Config.Fees.FlashLoanFeeWad }),
	u8Field("config.fees.host_fee_percentage", 322, func(r *Reserve) *uint8 { return &r.Config.Fees.HostFeePercentage }),
	u64Field("config.deposit_limit", 323, func(r *Reserve) *uint64 { return &r.Config.DepositLimit }),
	u64Field("config.borrow_limit", 331, func(r *Reserve) *uint64 { return &r.Config.BorrowLimit }),
	pubkeyField("config.fee_receiver", 339, func(r *Reserve) *solana.PublicKey { return &r.Config.FeeReceiver }),
	rawField("padding", 371, func(r *Reserve) []byte { return r.Padding[:] }),
)

// ReserveLayout returns the field schema of a reserve account.
func ReserveLayout() *Layout[Reserve] {
	return reserveLayout
}

// DecodeReserve parses a reserve account buffer.
func DecodeReserve(data []byte) (*Reserve, error) {
	return reserveLayout.Decode(data)
}

// EncodeReserve packs r into a reserve account buffer.
func EncodeReserve(r *Reserve) ([]byte, error) {
	return reserveLayout.Encode(r)
}
