package lending

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

// LendingMarketLen is the size of a lending market account.
const LendingMarketLen = 290

// LendingMarket is the root account every reserve and obligation points at.
type LendingMarket struct {
	Version                    uint8            `json:"version"`
	BumpSeed                   uint8            `json:"bump_seed"`
	Owner                      solana.PublicKey `json:"owner"`
	QuoteCurrency              [32]byte         `json:"-"`
	TokenProgramID             solana.PublicKey `json:"token_program_id"`
	OracleProgramID            solana.PublicKey `json:"oracle_program_id"`
	SwitchboardOracleProgramID solana.PublicKey `json:"switchboard_oracle_program_id"`
	Padding                    [128]byte        `json:"-"`
}

// QuoteCurrencySymbol returns the quote currency with its zero padding removed,
// e.g. "USD".
func (m *LendingMarket) QuoteCurrencySymbol() string {
	return string(bytes.TrimRight(m.QuoteCurrency[:], "\x00"))
}

var lendingMarketLayout = mustLayout("lending_market", LendingMarketLen,
	versionField(func(m *LendingMarket) *uint8 { return &m.Version }),
	u8Field("bump_seed", 1, func(m *LendingMarket) *uint8 { return &m.BumpSeed }),
	pubkeyField("owner", 2, func(m *LendingMarket) *solana.PublicKey { return &m.Owner }),
	bytes32Field("quote_currency", 34, func(m *LendingMarket) *[32]byte { return &m.QuoteCurrency }),
	pubkeyField("token_program_id", 66, func(m *LendingMarket) *solana.PublicKey { return &m.TokenProgramID }),
	pubkeyField("oracle_program_id", 98, func(m *LendingMarket) *solana.PublicKey { return &m.OracleProgramID }),
	pubkeyField("switchboard_oracle_program_id", 130, func(m *LendingMarket) *solana.PublicKey { return &m.SwitchboardOracleProgramID }),
	rawField("padding", 162, func(m *LendingMarket) []byte { return m.Padding[:] }),
)

// LendingMarketLayout returns the field schema of a lending market account.
func LendingMarketLayout() *Layout[LendingMarket] {
	return lendingMarketLayout
}

// DecodeLendingMarket parses a lending market account buffer.
func DecodeLendingMarket(data []byte) (*LendingMarket, error) {
	return lendingMarketLayout.Decode(data)
}

// EncodeLendingMarket packs m into a lending market account buffer.
func EncodeLendingMarket(m *LendingMarket) ([]byte, error) {
	return lendingMarketLayout.Encode(m)
}
