package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WadDecimals is the number of decimal places carried by a Wad.
const WadDecimals = 18

var (
	wadScale         = uint256.NewInt(1_000_000_000_000_000_000)
	wadScaleMinusOne = uint256.NewInt(999_999_999_999_999_999)
	maxUint128       = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
)

// ErrOverflow is returned when a Wad conversion or sum leaves its integer range.
var ErrOverflow = errors.New("numeric overflow")

// Wad is a fixed-point value scaled by 10^18, matching the lending program's
// Decimal type. On chain it is packed as a little-endian u128; in memory it is
// held in 256 bits so sums of many positions cannot wrap.
type Wad struct {
	v uint256.Int
}

// WadFromUint128 builds a Wad from the two little-endian words of a packed u128.
func WadFromUint128(lo, hi uint64) Wad {
	return Wad{v: uint256.Int{lo, hi, 0, 0}}
}

// WadFromUint64 returns n whole units as a Wad (n * 10^18).
func WadFromUint64(n uint64) Wad {
	var w Wad
	w.v.Mul(uint256.NewInt(n), wadScale)
	return w
}

// WadFromScaled wraps an already-scaled integer.
func WadFromScaled(v *uint256.Int) Wad {
	var w Wad
	w.v.Set(v)
	return w
}

// ParseWad parses a non-negative decimal string such as "2.5" into a Wad.
// Values with more than 18 fractional digits are rejected rather than rounded.
func ParseWad(s string) (Wad, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Wad{}, fmt.Errorf("invalid wad %q: %w", s, err)
	}
	if d.IsNegative() {
		return Wad{}, fmt.Errorf("invalid wad %q: negative value", s)
	}
	scaled := d.Shift(WadDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Wad{}, fmt.Errorf("invalid wad %q: more than %d decimal places", s, WadDecimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Wad{}, fmt.Errorf("invalid wad %q: %w", s, ErrOverflow)
	}
	return Wad{v: *v}, nil
}

// Scaled returns a copy of the underlying scaled integer.
func (w Wad) Scaled() *uint256.Int {
	return w.v.Clone()
}

// Uint128 returns the packed words of w. ok is false when w does not fit in 128 bits.
func (w Wad) Uint128() (lo, hi uint64, ok bool) {
	if w.v.Gt(maxUint128) {
		return 0, 0, false
	}
	return w.v[0], w.v[1], true
}

// IsZero reports whether w is zero.
func (w Wad) IsZero() bool {
	return w.v.IsZero()
}

// Cmp compares w and o and returns -1, 0 or +1.
func (w Wad) Cmp(o Wad) int {
	return w.v.Cmp(&o.v)
}

// Add returns w + o, or ErrOverflow if the sum exceeds 256 bits.
func (w Wad) Add(o Wad) (Wad, error) {
	var out Wad
	if _, overflow := out.v.AddOverflow(&w.v, &o.v); overflow {
		return Wad{}, ErrOverflow
	}
	return out, nil
}

// CeilUint64 rounds w up to the nearest whole unit: (v + 10^18 - 1) / 10^18.
// It returns ErrOverflow if the result does not fit in a uint64.
func (w Wad) CeilUint64() (uint64, error) {
	var n uint256.Int
	if _, overflow := n.AddOverflow(&w.v, wadScaleMinusOne); overflow {
		return 0, ErrOverflow
	}
	n.Div(&n, wadScale)
	if !n.IsUint64() {
		return 0, ErrOverflow
	}
	return n.Uint64(), nil
}

// Decimal returns w as an exact decimal value.
func (w Wad) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(w.v.ToBig(), -WadDecimals)
}

func (w Wad) String() string {
	return w.Decimal().String()
}

// MarshalText encodes w as its decimal string.
func (w Wad) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText parses a decimal string produced by MarshalText.
func (w *Wad) UnmarshalText(text []byte) error {
	parsed, err := ParseWad(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
