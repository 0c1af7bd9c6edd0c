// Package reserves maps lending reserve accounts to the asset symbols they hold.
package reserves

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var validSymbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// Asset is one entry of the reserve table.
type Asset struct {
	Reserve  solana.PublicKey `json:"reserve"`
	Symbol   string           `json:"symbol"`
	Decimals uint8            `json:"decimals"`
}

// Table is a read-only reserve → asset lookup. It is built once and never mutated,
// so it is safe to share between goroutines.
type Table struct {
	byReserve map[string]Asset
	decimals  map[string]uint8
	assets    []Asset
}

// NewTable validates assets and builds a table.
// Several reserves may share a symbol as long as they agree on decimals.
func NewTable(assets []Asset) (*Table, error) {
	t := &Table{
		byReserve: make(map[string]Asset, len(assets)),
		decimals:  make(map[string]uint8),
		assets:    make([]Asset, 0, len(assets)),
	}

	var errs []error
	for _, a := range assets {
		if a.Reserve.IsZero() {
			errs = append(errs, fmt.Errorf("reserve for %q is required", a.Symbol))
			continue
		}
		key := a.Reserve.String()
		if !validSymbolRegex.MatchString(a.Symbol) {
			errs = append(errs, fmt.Errorf("reserve %s: invalid symbol %q (want a short uppercase token)", key, a.Symbol))
			continue
		}
		if prev, exists := t.byReserve[key]; exists {
			errs = append(errs, fmt.Errorf("reserve %s listed twice (%s and %s)", key, prev.Symbol, a.Symbol))
			continue
		}
		if d, exists := t.decimals[a.Symbol]; exists && d != a.Decimals {
			errs = append(errs, fmt.Errorf("symbol %s has conflicting decimals %d and %d", a.Symbol, d, a.Decimals))
			continue
		}
		t.byReserve[key] = a
		t.decimals[a.Symbol] = a.Decimals
		t.assets = append(t.assets, a)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid reserve table: %v", errs)
	}

	slices.SortFunc(t.assets, func(a, b Asset) int {
		if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
			return c
		}
		return strings.Compare(a.Reserve.String(), b.Reserve.String())
	})
	return t, nil
}

// MustNewTable is like NewTable but panics on invalid input.
func MustNewTable(assets []Asset) *Table {
	t, err := NewTable(assets)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve looks up the asset held by reserve.
func (t *Table) Resolve(reserve solana.PublicKey) Resolution {
	asset, ok := t.byReserve[reserve.String()]
	if !ok {
		return Unmapped(reserve)
	}
	return Resolved(asset)
}

// Decimals returns the mint decimals of symbol.
func (t *Table) Decimals(symbol string) (uint8, bool) {
	d, ok := t.decimals[symbol]
	return d, ok
}

// Assets returns a copy of the table sorted by symbol.
func (t *Table) Assets() []Asset {
	return slices.Clone(t.assets)
}

// Len returns the number of reserves in the table.
func (t *Table) Len() int {
	return len(t.assets)
}

// Resolution is the result of a reserve lookup: either a mapped asset or the
// unmapped reserve id. Callers must check Mapped before using Symbol.
type Resolution struct {
	reserve solana.PublicKey
	asset   Asset
	mapped  bool
}

// Resolved returns a mapped Resolution for asset.
func Resolved(asset Asset) Resolution {
	return Resolution{reserve: asset.Reserve, asset: asset, mapped: true}
}

// Unmapped returns a Resolution for a reserve absent from the table.
func Unmapped(reserve solana.PublicKey) Resolution {
	return Resolution{reserve: reserve}
}

// Mapped reports whether the reserve was found.
func (r Resolution) Mapped() bool { return r.mapped }

// Symbol returns the asset symbol, or "" when unmapped.
func (r Resolution) Symbol() string { return r.asset.Symbol }

// Asset returns the mapped asset.
func (r Resolution) Asset() Asset { return r.asset }

// Reserve returns the reserve that was looked up.
func (r Resolution) Reserve() solana.PublicKey { return r.reserve }

func (r Resolution) String() string {
	if !r.mapped {
		return "unmapped(" + r.reserve.String() + ")"
	}
	return r.asset.Symbol
}
