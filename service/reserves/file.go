package reserves

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
)

// tableFile is the on-disk shape of a reserve table:
//
//	[[reserve]]
//	address  = "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"
//	symbol   = "SOL"
//	decimals = 9
type tableFile struct {
	Reserve []struct {
		Address  string `toml:"address"`
		Symbol   string `toml:"symbol"`
		Decimals uint8  `toml:"decimals"`
	} `toml:"reserve"`
}

// LoadFile reads a TOML reserve table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reserve table: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Load decodes a TOML reserve table. Unknown keys are rejected so that a
// misspelt field never silently drops an entry.
func Load(r io.Reader) (*Table, error) {
	var file tableFile
	meta, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reserve table: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in reserve table: %s", strings.Join(keys, ", "))
	}
	if len(file.Reserve) == 0 {
		return nil, fmt.Errorf("reserve table has no entries")
	}

	assets := make([]Asset, 0, len(file.Reserve))
	for i, entry := range file.Reserve {
		key, err := solana.PublicKeyFromBase58(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("reserve %d: invalid address %q: %w", i, entry.Address, err)
		}
		assets = append(assets, Asset{Reserve: key, Symbol: entry.Symbol, Decimals: entry.Decimals})
	}
	return NewTable(assets)
}
