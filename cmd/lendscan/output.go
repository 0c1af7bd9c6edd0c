package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"

	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// toJQInput round-trips v through JSON so gojq sees only maps, slices and
// scalars.
func toJQInput(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compileJQ(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return code, nil
}

// printJQ prints every result of expr applied to v, one JSON value per line.
func printJQ(w io.Writer, expr string, v interface{}) error {
	code, err := compileJQ(expr)
	if err != nil {
		return err
	}
	input, err := toJQInput(v)
	if err != nil {
		return fmt.Errorf("failed to prepare jq input: %w", err)
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("jq: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}

func printReport(w io.Writer, report *ledger.Report, result *scan.Result) {
	fmt.Fprintf(w, "Market:          %s\n", report.Market)
	if result != nil {
		fmt.Fprintf(w, "Accounts:        %d\n", result.Accounts)
		fmt.Fprintf(w, "Scan duration:   %s\n", result.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Obligations:     %d\n", report.Obligations)
	fmt.Fprintf(w, "Decode failures: %d\n", report.DecodeFailures)
	fmt.Fprintf(w, "Unresolved:      %d\n", report.Unresolved)
	fmt.Fprintf(w, "Overflows:       %d\n\n", report.Overflows)

	if len(report.Assets) == 0 {
		fmt.Fprintln(w, "No positions found")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "SYMBOL\tDEPOSITED\tBORROWED\t")
		for _, a := range report.Assets {
			deposited, borrowed := a.DepositedUI, a.BorrowedUI
			if a.Decimals == nil {
				deposited = fmt.Sprintf("%d (raw)", a.Deposited)
				borrowed = fmt.Sprintf("%d (raw)", a.Borrowed)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", a.Symbol, deposited, borrowed)
		}
		tw.Flush()
	}

	if len(report.OverflowedDeposits)+len(report.OverflowedBorrows) > 0 {
		fmt.Fprintln(w, "\nTotals too large for u64 (excluded):")
		for _, symbol := range report.OverflowedDeposits {
			fmt.Fprintf(w, "  %s deposits\n", symbol)
		}
		for _, symbol := range report.OverflowedBorrows {
			fmt.Fprintf(w, "  %s borrows\n", symbol)
		}
	}

	if len(report.UnresolvedReserves) > 0 {
		fmt.Fprintln(w, "\nUnrecognized reserves:")
		for _, reserve := range slices.Sorted(maps.Keys(report.UnresolvedReserves)) {
			fmt.Fprintf(w, "  %s  (%d positions)\n", reserve, report.UnresolvedReserves[reserve])
		}
	}
}

func printMarket(w io.Writer, key solanago.PublicKey, m *lending.LendingMarket) {
	fmt.Fprintf(w, "Lending market:   %s\n", key)
	fmt.Fprintf(w, "Version:          %d\n", m.Version)
	fmt.Fprintf(w, "Owner:            %s\n", m.Owner)
	fmt.Fprintf(w, "Quote currency:   %s\n", m.QuoteCurrencySymbol())
	fmt.Fprintf(w, "Token program:    %s\n", m.TokenProgramID)
	fmt.Fprintf(w, "Oracle program:   %s\n", m.OracleProgramID)
}

func printReserve(w io.Writer, key solanago.PublicKey, res reserves.Resolution, r *lending.Reserve) {
	symbol := "(not in reserve table)"
	if res.Mapped() {
		symbol = res.Symbol()
	}
	fmt.Fprintf(w, "Reserve:          %s\n", key)
	fmt.Fprintf(w, "Symbol:           %s\n", symbol)
	fmt.Fprintf(w, "Lending market:   %s\n", r.LendingMarket)
	fmt.Fprintf(w, "Liquidity mint:   %s\n", r.Liquidity.Mint)
	fmt.Fprintf(w, "Mint decimals:    %d\n", r.Liquidity.MintDecimals)
	fmt.Fprintf(w, "Available:        %d\n", r.Liquidity.AvailableAmount)
	fmt.Fprintf(w, "Borrowed:         %s\n", r.Liquidity.BorrowedAmount)
	fmt.Fprintf(w, "Market price:     %s\n", r.Liquidity.MarketPrice)
	fmt.Fprintf(w, "Last update slot: %d (stale: %t)\n", r.LastUpdate.Slot, r.LastUpdate.Stale)
}

func printObligation(w io.Writer, key solanago.PublicKey, table *reserves.Table, o *lending.Obligation) {
	fmt.Fprintf(w, "Obligation:       %s\n", key)
	fmt.Fprintf(w, "Owner:            %s\n", o.Owner)
	fmt.Fprintf(w, "Lending market:   %s\n", o.LendingMarket)
	fmt.Fprintf(w, "Deposited value:  %s\n", o.DepositedValue)
	fmt.Fprintf(w, "Borrowed value:   %s\n", o.BorrowedValue)

	fmt.Fprintf(w, "\nDeposits (%d):\n", len(o.Deposits))
	for _, d := range o.Deposits {
		fmt.Fprintf(w, "  %-10s %d\n", table.Resolve(d.DepositReserve), d.DepositedAmount)
	}
	fmt.Fprintf(w, "\nBorrows (%d):\n", len(o.Borrows))
	for _, b := range o.Borrows {
		fmt.Fprintf(w, "  %-10s %s\n", table.Resolve(b.BorrowReserve), b.BorrowedAmount)
	}
}

func printAssets(w io.Writer, assets []reserves.Asset) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tDECIMALS\tRESERVE")
	for _, a := range assets {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", a.Symbol, a.Decimals, a.Reserve)
	}
	tw.Flush()
}

func printChecks(w io.Writer, checks []scan.ReserveCheck) {
	for _, c := range checks {
		if c.OK {
			fmt.Fprintf(w, "✓ %-6s %s\n", c.Asset.Symbol, c.Asset.Reserve)
			continue
		}
		fmt.Fprintf(w, "✗ %-6s %s: %s\n", c.Asset.Symbol, c.Asset.Reserve, c.Problem)
	}
}

func printUnmapped(w io.Writer, missing []scan.UnmappedReserve) {
	if len(missing) == 0 {
		fmt.Fprintln(w, "Every reserve of the market is in the table")
		return
	}
	fmt.Fprintf(w, "Found %d reserve(s) missing from the table:\n\n", len(missing))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESERVE\tMINT\tDECIMALS")
	for _, m := range missing {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Reserve, m.Mint, m.MintDecimals)
	}
	tw.Flush()
}
