package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/metrics"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
	"github.com/brojonat/lendscan/service/solana"
)

// scanEnv is everything a command needs to talk to the lending program.
type scanEnv struct {
	scanner *scan.Scanner
	table   *reserves.Table
	params  scan.Params
	logger  *slog.Logger
}

func loadTable(c *cli.Context) (*reserves.Table, error) {
	path := c.String("reserve-table")
	if path == "" {
		return reserves.DefaultTable(), nil
	}
	return reserves.LoadFile(path)
}

func loadParams(c *cli.Context) (scan.Params, error) {
	program, err := solanago.PublicKeyFromBase58(c.String("program"))
	if err != nil {
		return scan.Params{}, fmt.Errorf("invalid --program: %w", err)
	}
	market, err := solanago.PublicKeyFromBase58(c.String("market"))
	if err != nil {
		return scan.Params{}, fmt.Errorf("invalid --market: %w", err)
	}
	return scan.Params{Program: program, Market: market}, nil
}

func newScanEnv(c *cli.Context) (*scanEnv, error) {
	logger := config.NewLogger(c.String("log-level"))

	table, err := loadTable(c)
	if err != nil {
		return nil, err
	}
	params, err := loadParams(c)
	if err != nil {
		return nil, err
	}

	rpcURL, err := solana.SelectRandomEndpoint(c.StringSlice("rpc-url"))
	if err != nil {
		return nil, err
	}

	// The CLI has no metrics endpoint; collectors go to a private registry.
	m := metrics.NewMetrics(prometheus.NewRegistry())
	source := solana.NewClient(solana.NewRPCClient(rpcURL), solana.EndpointLabel(rpcURL), m, logger,
		solana.WithTimeout(c.Duration("rpc-timeout")),
	)

	return &scanEnv{
		scanner: scan.NewScanner(source, table, c.Int("workers"), m, logger),
		table:   table,
		params:  params,
		logger:  logger,
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the lending market and print per-asset totals",
		Description: `Fetch every obligation of the market, decode it and total the deposited
and borrowed amounts per asset symbol.

Examples:
  lendscan scan
  lendscan scan --json
  lendscan scan --jq '.assets[] | select(.symbol == "SOL") | .deposited'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON report",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(c)
			defer cancel()

			result, err := env.scanner.Run(ctx, env.params)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			report := result.Report(env.table)

			out := c.App.Writer
			if expr := c.String("jq"); expr != "" {
				return printJQ(out, expr, report)
			}
			if c.Bool("json") {
				return printJSON(out, report)
			}
			printReport(out, report, result)
			return nil
		},
	}
}

func inspectMarketCommand() *cli.Command {
	return &cli.Command{
		Name:      "market",
		Usage:     "Decode a lending market account",
		ArgsUsage: "[market_address]",
		Action: func(c *cli.Context) error {
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}
			key := env.params.Market
			if c.NArg() > 0 {
				if key, err = solanago.PublicKeyFromBase58(c.Args().First()); err != nil {
					return fmt.Errorf("invalid market address: %w", err)
				}
			}

			market, err := env.scanner.InspectMarket(c.Context, key)
			if err != nil {
				return fmt.Errorf("failed to inspect market %s: %w", key, err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, market)
			}
			printMarket(c.App.Writer, key, market)
			return nil
		},
	}
}

func inspectReserveCommand() *cli.Command {
	return &cli.Command{
		Name:      "reserve",
		Usage:     "Decode a reserve account",
		ArgsUsage: "<reserve_address>",
		Action: func(c *cli.Context) error {
			key, err := requireKeyArg(c, "reserve address")
			if err != nil {
				return err
			}
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}

			reserve, err := env.scanner.InspectReserve(c.Context, key)
			if err != nil {
				return fmt.Errorf("failed to inspect reserve %s: %w", key, err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, reserve)
			}
			printReserve(c.App.Writer, key, env.table.Resolve(key), reserve)
			return nil
		},
	}
}

func inspectObligationCommand() *cli.Command {
	return &cli.Command{
		Name:      "obligation",
		Usage:     "Decode an obligation account",
		ArgsUsage: "<obligation_address>",
		Action: func(c *cli.Context) error {
			key, err := requireKeyArg(c, "obligation address")
			if err != nil {
				return err
			}
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}

			obligation, err := env.scanner.InspectObligation(c.Context, key)
			if err != nil {
				return fmt.Errorf("failed to inspect obligation %s: %w", key, err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, obligation)
			}
			printObligation(c.App.Writer, key, env.table, obligation)
			return nil
		},
	}
}

func reservesListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the reserve table",
		Action: func(c *cli.Context) error {
			table, err := loadTable(c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, table.Assets())
			}
			printAssets(c.App.Writer, table.Assets())
			return nil
		},
	}
}

func reservesVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check every reserve in the table against the chain",
		Description: `Fetch every configured reserve and check that it decodes, belongs to the
market, and that its liquidity mint decimals match the table.`,
		Action: func(c *cli.Context) error {
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}

			checks := env.scanner.VerifyReserves(c.Context, env.params.Market)
			if c.Bool("json") {
				if err := printJSON(c.App.Writer, checks); err != nil {
					return err
				}
			} else {
				printChecks(c.App.Writer, checks)
			}

			for _, check := range checks {
				if !check.OK {
					return cli.Exit("reserve table does not match the chain", 1)
				}
			}
			return nil
		},
	}
}

func reservesDiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "List reserves of the market that are missing from the table",
		Action: func(c *cli.Context) error {
			env, err := newScanEnv(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(c)
			defer cancel()

			missing, err := env.scanner.DiscoverReserves(ctx, env.params)
			if err != nil {
				return fmt.Errorf("failed to discover reserves: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, missing)
			}
			printUnmapped(c.App.Writer, missing)
			return nil
		},
	}
}

func requireKeyArg(c *cli.Context, what string) (solanago.PublicKey, error) {
	if c.NArg() != 1 {
		return solanago.PublicKey{}, fmt.Errorf("%s is required", what)
	}
	key, err := solanago.PublicKeyFromBase58(c.Args().First())
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid %s: %w", what, err)
	}
	return key, nil
}
