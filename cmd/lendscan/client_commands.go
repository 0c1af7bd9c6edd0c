package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/lendscan/client"
	"github.com/brojonat/lendscan/service/config"
)

func newHTTPClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, config.NewLogger(c.String("log-level")))
}

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the lendscan server",
		Subcommands: []*cli.Command{
			clientLedgerCommand(),
			clientReservesCommand(),
			clientScheduleCommand(),
			clientUnscheduleCommand(),
		},
	}
}

func clientLedgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Fetch the server's ledger",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				Usage:   "Force a fresh scan instead of the cached one",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON report",
			},
		},
		Action: func(c *cli.Context) error {
			report, err := newHTTPClient(c).GetLedger(c.Context, c.Bool("refresh"))
			if err != nil {
				return fmt.Errorf("failed to fetch ledger: %w", err)
			}
			if expr := c.String("jq"); expr != "" {
				return printJQ(c.App.Writer, expr, report)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, report)
			}
			printReport(c.App.Writer, report, nil)
			return nil
		},
	}
}

func clientReservesCommand() *cli.Command {
	return &cli.Command{
		Name:  "reserves",
		Usage: "List the server's reserve table",
		Action: func(c *cli.Context) error {
			list, err := newHTTPClient(c).ListReserves(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list reserves: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, list)
			}
			for _, r := range list {
				fmt.Fprintf(c.App.Writer, "%-6s %2d  %s\n", r.Symbol, r.Decimals, r.Address)
			}
			return nil
		},
	}
}

func clientScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Ask the server to scan the market on a schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between scans",
				Value: time.Hour,
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish each snapshot to NATS",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			schedule, err := newHTTPClient(c).ScheduleScan(c.Context, c.String("market"), c.Duration("interval"), c.Bool("publish"))
			if err != nil {
				return fmt.Errorf("failed to schedule scan: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, schedule)
			}
			fmt.Fprintf(c.App.Writer, "✓ Scan of %s scheduled every %s\n", schedule.Market, schedule.Interval)
			return nil
		},
	}
}

func clientUnscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Ask the server to stop scanning the market",
		Action: func(c *cli.Context) error {
			market := c.String("market")
			if err := newHTTPClient(c).UnscheduleScan(c.Context, market); err != nil {
				return fmt.Errorf("failed to unschedule scan: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Scan of %s unscheduled\n", market)
			return nil
		},
	}
}
