package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/lendscan/service/config"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lendscan",
		Usage: "Lending market ledger scanner",
		Description: `Scan a Solend-style lending market and total deposits and borrows per asset.

Use this CLI to run scans against an RPC node, decode individual accounts,
check the reserve table, and manage scheduled scans.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			scanCommand(),
			{
				Name:  "inspect",
				Usage: "Fetch and decode a single account",
				Subcommands: []*cli.Command{
					inspectMarketCommand(),
					inspectReserveCommand(),
					inspectObligationCommand(),
				},
			},
			{
				Name:  "reserves",
				Usage: "Reserve table commands",
				Subcommands: []*cli.Command{
					reservesListCommand(),
					reservesVerifyCommand(),
					reservesDiscoverCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS ledger streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal schedule management commands",
				Subcommands: []*cli.Command{
					scheduleCommand(),
					unscheduleCommand(),
					startScanCommand(),
				},
			},
			clientCommands(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC endpoint (repeat for several; one is picked at random)",
				EnvVars: []string{"SOLANA_RPC_URLS"},
				Value:   cli.NewStringSlice(config.DefaultRPCURL),
			},
			&cli.StringFlag{
				Name:    "program",
				Usage:   "Lending program id",
				EnvVars: []string{"LENDING_PROGRAM_ID"},
				Value:   config.DefaultProgramID,
			},
			&cli.StringFlag{
				Name:    "market",
				Usage:   "Lending market account",
				EnvVars: []string{"LENDING_MARKET"},
				Value:   config.DefaultLendingMarket,
			},
			&cli.StringFlag{
				Name:    "reserve-table",
				Usage:   "TOML reserve table (defaults to the built-in Solend table)",
				EnvVars: []string{"RESERVE_TABLE_PATH"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Concurrent obligation decoders",
				EnvVars: []string{"DECODE_WORKERS"},
				Value:   4,
			},
			&cli.DurationFlag{
				Name:    "rpc-timeout",
				Usage:   "Timeout for a single RPC call",
				EnvVars: []string{"RPC_TIMEOUT"},
				Value:   config.DefaultRPCTimeout,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "error",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for client commands and health checks",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   config.DefaultTaskQueue,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
