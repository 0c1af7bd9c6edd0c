package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/temporal"
)

func dialTemporal(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		config.NewLogger(c.String("log-level")),
	)
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Create or update the recurring scan of the market",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between scans",
				Value:   time.Hour,
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish each snapshot to NATS",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			params, err := loadParams(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("--interval must be at least 1m")
			}

			tc, err := dialTemporal(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			spec := temporal.ScheduleSpec{
				Program:  params.Program.String(),
				Market:   params.Market.String(),
				Interval: interval,
				Publish:  c.Bool("publish"),
			}
			if err := tc.UpsertScanSchedule(c.Context, spec); err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, spec)
			}
			fmt.Fprintf(c.App.Writer, "✓ Scan scheduled\n")
			fmt.Fprintf(c.App.Writer, "  Market:   %s\n", spec.Market)
			fmt.Fprintf(c.App.Writer, "  Interval: %s\n", spec.Interval)
			fmt.Fprintf(c.App.Writer, "  Publish:  %t\n", spec.Publish)
			return nil
		},
	}
}

func unscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Delete the recurring scan of the market",
		Action: func(c *cli.Context) error {
			params, err := loadParams(c)
			if err != nil {
				return err
			}

			tc, err := dialTemporal(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteScanSchedule(c.Context, params.Market.String()); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Scan schedule deleted for %s\n", params.Market)
			return nil
		},
	}
}

func startScanCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run one scan on the worker outside the schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish the snapshot to NATS",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait for the scan to finish and print its report",
			},
		},
		Action: func(c *cli.Context) error {
			params, err := loadParams(c)
			if err != nil {
				return err
			}

			tc, err := dialTemporal(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			workflowID, runID, err := tc.StartScan(c.Context, temporal.ScanMarketWorkflowInput{
				Program: params.Program.String(),
				Market:  params.Market.String(),
				Publish: c.Bool("publish"),
			})
			if err != nil {
				return err
			}
			if !c.Bool("wait") {
				fmt.Fprintf(c.App.Writer, "✓ Scan started\n")
				fmt.Fprintf(c.App.Writer, "  Workflow ID: %s\n", workflowID)
				fmt.Fprintf(c.App.Writer, "  Run ID:      %s\n", runID)
				return nil
			}

			ctx, cancel := signalContext(c)
			defer cancel()

			result, err := tc.AwaitScan(ctx, workflowID, runID)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, result)
			}
			if result.Scan != nil && result.Scan.Report != nil {
				printReport(c.App.Writer, result.Scan.Report, nil)
			}
			if result.Published {
				fmt.Fprintf(c.App.Writer, "\nPublished to %s\n", result.Subject)
			}
			if result.Error != nil {
				fmt.Fprintf(c.App.Writer, "\nWarning: %s\n", *result.Error)
			}
			return nil
		},
	}
}
